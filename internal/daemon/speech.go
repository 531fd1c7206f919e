package daemon

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Speaker announces text through an external text-to-speech command such as
// espeak. The configured command may carry its own flags ("espeak -v en-us");
// the text to speak is appended as the final argument.
type Speaker struct {
	command string
}

// NewSpeaker returns a Speaker for the configured command line.
func NewSpeaker(command string) *Speaker {
	return &Speaker{command: strings.TrimSpace(command)}
}

// Say runs the speech command to completion. Callers dispatch it onto a
// worker; speech can take seconds and must not hold up message handling.
func (s *Speaker) Say(text string) error {
	if s.command == "" {
		return errors.New("speech command not configured")
	}
	parts := strings.Fields(s.command)
	args := append(parts[1:], text)

	out, err := exec.Command(parts[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("speech command %q failed: %w (output: %s)", parts[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
