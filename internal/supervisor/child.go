package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// childOutputTail bounds how much child stderr is retained for exit reports.
const childOutputTail = 4096

// Child is one running listener process together with its exit future. The
// child's streams pass through to ours so its log lines land in the same
// journal; the stderr tail is additionally retained for the exit report.
type Child struct {
	cmd  *exec.Cmd
	tail *tailWriter
	done chan struct{}
	err  error
}

// StartChild launches exe with args as the supervised listener.
func StartChild(exe string, args ...string) (*Child, error) {
	tail := &tailWriter{dst: os.Stderr, limit: childOutputTail}
	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", exe, err)
	}

	c := &Child{cmd: cmd, tail: tail, done: make(chan struct{})}
	go func() {
		c.err = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// Pid returns the child's process id.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Done is closed when the child has exited and been reaped.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// ExitCode reports the child's exit code, valid once Done is closed.
func (c *Child) ExitCode() int {
	if c.cmd.ProcessState == nil {
		return -1
	}
	return c.cmd.ProcessState.ExitCode()
}

// ExitError returns the Wait error, valid once Done is closed.
func (c *Child) ExitError() error {
	return c.err
}

// OutputTail returns the last stderr bytes the child wrote.
func (c *Child) OutputTail() string {
	return c.tail.String()
}

// Terminate asks the child to exit with SIGTERM and escalates to SIGKILL
// when the grace period passes without an exit. It returns once the child is
// reaped.
func (c *Child) Terminate(grace time.Duration) {
	select {
	case <-c.done:
		return
	default:
	}

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.Warn("Failed to signal child", "pid", c.Pid(), "error", err)
	}

	select {
	case <-c.done:
		return
	case <-time.After(grace):
	}

	slog.Warn("Child did not exit in time, killing", "pid", c.Pid(), "grace", grace)
	if err := c.cmd.Process.Kill(); err != nil {
		slog.Warn("Failed to kill child", "pid", c.Pid(), "error", err)
	}
	<-c.done
}

// tailWriter tees writes to dst while retaining the last limit bytes.
type tailWriter struct {
	dst   io.Writer
	limit int

	mu  sync.Mutex
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
	}
	w.mu.Unlock()
	return w.dst.Write(p)
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}
