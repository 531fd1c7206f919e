package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// AcquirePIDFile claims the liveness marker at path for this process. A
// marker naming a live process means another supervisor owns the machine and
// startup is refused; a stale marker from a crashed run is overwritten.
func AcquirePIDFile(path string) error {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && pid > 0 && processAlive(pid) {
			return fmt.Errorf("already running: pid %d holds %s", pid, path)
		}
		slog.Warn("Overwriting stale PID marker", "path", path, "previous", strings.TrimSpace(string(data)))
	case os.IsNotExist(err):
		// first start
	default:
		return fmt.Errorf("read pid marker %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid marker dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid marker %s: %w", path, err)
	}
	return nil
}

// RemovePIDFile deletes the marker. A missing file is not an error; the
// marker only matters while the process lives.
func RemovePIDFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove PID marker", "path", path, "error", err)
	}
}

// processAlive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else, which still counts as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
