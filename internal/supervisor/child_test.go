package supervisor

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, c *Child) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit in time")
	}
}

func TestChildReportsCleanExit(t *testing.T) {
	c, err := StartChild("/bin/sh", "-c", "exit 0")
	require.NoError(t, err)

	waitDone(t, c)
	require.NoError(t, c.ExitError())
	require.Equal(t, 0, c.ExitCode())
}

func TestChildReportsExitCode(t *testing.T) {
	c, err := StartChild("/bin/sh", "-c", "exit 7")
	require.NoError(t, err)

	waitDone(t, c)
	require.Error(t, c.ExitError())
	require.Equal(t, 7, c.ExitCode())
}

func TestChildRetainsStderrTail(t *testing.T) {
	c, err := StartChild("/bin/sh", "-c", "echo panic in listener >&2; exit 1")
	require.NoError(t, err)

	waitDone(t, c)
	require.Contains(t, c.OutputTail(), "panic in listener")
}

func TestChildTerminateGraceful(t *testing.T) {
	// The loop lets the TERM trap run between sleeps.
	c, err := StartChild("/bin/sh", "-c", "trap 'exit 0' TERM; while true; do sleep 0.05; done")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Terminate(3 * time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("terminate did not return")
	}
	require.Equal(t, 0, c.ExitCode())
}

func TestChildTerminateEscalatesToKill(t *testing.T) {
	c, err := StartChild("/bin/sh", "-c", "trap '' TERM; while true; do sleep 0.05; done")
	require.NoError(t, err)

	start := time.Now()
	c.Terminate(200 * time.Millisecond)

	require.Less(t, time.Since(start), 3*time.Second)
	require.Error(t, c.ExitError())
}

func TestChildStartFailure(t *testing.T) {
	_, err := StartChild("/no/such/binary")
	require.Error(t, err)
}

func TestTailWriterKeepsLastBytes(t *testing.T) {
	w := &tailWriter{dst: io.Discard, limit: 8}

	_, err := w.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	require.Equal(t, "89abcdef", w.String())

	_, err = w.Write([]byte("XY"))
	require.NoError(t, err)
	require.Equal(t, "abcdefXY", w.String())
}
