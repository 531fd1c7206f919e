package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func markerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "retropie-ha.pid")
}

func TestAcquirePIDFileWritesOwnPID(t *testing.T) {
	path := markerPath(t)
	require.NoError(t, AcquirePIDFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestAcquirePIDFileRefusesLiveProcess(t *testing.T) {
	path := markerPath(t)
	// Our own pid is certainly alive.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))

	err := AcquirePIDFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")
}

func TestAcquirePIDFileOverwritesStaleMarker(t *testing.T) {
	path := markerPath(t)
	// Far beyond the kernel's default pid_max, so never a live process.
	require.NoError(t, os.WriteFile(path, []byte("99999999"), 0o644))

	require.NoError(t, AcquirePIDFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestAcquirePIDFileOverwritesGarbageMarker(t *testing.T) {
	path := markerPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o644))

	require.NoError(t, AcquirePIDFile(path))
}

func TestAcquirePIDFileCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "retropie-ha.pid")
	require.NoError(t, AcquirePIDFile(path))
	require.FileExists(t, path)
}

func TestRemovePIDFileMissingIsFine(t *testing.T) {
	RemovePIDFile(filepath.Join(t.TempDir(), "never-written.pid"))
}

func TestRemovePIDFileDeletesMarker(t *testing.T) {
	path := markerPath(t)
	require.NoError(t, AcquirePIDFile(path))

	RemovePIDFile(path)
	require.NoFileExists(t, path)
}
