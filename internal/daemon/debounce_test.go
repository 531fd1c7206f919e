package daemon

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerBurstCoalescesToSingleFire(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(40*time.Millisecond, func() { fires.Add(1) })

	for range 5 {
		d.Touch()
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fires.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// No further touches, no further fires.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), fires.Load())
}

func TestDebouncerFiresPerSettledBurst(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { fires.Add(1) })

	d.Touch()
	require.Eventually(t, func() bool { return fires.Load() == 1 },
		time.Second, 5*time.Millisecond)

	d.Touch()
	require.Eventually(t, func() bool { return fires.Load() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestDebouncerTouchResetsQuietPeriod(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(60*time.Millisecond, func() { fires.Add(1) })

	// Keep touching inside the quiet period; nothing may fire while the
	// burst is still active.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.Touch()
		time.Sleep(15 * time.Millisecond)
	}
	require.Equal(t, int32(0), fires.Load())

	require.Eventually(t, func() bool { return fires.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestDebouncerStopCancelsPendingFire(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { fires.Add(1) })

	d.Touch()
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(0), fires.Load())
}
