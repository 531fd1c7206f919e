package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerGroupRunsTasksAndWaits(t *testing.T) {
	var done atomic.Int32
	var g WorkerGroup

	for range 5 {
		ok := g.Go(func() {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
		})
		require.True(t, ok)
	}

	require.NoError(t, g.StopAndWait(t.Context()))
	require.Equal(t, int32(5), done.Load())
}

func TestWorkerGroupRejectsTasksAfterStop(t *testing.T) {
	var g WorkerGroup
	require.NoError(t, g.StopAndWait(t.Context()))

	ok := g.Go(func() { t.Error("task ran after stop") })
	require.False(t, ok)
}

func TestWorkerGroupStopHonorsContextDeadline(t *testing.T) {
	var g WorkerGroup
	release := make(chan struct{})
	g.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := g.StopAndWait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}
