package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func exerciseRecorder(r Recorder) {
	r.ObservePublishDuration("normal", 120*time.Millisecond)
	r.IncPublishAttempt("normal")
	r.IncPublishResult("normal", ResultSuccess)
	r.IncCommand("speak", ResultError)
	r.IncEventConsumed("game-start")
	r.IncRescan(TriggerWatch)
	r.SetCollectionGames(42)
}

func TestNoopRecorderIsSafe(t *testing.T) {
	exerciseRecorder(NoopRecorder{})
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	exerciseRecorder(pr)
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	exerciseRecorder(pr)
	pr.IncPublishAttempt("normal")
	pr.IncPublishResult("degraded", ResultUnreachable)

	require.Equal(t, 2.0, testutil.ToFloat64(pr.publishAttempts.WithLabelValues("normal")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.publishResults.WithLabelValues("normal", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.publishResults.WithLabelValues("degraded", "unreachable")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.commands.WithLabelValues("speak", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.eventsConsumed.WithLabelValues("game-start")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.rescans.WithLabelValues("watch")))
	require.Equal(t, 42.0, testutil.ToFloat64(pr.collectionGames))
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := NewRegistry()
	NewPrometheusRecorder(reg)
	require.NotNil(t, HTTPHandler(reg))
}
