package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "retropie_ha"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	publishDuration *prom.HistogramVec
	publishAttempts *prom.CounterVec
	publishResults  *prom.CounterVec
	commands        *prom.CounterVec
	eventsConsumed  *prom.CounterVec
	rescans         *prom.CounterVec
	collectionGames prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.publishDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration of full publish calls including retries",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"})
		pr.publishAttempts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_attempts_total",
			Help:      "Individual broker delivery attempts by publish mode",
		}, []string{"mode"})
		pr.publishResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_results_total",
			Help:      "Terminal publish outcomes by mode",
		}, []string{"mode", "result"})
		pr.commands = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound commands by name and ack status",
		}, []string{"command", "result"})
		pr.eventsConsumed = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Frontend events consumed from the event topics",
		}, []string{"event"})
		pr.rescans = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rescans_total",
			Help:      "Collection rescans by trigger",
		}, []string{"trigger"})
		pr.collectionGames = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_games",
			Help:      "Games counted by the last collection scan",
		})
		reg.MustRegister(pr.publishDuration, pr.publishAttempts, pr.publishResults, pr.commands, pr.eventsConsumed, pr.rescans, pr.collectionGames)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePublishDuration(mode string, d time.Duration) {
	if p == nil || p.publishDuration == nil {
		return
	}
	p.publishDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPublishAttempt(mode string) {
	if p == nil || p.publishAttempts == nil {
		return
	}
	p.publishAttempts.WithLabelValues(mode).Inc()
}

func (p *PrometheusRecorder) IncPublishResult(mode string, result ResultLabel) {
	if p == nil || p.publishResults == nil {
		return
	}
	p.publishResults.WithLabelValues(mode, string(result)).Inc()
}

func (p *PrometheusRecorder) IncCommand(command string, result ResultLabel) {
	if p == nil || p.commands == nil {
		return
	}
	p.commands.WithLabelValues(command, string(result)).Inc()
}

func (p *PrometheusRecorder) IncEventConsumed(event string) {
	if p == nil || p.eventsConsumed == nil {
		return
	}
	p.eventsConsumed.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) IncRescan(trigger string) {
	if p == nil || p.rescans == nil {
		return
	}
	p.rescans.WithLabelValues(trigger).Inc()
}

func (p *PrometheusRecorder) SetCollectionGames(n int) {
	if p == nil || p.collectionGames == nil {
		return
	}
	p.collectionGames.Set(float64(n))
}
