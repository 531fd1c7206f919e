package metrics

import "time"

// ResultLabel enumerates outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess     ResultLabel = "success"
	ResultError       ResultLabel = "error"
	ResultUnreachable ResultLabel = "unreachable"
)

// Rescan trigger labels.
const (
	TriggerWatch   = "watch"
	TriggerCommand = "command"
	TriggerStartup = "startup"
)

// Recorder defines observability hooks for the agent. Implementations may
// forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil
// receivers when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObservePublishDuration(mode string, d time.Duration)
	IncPublishAttempt(mode string)
	IncPublishResult(mode string, result ResultLabel)
	IncCommand(command string, result ResultLabel)
	IncEventConsumed(event string)
	IncRescan(trigger string)
	SetCollectionGames(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePublishDuration(string, time.Duration) {}
func (NoopRecorder) IncPublishAttempt(string)                     {}
func (NoopRecorder) IncPublishResult(string, ResultLabel)         {}
func (NoopRecorder) IncCommand(string, ResultLabel)               {}
func (NoopRecorder) IncEventConsumed(string)                      {}
func (NoopRecorder) IncRescan(string)                             {}
func (NoopRecorder) SetCollectionGames(int)                       {}
