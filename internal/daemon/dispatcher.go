package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/retropie-ha/retropie-ha/internal/eventlog"
	"github.com/retropie-ha/retropie-ha/internal/metrics"
	"github.com/retropie-ha/retropie-ha/internal/mqtt"
)

// speakSentinel triggers speaking of previously buffered text.
const speakSentinel = "SPEAK"

const defaultHistoryLimit = 10

// Ack statuses on command response topics.
const (
	ackSuccess = "success"
	ackError   = "error"
)

// DispatcherConfig wires the dispatcher to the listener's collaborators.
// Publish delivers one non-retained QoS 1 message; the remaining funcs
// perform the per-command side effects.
type DispatcherConfig struct {
	Topics   mqtt.Topics
	Recorder metrics.Recorder
	Workers  *WorkerGroup

	Publish       func(topic string, payload any) error
	Speak         func(text string) error
	Rescan        func()
	PublishStatus func() error
	History       func(ctx context.Context, limit int) ([]eventlog.Session, error)
}

// Dispatcher handles inbound command messages. A command payload may be a
// bare sentinel token, a JSON object with a named field, or raw text; all
// three forms are accepted. Every command is answered with exactly one
// acknowledgment on its response topic, errors included. A malformed command
// can never take the listener down.
type Dispatcher struct {
	cfg DispatcherConfig

	// buffered holds per-command text set by a raw-text payload and consumed
	// by the matching sentinel.
	mu       sync.Mutex
	buffered map[string]string
}

// NewDispatcher returns a dispatcher for the given wiring.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	return &Dispatcher{
		cfg:      cfg,
		buffered: map[string]string{},
	}
}

// Handle processes one inbound message from the command topic filter.
// Response echoes and malformed topics are ignored without an ack.
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) {
	name, ok := d.cfg.Topics.CommandName(topic)
	if !ok {
		return
	}

	var result metrics.ResultLabel
	switch name {
	case "speak":
		result = d.handleSpeak(payload)
	case "rescan":
		result = d.handleRescan()
	case "status":
		result = d.handleStatus()
	case "history":
		result = d.handleHistory(ctx, payload)
	default:
		slog.Warn("Unknown command received", "command", name)
		d.ack(name, ackError, map[string]any{"message": "unknown command: " + name})
		result = metrics.ResultError
	}
	d.cfg.Recorder.IncCommand(name, result)
}

func (d *Dispatcher) handleSpeak(payload []byte) metrics.ResultLabel {
	text := strings.TrimSpace(string(payload))
	switch {
	case text == "":
		d.ack("speak", ackError, map[string]any{"message": "empty payload"})
		return metrics.ResultError

	case text == speakSentinel:
		buffered := d.takeBuffered("speak")
		if buffered == "" {
			d.ack("speak", ackError, map[string]any{"message": "no text buffered"})
			return metrics.ResultError
		}
		d.sayAsync(buffered)
		d.ack("speak", ackSuccess, map[string]any{"spoken": buffered})
		return metrics.ResultSuccess

	case strings.HasPrefix(text, "{"):
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			d.ack("speak", ackError, map[string]any{"message": "invalid json: " + err.Error()})
			return metrics.ResultError
		}
		if strings.TrimSpace(req.Text) == "" {
			d.ack("speak", ackError, map[string]any{"message": "missing text field"})
			return metrics.ResultError
		}
		d.sayAsync(req.Text)
		d.ack("speak", ackSuccess, map[string]any{"spoken": req.Text})
		return metrics.ResultSuccess

	default:
		d.setBuffered("speak", text)
		d.ack("speak", ackSuccess, map[string]any{"message": "text buffered"})
		return metrics.ResultSuccess
	}
}

func (d *Dispatcher) handleRescan() metrics.ResultLabel {
	d.cfg.Rescan()
	d.ack("rescan", ackSuccess, map[string]any{"message": "rescan scheduled"})
	return metrics.ResultSuccess
}

func (d *Dispatcher) handleStatus() metrics.ResultLabel {
	if err := d.cfg.PublishStatus(); err != nil {
		d.ack("status", ackError, map[string]any{"message": err.Error()})
		return metrics.ResultError
	}
	d.ack("status", ackSuccess, map[string]any{"message": "status published"})
	return metrics.ResultSuccess
}

func (d *Dispatcher) handleHistory(ctx context.Context, payload []byte) metrics.ResultLabel {
	limit := defaultHistoryLimit
	text := strings.TrimSpace(string(payload))
	switch {
	case text == "":
		// default limit
	case strings.HasPrefix(text, "{"):
		var req struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			d.ack("history", ackError, map[string]any{"message": "invalid json: " + err.Error()})
			return metrics.ResultError
		}
		if req.Limit > 0 {
			limit = req.Limit
		}
	default:
		if n, err := strconv.Atoi(text); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := d.cfg.History(ctx, limit)
	if err != nil {
		d.ack("history", ackError, map[string]any{"message": err.Error()})
		return metrics.ResultError
	}
	if sessions == nil {
		sessions = []eventlog.Session{}
	}
	d.ack("history", ackSuccess, map[string]any{"count": len(sessions), "sessions": sessions})
	return metrics.ResultSuccess
}

// ack publishes the acknowledgment off the message-handling path.
func (d *Dispatcher) ack(command, status string, extra map[string]any) {
	payload := map[string]any{
		"timestamp": time.Now().Unix(),
		"status":    status,
	}
	for k, v := range extra {
		payload[k] = v
	}

	topic := d.cfg.Topics.CommandResponse(command)
	started := d.cfg.Workers.Go(func() {
		if err := d.cfg.Publish(topic, payload); err != nil {
			slog.Warn("Failed to publish command ack", "command", command, "error", err)
		}
	})
	if !started {
		slog.Warn("Command ack dropped, listener stopping", "command", command)
	}
}

func (d *Dispatcher) sayAsync(text string) {
	started := d.cfg.Workers.Go(func() {
		if err := d.cfg.Speak(text); err != nil {
			slog.Warn("Speech failed", "error", err)
		}
	})
	if !started {
		slog.Warn("Speech dropped, listener stopping")
	}
}

func (d *Dispatcher) setBuffered(command, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffered[command] = text
}

func (d *Dispatcher) takeBuffered(command string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := d.buffered[command]
	delete(d.buffered, command)
	return text
}
