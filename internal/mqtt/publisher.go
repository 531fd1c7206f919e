package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/retropie-ha/retropie-ha/internal/metrics"
	"github.com/retropie-ha/retropie-ha/internal/retry"
)

// Publish modes, used in logs and metric labels.
const (
	ModeNormal   = "normal"
	ModeDegraded = "degraded"
)

// Profile bounds one delivery call: attempt count, per-stage confirmation
// timeouts and the backoff between attempts.
type Profile struct {
	Name           string
	Attempts       int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Backoff        retry.Policy
	Probe          bool // raw reachability check before dialing
	ProbeTimeout   time.Duration
}

// NormalProfile is the default delivery profile: five attempts with
// exponential backoff, generous confirmation timeouts.
func NormalProfile() Profile {
	return Profile{
		Name:           ModeNormal,
		Attempts:       5,
		ConnectTimeout: 15 * time.Second,
		PublishTimeout: 5 * time.Second,
		Backoff:        retry.Policy{Mode: retry.BackoffExponential, Initial: 2 * time.Second, Max: 60 * time.Second, Attempts: 5},
	}
}

// DegradedProfile is the shutdown-path profile. The process must exit
// quickly, so delivery is best effort within a bounded time: one attempt,
// tight timeouts, and a reachability probe that skips the protocol handshake
// entirely when the network is already gone.
func DegradedProfile() Profile {
	return Profile{
		Name:           ModeDegraded,
		Attempts:       1,
		ConnectTimeout: 2 * time.Second,
		PublishTimeout: time.Second,
		Probe:          true,
		ProbeTimeout:   time.Second,
	}
}

// Publisher delivers one message per call with an explicit result, tolerating
// transient broker or network unavailability without blocking indefinitely.
// Every call dials a fresh client identity, so concurrently in-flight
// publishes never share a broker session.
type Publisher struct {
	cfg    Config
	device string
	log    *slog.Logger
	rec    metrics.Recorder
	dial   DialFunc
	probe  func(addr string, timeout time.Duration) error
}

// NewPublisher returns a publisher for the broker in cfg. The device name
// feeds client identities; rec may be nil.
func NewPublisher(cfg Config, device string, log *slog.Logger, rec metrics.Recorder) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Publisher{cfg: cfg, device: device, log: log, rec: rec, dial: Dial, probe: probeBroker}
}

// Publish delivers payload to topic at QoS 1. It returns nil once the broker
// confirmed the message, or the last attempt's error after the profile's
// attempt budget is spent. It never retries forever.
func (p *Publisher) Publish(topic string, payload any, retain bool, profile Profile) error {
	start := time.Now()
	defer func() {
		p.rec.ObservePublishDuration(profile.Name, time.Since(start))
	}()

	if profile.Attempts < 1 {
		profile.Attempts = 1
	}

	if profile.Probe {
		if err := p.probe(p.cfg.Addr(), profile.ProbeTimeout); err != nil {
			p.log.Warn("broker unreachable, skipping publish",
				"topic", topic, "broker", p.cfg.Addr(), "error", err)
			p.rec.IncPublishResult(profile.Name, metrics.ResultUnreachable)
			return fmt.Errorf("broker %s unreachable: %w", p.cfg.Addr(), err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= profile.Attempts; attempt++ {
		p.rec.IncPublishAttempt(profile.Name)
		err := p.attempt(topic, payload, retain, profile)
		if err == nil {
			p.rec.IncPublishResult(profile.Name, metrics.ResultSuccess)
			return nil
		}
		lastErr = err
		p.log.Warn("publish attempt failed",
			"topic", topic, "mode", profile.Name,
			"attempt", attempt, "attempts", profile.Attempts, "error", err)
		if attempt < profile.Attempts {
			time.Sleep(profile.Backoff.Delay(attempt))
		}
	}

	p.rec.IncPublishResult(profile.Name, metrics.ResultError)
	err := fmt.Errorf("publish %s failed after %d attempts: %w", topic, profile.Attempts, lastErr)
	if profile.Name == ModeDegraded {
		p.log.Warn("publish abandoned", "topic", topic, "mode", profile.Name, "error", lastErr)
	} else {
		p.log.Error("publish failed", "topic", topic, "mode", profile.Name, "error", lastErr)
	}
	return err
}

// attempt runs one connect/publish/disconnect cycle with a throwaway client.
// Confirmations come from asynchronous tokens; the immediate return value of
// Connect or Publish is never trusted.
func (p *Publisher) attempt(topic string, payload any, retain bool, profile Profile) error {
	client := p.dial(p.cfg, DialOptions{
		ClientID:       ClientID(p.device),
		CleanSession:   true,
		ConnectTimeout: profile.ConnectTimeout,
	})
	defer client.Disconnect(250)

	connect := client.Connect()
	if !connect.WaitTimeout(profile.ConnectTimeout) {
		return fmt.Errorf("connect confirmation timed out after %s", profile.ConnectTimeout)
	}
	if err := connect.Error(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	publish := client.Publish(topic, QoSAtLeastOnce, retain, payload)
	if !publish.WaitTimeout(profile.PublishTimeout) {
		return fmt.Errorf("publish confirmation timed out after %s", profile.PublishTimeout)
	}
	if err := publish.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishJSON marshals v and delivers it via Publish. The client library only
// accepts string and byte payloads, so structured payloads funnel through
// here.
func (p *Publisher) PublishJSON(topic string, v any, retain bool, profile Profile) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return p.Publish(topic, raw, retain, profile)
}

// probeBroker is the cheap reachability check: a raw TCP dial without the
// protocol handshake.
func probeBroker(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}
