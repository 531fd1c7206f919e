// Package supervisor keeps the listener process alive. It owns the liveness
// marker, the startup announcement to the broker, the restart loop around the
// child, and the drain sequence that leaves retained topics in a truthful
// final state before exit.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/retropie-ha/retropie-ha/internal/config"
	"github.com/retropie-ha/retropie-ha/internal/hass"
	"github.com/retropie-ha/retropie-ha/internal/mqtt"
	"github.com/retropie-ha/retropie-ha/internal/retry"
	"github.com/retropie-ha/retropie-ha/internal/state"
	"github.com/retropie-ha/retropie-ha/internal/version"
)

// Supervisor runs the listener as a child process and restarts it whenever
// it dies. It never gives up on a running machine; only startup failures and
// signals end the loop.
type Supervisor struct {
	cfg       *config.Config
	topics    mqtt.Topics
	manager   *state.Manager
	discovery *hass.Discovery

	restartDelay  time.Duration
	drainBudget   time.Duration
	childGrace    time.Duration
	bringUpPolicy retry.Policy

	// Swapped for stubs in tests.
	start       func() (*Child, error)
	publish     func(topic string, payload any, retain bool, profile mqtt.Profile) error
	publishJSON func(topic string, v any, retain bool, profile mqtt.Profile) error
}

// New builds a supervisor from configuration. childArgs is the argument
// vector the listener child is launched with, typically ("listen", config
// flags) so the child sees the same configuration.
func New(cfg *config.Config, childArgs []string) (*Supervisor, error) {
	restartDelay, err := time.ParseDuration(cfg.Supervisor.RestartDelay)
	if err != nil {
		return nil, fmt.Errorf("restart_delay: %w", err)
	}
	drainBudget, err := time.ParseDuration(cfg.Supervisor.DrainBudget)
	if err != nil {
		return nil, fmt.Errorf("drain_budget: %w", err)
	}
	childGrace, err := time.ParseDuration(cfg.Supervisor.ChildGrace)
	if err != nil {
		return nil, fmt.Errorf("child_grace: %w", err)
	}

	mqttCfg := mqtt.Config{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	publisher := mqtt.NewPublisher(mqttCfg, cfg.Device.Name, slog.Default(), nil)

	return &Supervisor{
		cfg:           cfg,
		topics:        topics,
		manager:       state.NewManager(state.NewStore(cfg.StateFile), slog.Default()),
		discovery:     hass.NewDiscovery(cfg.Device.Name, version.Version, topics),
		restartDelay:  restartDelay,
		drainBudget:   drainBudget,
		childGrace:    childGrace,
		bringUpPolicy: retry.DefaultPolicy(),
		start: func() (*Child, error) {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("resolve executable: %w", err)
			}
			return StartChild(exe, childArgs...)
		},
		publish:     publisher.Publish,
		publishJSON: publisher.PublishJSON,
	}, nil
}

// Run supervises until ctx is canceled. The returned error is non-nil only
// when startup fails; a signal-initiated drain returns nil so the process
// exits zero.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := AcquirePIDFile(s.cfg.PIDFile); err != nil {
		return err
	}
	defer RemovePIDFile(s.cfg.PIDFile)

	if err := s.bringUp(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			s.drain(nil)
			return nil
		}

		child, err := s.start()
		if err != nil {
			slog.Error("Failed to start listener", "error", err)
			if !retry.Wait(ctx, s.restartDelay) {
				s.drain(nil)
				return nil
			}
			continue
		}
		slog.Info("Listener running", "pid", child.Pid())

		select {
		case <-ctx.Done():
			s.drain(child)
			return nil
		case <-child.Done():
			slog.Error("Listener exited unexpectedly",
				"exit_code", child.ExitCode(),
				"error", child.ExitError(),
				"output", child.OutputTail())
		}

		slog.Info("Restarting listener", "delay", s.restartDelay)
		if !retry.Wait(ctx, s.restartDelay) {
			s.drain(nil)
			return nil
		}
	}
}

// bringUp announces the device before the first child starts: availability
// online plus the discovery configs, so Home Assistant knows the sensors
// even when the broker was down at boot. The whole batch is retried with
// exponential backoff; giving up here fails startup.
func (s *Supervisor) bringUp(ctx context.Context) error {
	policy := s.bringUpPolicy

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		lastErr = s.announce()
		if lastErr == nil {
			slog.Info("Device announced", "device", s.cfg.Device.Name)
			return nil
		}
		slog.Warn("Device announcement failed",
			"attempt", attempt, "attempts", policy.Attempts, "error", lastErr)
		if attempt < policy.Attempts && !retry.Wait(ctx, policy.Delay(attempt)) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("announce device after %d attempts: %w", policy.Attempts, lastErr)
}

// announce makes one announcement pass. Single delivery attempt per topic;
// bringUp owns the retries so backoff spans the whole batch.
func (s *Supervisor) announce() error {
	profile := mqtt.Profile{
		Name:           mqtt.ModeNormal,
		Attempts:       1,
		ConnectTimeout: 15 * time.Second,
		PublishTimeout: 5 * time.Second,
	}

	if err := s.publish(s.topics.Availability(), mqtt.PayloadOnline, true, profile); err != nil {
		return fmt.Errorf("availability: %w", err)
	}
	for _, ann := range s.discovery.Announcements() {
		if err := s.publishJSON(ann.Topic, ann.Sensor, true, profile); err != nil {
			return fmt.Errorf("discovery %s: %w", ann.Sensor.UniqueID, err)
		}
	}
	return nil
}

// drain runs the shutdown sequence: commit the shutdown state, tell the
// broker we are gone within the drain budget, then stop the child. Every
// step is best effort; drain always completes in bounded wall clock time.
func (s *Supervisor) drain(child *Child) {
	started := time.Now()
	slog.Info("Draining")

	res, err := s.manager.Apply(state.Event{Name: state.EventQuit})
	if err != nil {
		slog.Warn("Failed to persist shutdown state", "error", err)
	}

	// Availability first: if the budget runs out, Home Assistant still
	// marks the device offline.
	if err := s.publish(s.topics.Availability(), mqtt.PayloadOffline, true, mqtt.DegradedProfile()); err != nil {
		slog.Warn("Offline publish failed during drain", "error", err)
	}
	if time.Since(started) < s.drainBudget {
		if err := s.publish(s.topics.MachineStatus(), string(res.State.Status), true, mqtt.DegradedProfile()); err != nil {
			slog.Warn("Machine status publish failed during drain", "error", err)
		}
	} else {
		slog.Warn("Drain budget spent, skipping machine status publish", "budget", s.drainBudget)
	}

	if child != nil {
		child.Terminate(s.childGrace)
	}
	slog.Info("Drain complete", "elapsed", time.Since(started).Round(time.Millisecond))
}
