// Package daemon implements the long-lived listener process. The listener
// owns the subscriber connection to the broker, journals consumed events,
// publishes periodic status snapshots, watches the ROMs tree for catalog
// changes, and answers inbound commands. Game events themselves are applied
// by the short-lived event hooks EmulationStation invokes; the listener picks
// their writes up from the shared state file.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/retropie-ha/retropie-ha/internal/config"
	"github.com/retropie-ha/retropie-ha/internal/eventlog"
	"github.com/retropie-ha/retropie-ha/internal/gamelist"
	"github.com/retropie-ha/retropie-ha/internal/metrics"
	"github.com/retropie-ha/retropie-ha/internal/mqtt"
	"github.com/retropie-ha/retropie-ha/internal/state"
	"github.com/retropie-ha/retropie-ha/internal/telemetry"
)

const (
	// subscriberKeepAlive paces broker pings on the long-lived connection.
	subscriberKeepAlive = 30 * time.Second

	// journalRetention bounds how far back the event journal keeps records;
	// a sweep runs daily.
	journalRetention  = 90 * 24 * time.Hour
	journalPruneEvery = 24 * time.Hour

	// shutdownGrace bounds each teardown step when the listener stops.
	shutdownGrace = 2 * time.Second
)

// Listener wires every long-running component together for one process.
type Listener struct {
	cfg    *config.Config
	rec    metrics.Recorder
	topics mqtt.Topics

	manager   *state.Manager
	publisher *mqtt.Publisher
	catalog   *gamelist.Catalog
	collector *telemetry.Collector
	speaker   *Speaker
	journal   *eventlog.Journal

	workers     *WorkerGroup
	sched       *Scheduler
	watcher     *GamelistWatcher
	dispatcher  *Dispatcher
	metricsSrv  *MetricsServer
	promHandler http.Handler

	// dial is swapped for a stub in tests.
	dial   mqtt.DialFunc
	client mqtt.Client
}

// NewListener builds a listener from configuration.
func NewListener(cfg *config.Config) (*Listener, error) {
	var rec metrics.Recorder = metrics.NoopRecorder{}
	var promHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		rec = metrics.NewPrometheusRecorder(reg)
		promHandler = metrics.HTTPHandler(reg)
	}

	mqttCfg := mqtt.Config{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}

	l := &Listener{
		cfg:         cfg,
		rec:         rec,
		topics:      mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix},
		manager:     state.NewManager(state.NewStore(cfg.StateFile), slog.Default()),
		publisher:   mqtt.NewPublisher(mqttCfg, cfg.Device.Name, slog.Default(), rec),
		catalog:     gamelist.New(cfg.RomsDir, slog.Default()),
		collector:   telemetry.NewCollector(slog.Default()),
		speaker:     NewSpeaker(cfg.Speak.Command),
		workers:     &WorkerGroup{},
		promHandler: promHandler,
		dial:        mqtt.Dial,
	}

	sched, err := NewScheduler()
	if err != nil {
		return nil, err
	}
	l.sched = sched

	l.dispatcher = NewDispatcher(DispatcherConfig{
		Topics:   l.topics,
		Recorder: rec,
		Workers:  l.workers,
		Publish: func(topic string, payload any) error {
			return l.publisher.PublishJSON(topic, payload, false, mqtt.NormalProfile())
		},
		Speak:         l.speaker.Say,
		Rescan:        func() { l.scheduleRescan(metrics.TriggerCommand) },
		PublishStatus: l.publishStatus,
		History:       l.history,
	})

	return l, nil
}

// Run starts every component and blocks until ctx is canceled. It returns an
// error when startup cannot complete; a running listener only stops through
// cancellation.
func (l *Listener) Run(ctx context.Context) error {
	slog.Info("Starting listener",
		"broker", l.cfg.MQTT.Host,
		"topic_prefix", l.cfg.MQTT.TopicPrefix,
		"device", l.cfg.Device.Name)

	journal, err := eventlog.Open(l.cfg.EventsDB)
	if err != nil {
		return fmt.Errorf("open event journal: %w", err)
	}
	l.journal = journal
	defer func() {
		if err := l.journal.Close(); err != nil {
			slog.Error("Failed to close event journal", "error", err)
		}
	}()

	// Boot transition: clear any stale playing state left by a crash, then
	// announce it. The publishes are best effort; a dead broker must not stop
	// the listener from coming up.
	l.bootTransition()

	if err := l.connect(ctx); err != nil {
		return err
	}

	if err := l.scheduleJobs(); err != nil {
		return err
	}
	l.sched.Start()

	l.startWatcher()

	if l.promHandler != nil {
		l.metricsSrv = NewMetricsServer(l.cfg.Metrics.Listen, l.promHandler)
		if err := l.metricsSrv.Start(); err != nil {
			return err
		}
	}

	// First rescan fills the retained collection topic without waiting for a
	// catalog change or a command.
	l.scheduleRescan(metrics.TriggerStartup)

	slog.Info("Listener started",
		"roms_dir", l.cfg.RomsDir,
		"watch", l.cfg.WatchEnabled() && l.watcher != nil,
		"metrics", l.cfg.Metrics.Enabled)

	<-ctx.Done()
	slog.Info("Listener stopping")
	l.shutdown()
	return nil
}

// bootTransition applies system-start and publishes the event plus the
// retained machine status.
func (l *Listener) bootTransition() {
	res, err := l.manager.Apply(state.Event{Name: state.EventSystemStart, At: time.Now()})
	if err != nil {
		slog.Error("Failed to persist boot state", "error", err)
	}

	if err := l.publisher.PublishJSON(l.topics.Event(state.EventSystemStart), res.Payload, false, mqtt.NormalProfile()); err != nil {
		slog.Warn("Failed to publish boot event", "error", err)
	}
	if err := l.publisher.Publish(l.topics.MachineStatus(), string(res.State.Status), true, mqtt.NormalProfile()); err != nil {
		slog.Warn("Failed to publish machine status", "error", err)
	}
}

// connect dials the long-lived subscriber connection. The last-will flips the
// availability topic to offline if this process dies without a clean
// disconnect; every (re)connect flips it back and renews subscriptions, which
// clean sessions drop.
func (l *Listener) connect(ctx context.Context) error {
	mqttCfg := mqtt.Config{
		Host:     l.cfg.MQTT.Host,
		Port:     l.cfg.MQTT.Port,
		Username: l.cfg.MQTT.Username,
		Password: l.cfg.MQTT.Password,
	}
	profile := mqtt.NormalProfile()

	l.client = l.dial(mqttCfg, mqtt.DialOptions{
		ClientID:       mqtt.ClientID(l.cfg.Device.Name),
		CleanSession:   true,
		AutoReconnect:  true,
		ConnectTimeout: profile.ConnectTimeout,
		KeepAlive:      subscriberKeepAlive,
		Will: &mqtt.Will{
			Topic:    l.topics.Availability(),
			Payload:  mqtt.PayloadOffline,
			Retained: true,
		},
		OnConnect:        func(c mqtt.Client) { l.onConnect(ctx, c) },
		OnConnectionLost: func(err error) { slog.Warn("Broker connection lost", "error", err) },
	})

	token := l.client.Connect()
	if !token.WaitTimeout(profile.ConnectTimeout) {
		return fmt.Errorf("broker connect timed out after %s", profile.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	return nil
}

// onConnect runs on every successful connect, the automatic reconnects
// included.
func (l *Listener) onConnect(ctx context.Context, c mqtt.Client) {
	slog.Info("Connected to broker", "broker", l.cfg.MQTT.Host)

	if token := c.Publish(l.topics.Availability(), mqtt.QoSAtLeastOnce, true, mqtt.PayloadOnline); token.WaitTimeout(shutdownGrace) {
		if err := token.Error(); err != nil {
			slog.Warn("Failed to publish availability", "error", err)
		}
	}

	l.subscribe(ctx, c, l.topics.CommandFilter(), func(topic string, payload []byte) {
		started := l.workers.Go(func() { l.dispatcher.Handle(ctx, topic, payload) })
		if !started {
			slog.Warn("Command dropped, listener stopping", "topic", topic)
		}
	})
	l.subscribe(ctx, c, l.topics.EventFilter(), l.onEvent)
}

func (l *Listener) subscribe(ctx context.Context, c mqtt.Client, filter string, handler mqtt.MessageHandler) {
	token := c.Subscribe(filter, mqtt.QoSAtLeastOnce, handler)
	if !token.WaitTimeout(mqtt.NormalProfile().ConnectTimeout) {
		slog.Error("Subscribe confirmation timed out", "filter", filter)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("Subscribe failed", "filter", filter, "error", err)
	}
}

// onEvent journals every event observed on the event topics and refreshes the
// in-memory state, which the event hooks mutate from separate processes.
func (l *Listener) onEvent(topic string, payload []byte) {
	name, ok := l.topics.EventName(topic)
	if !ok {
		return
	}
	l.rec.IncEventConsumed(name)

	if err := l.journal.Append(context.Background(), name, time.Now(), payload); err != nil {
		slog.Warn("Failed to journal event", "event", name, "error", err)
	}
	if err := l.manager.Refresh(); err != nil {
		slog.Warn("Failed to refresh state after event", "event", name, "error", err)
	}
}

func (l *Listener) scheduleJobs() error {
	interval, err := time.ParseDuration(l.cfg.UpdateInterval)
	if err != nil {
		return fmt.Errorf("parse update_interval: %w", err)
	}
	if err := l.sched.Every(interval, "status-publish", func() {
		if err := l.publishStatus(); err != nil {
			slog.Warn("Scheduled status publish failed", "error", err)
		}
	}); err != nil {
		return err
	}

	return l.sched.Every(journalPruneEvery, "journal-prune", func() {
		pruned, err := l.journal.Prune(context.Background(), time.Now().Add(-journalRetention))
		if err != nil {
			slog.Warn("Journal prune failed", "error", err)
			return
		}
		if pruned > 0 {
			slog.Info("Journal pruned", "records", pruned)
		}
	})
}

func (l *Listener) startWatcher() {
	if !l.cfg.WatchEnabled() {
		slog.Info("Gamelist watching disabled by configuration")
		return
	}

	quiet, err := time.ParseDuration(l.cfg.Watch.QuietPeriod)
	if err != nil {
		slog.Warn("Invalid watch quiet period, watching disabled", "error", err)
		return
	}

	watcher, err := NewGamelistWatcher(l.cfg.RomsDir, quiet, func() {
		l.scheduleRescan(metrics.TriggerWatch)
	})
	if err != nil {
		// No passive monitoring on this platform; command-triggered rescans
		// still work.
		slog.Warn("Filesystem notifications unavailable, gamelist watching disabled", "error", err)
		return
	}
	if err := watcher.Start(); err != nil {
		slog.Warn("Gamelist watcher failed to start", "error", err)
		watcher.Stop()
		return
	}
	l.watcher = watcher
}

// publishStatus samples telemetry, merges in the machine state, and publishes
// the retained status snapshot.
func (l *Listener) publishStatus() error {
	if err := l.manager.Refresh(); err != nil {
		slog.Warn("Status publish using possibly stale state", "error", err)
	}
	report := BuildStatus(l.cfg.Device.Name, l.manager.Snapshot(), l.collector.Collect(), time.Now())
	return l.publisher.PublishJSON(l.topics.Status(), report, true, mqtt.NormalProfile())
}

// scheduleRescan hands a collection rescan to a worker so the triggering path
// returns immediately.
func (l *Listener) scheduleRescan(trigger string) {
	started := l.workers.Go(func() { l.rescan(trigger) })
	if !started {
		slog.Warn("Rescan dropped, listener stopping", "trigger", trigger)
	}
}

func (l *Listener) rescan(trigger string) {
	l.rec.IncRescan(trigger)

	stats, err := l.catalog.Scan()
	if err != nil {
		slog.Warn("Collection rescan failed", "trigger", trigger, "error", err)
		return
	}
	if err := l.manager.UpdateCollectionStats(stats); err != nil {
		slog.Warn("Failed to persist collection stats", "error", err)
	}
	l.rec.SetCollectionGames(stats.TotalGames)

	slog.Info("Collection rescan complete",
		"trigger", trigger,
		"games", stats.TotalGames,
		"systems", len(stats.PerSystemCounts))

	if err := l.publisher.PublishJSON(l.topics.GameCollection(), stats, true, mqtt.NormalProfile()); err != nil {
		slog.Warn("Failed to publish collection stats", "error", err)
	}
}

func (l *Listener) history(ctx context.Context, limit int) ([]eventlog.Session, error) {
	return l.journal.RecentSessions(ctx, limit)
}

// shutdown tears components down in reverse start order, each step bounded.
// The retained availability flip to offline is best effort; when running
// supervised the parent repeats it during drain.
func (l *Listener) shutdown() {
	if l.watcher != nil {
		l.watcher.Stop()
	}
	if err := l.sched.Stop(); err != nil {
		slog.Error("Failed to stop scheduler", "error", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := l.workers.StopAndWait(stopCtx); err != nil {
		slog.Warn("Workers did not drain in time", "error", err)
	}

	if l.metricsSrv != nil {
		if err := l.metricsSrv.Stop(stopCtx); err != nil {
			slog.Error("Failed to stop metrics server", "error", err)
		}
	}

	if l.client != nil && l.client.IsConnected() {
		if token := l.client.Publish(l.topics.Availability(), mqtt.QoSAtLeastOnce, true, mqtt.PayloadOffline); token.WaitTimeout(time.Second) {
			if err := token.Error(); err != nil {
				slog.Warn("Failed to publish offline availability", "error", err)
			}
		}
		l.client.Disconnect(250)
	}

	slog.Info("Listener stopped")
}
