package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/retropie-ha/retropie-ha/internal/config"
	"github.com/retropie-ha/retropie-ha/internal/daemon"
	"github.com/retropie-ha/retropie-ha/internal/eventlog"
	"github.com/retropie-ha/retropie-ha/internal/gamelist"
	"github.com/retropie-ha/retropie-ha/internal/hass"
	"github.com/retropie-ha/retropie-ha/internal/mqtt"
	"github.com/retropie-ha/retropie-ha/internal/state"
	"github.com/retropie-ha/retropie-ha/internal/supervisor"
	"github.com/retropie-ha/retropie-ha/internal/telemetry"
	"github.com/retropie-ha/retropie-ha/internal/version"
)

var CLI struct {
	Config   string `short:"c" help:"Configuration file path" type:"path"`
	LogLevel string `help:"Override the configured log level (debug|info|warn|error)"`

	Supervise struct{} `cmd:"" help:"Announce the device and keep the listener running"`
	Listen    struct{} `cmd:"" help:"Run the listener process (normally launched by supervise)"`

	Event struct {
		Name string   `arg:"" help:"Event name (system-start, game-start, game-end, system-select, game-select, quit)"`
		Args []string `arg:"" optional:"" help:"Event arguments, e.g. game-start <system> <emulator> <rom_path>"`
	} `cmd:"" help:"Apply a frontend event and publish it"`

	Status   struct{} `cmd:"" help:"Publish a status snapshot now"`
	Register struct{} `cmd:"" help:"Publish Home Assistant discovery configs"`
	Rescan   struct{} `cmd:"" help:"Rescan gamelists and publish collection stats"`
	State    struct{} `cmd:"" help:"Print the durable machine state"`

	History struct {
		Limit int `help:"Number of sessions to print" default:"10"`
	} `cmd:"" help:"Print recent play sessions from the event journal"`

	Version struct{} `cmd:"" help:"Print the version"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("retropie-ha"),
		kong.Description("RetroPie to Home Assistant MQTT agent"),
		kong.UsageOnError(),
	)

	if ctx.Command() == "version" {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogging(cfg)

	switch ctx.Command() {
	case "supervise":
		err = runSupervise(cfg)
	case "listen":
		err = runListen(cfg)
	case "event <name>", "event <name> <args>":
		err = runEvent(cfg, CLI.Event.Name, CLI.Event.Args)
	case "status":
		err = runStatus(cfg)
	case "register":
		err = runRegister(cfg)
	case "rescan":
		err = runRescan(cfg)
	case "state":
		err = runState(cfg)
	case "history":
		err = runHistory(cfg, CLI.History.Limit)
	default:
		err = fmt.Errorf("unhandled command %q", ctx.Command())
	}
	if err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) {
	level := config.NormalizeLogLevel(cfg.Logging.Level)
	if CLI.LogLevel != "" {
		level = config.NormalizeLogLevel(CLI.LogLevel)
	}
	opts := &slog.HandlerOptions{Level: level.Slog()}

	var handler slog.Handler
	if config.NormalizeLogFormat(cfg.Logging.Format) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func mqttConfig(cfg *config.Config) mqtt.Config {
	return mqtt.Config{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}
}

func runSupervise(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	childArgs := []string{"listen"}
	if CLI.Config != "" {
		childArgs = append(childArgs, "--config", CLI.Config)
	}
	if CLI.LogLevel != "" {
		childArgs = append(childArgs, "--log-level", CLI.LogLevel)
	}

	sup, err := supervisor.New(cfg, childArgs)
	if err != nil {
		return err
	}
	return sup.Run(ctx)
}

func runListen(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	listener, err := daemon.NewListener(cfg)
	if err != nil {
		return err
	}
	return listener.Run(ctx)
}

// runEvent is the hook entry point EmulationStation scripts call. It applies
// the event to the durable state, then publishes the event message plus the
// retained machine status and status snapshot.
func runEvent(cfg *config.Config, name string, rawArgs []string) error {
	args, err := eventArgs(name, rawArgs)
	if err != nil {
		return err
	}

	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	manager := state.NewManager(state.NewStore(cfg.StateFile), slog.Default())
	publisher := mqtt.NewPublisher(mqttConfig(cfg), cfg.Device.Name, slog.Default(), nil)

	// Resolve catalog metadata before the transition so the event payload
	// carries the display name EmulationStation shows.
	var meta gamelist.Metadata
	var haveMeta bool
	if name == state.EventGameStart {
		catalog := gamelist.New(cfg.RomsDir, slog.Default())
		if m, ok := catalog.Lookup(args["system"], args["rom_path"]); ok {
			meta, haveMeta = m, true
			if m.Name != "" {
				args["game_name"] = m.Name
			}
		}
	}

	res, err := manager.Apply(state.Event{Name: name, Args: args})
	if err != nil {
		// The broker must still hear about the event even when the durable
		// write failed.
		slog.Warn("Failed to persist state", "error", err)
	}

	payload := map[string]any{
		"timestamp":   time.Now().Unix(),
		"device_name": cfg.Device.Name,
		"event":       name,
	}
	for k, v := range res.Payload {
		payload[k] = v
	}
	if haveMeta {
		for k, v := range meta.Fields() {
			payload[k] = v
		}
	}

	profile := mqtt.NormalProfile()
	if err := publisher.PublishJSON(topics.Event(name), payload, false, profile); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	if err := publisher.Publish(topics.MachineStatus(), string(res.State.Status), true, profile); err != nil {
		slog.Warn("Failed to publish machine status", "error", err)
	}
	return publishStatusSnapshot(cfg, manager, publisher, topics)
}

// eventArgs validates the hook argument vector and maps it onto the named
// event arguments the state machine understands.
func eventArgs(name string, args []string) (map[string]string, error) {
	m := map[string]string{}
	switch name {
	case state.EventGameStart:
		if len(args) < 3 {
			return nil, fmt.Errorf("game-start needs <system> <emulator> <rom_path>")
		}
		m["system"], m["emulator"], m["rom_path"] = args[0], args[1], args[2]

	case state.EventSystemSelect:
		if len(args) < 1 {
			return nil, fmt.Errorf("system-select needs <system>")
		}
		m["system_name"] = args[0]
		if len(args) > 1 {
			m["access_type"] = args[1]
		}

	case state.EventGameSelect:
		if len(args) < 2 {
			return nil, fmt.Errorf("game-select needs <system> <rom_path>")
		}
		m["system"], m["rom_path"] = args[0], args[1]
		if len(args) > 2 {
			m["game_name"] = args[2]
		}
		if len(args) > 3 {
			m["access_type"] = args[3]
		}

	case state.EventQuit:
		if len(args) > 0 {
			m["quit_mode"] = args[0]
		}

	case state.EventSystemStart, state.EventGameEnd:
		// no arguments

	default:
		return nil, fmt.Errorf("unknown event %q (known: %s)", name, strings.Join(state.KnownEvents, ", "))
	}
	return m, nil
}

func runStatus(cfg *config.Config) error {
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	manager := state.NewManager(state.NewStore(cfg.StateFile), slog.Default())
	publisher := mqtt.NewPublisher(mqttConfig(cfg), cfg.Device.Name, slog.Default(), nil)
	return publishStatusSnapshot(cfg, manager, publisher, topics)
}

func publishStatusSnapshot(cfg *config.Config, manager *state.Manager, publisher *mqtt.Publisher, topics mqtt.Topics) error {
	collector := telemetry.NewCollector(slog.Default())
	report := daemon.BuildStatus(cfg.Device.Name, manager.Snapshot(), collector.Collect(), time.Now())
	return publisher.PublishJSON(topics.Status(), report, true, mqtt.NormalProfile())
}

func runRegister(cfg *config.Config) error {
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	publisher := mqtt.NewPublisher(mqttConfig(cfg), cfg.Device.Name, slog.Default(), nil)
	discovery := hass.NewDiscovery(cfg.Device.Name, version.Version, topics)

	profile := mqtt.NormalProfile()
	if err := publisher.Publish(topics.Availability(), mqtt.PayloadOnline, true, profile); err != nil {
		return fmt.Errorf("availability: %w", err)
	}
	for _, ann := range discovery.Announcements() {
		if err := publisher.PublishJSON(ann.Topic, ann.Sensor, true, profile); err != nil {
			return fmt.Errorf("discovery %s: %w", ann.Sensor.UniqueID, err)
		}
		slog.Info("Discovery config published", "sensor", ann.Sensor.UniqueID)
	}
	return nil
}

func runRescan(cfg *config.Config) error {
	catalog := gamelist.New(cfg.RomsDir, slog.Default())
	stats, err := catalog.Scan()
	if err != nil {
		return err
	}

	manager := state.NewManager(state.NewStore(cfg.StateFile), slog.Default())
	if err := manager.UpdateCollectionStats(stats); err != nil {
		slog.Warn("Failed to persist collection stats", "error", err)
	}
	slog.Info("Collection rescan complete",
		"total_games", stats.TotalGames,
		"favorites", stats.Favorites,
		"kid_friendly", stats.KidFriendly)

	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	publisher := mqtt.NewPublisher(mqttConfig(cfg), cfg.Device.Name, slog.Default(), nil)
	return publisher.PublishJSON(topics.GameCollection(), stats, true, mqtt.NormalProfile())
}

func runState(cfg *config.Config) error {
	st, err := state.NewStore(cfg.StateFile).LoadWithRetry(3, 50*time.Millisecond)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runHistory(cfg *config.Config, limit int) error {
	journal, err := eventlog.Open(cfg.EventsDB)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := journal.RecentSessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	out, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
