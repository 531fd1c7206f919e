package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the agent. Values may reference
// environment variables with ${VAR} syntax; duration fields are strings in
// time.ParseDuration syntax and are checked by Validate.
type Config struct {
	MQTT           MQTTConfig       `yaml:"mqtt"`
	Device         DeviceConfig     `yaml:"device"`
	RomsDir        string           `yaml:"roms_dir"`
	UpdateInterval string           `yaml:"update_interval"`
	StateFile      string           `yaml:"state_file"`
	EventsDB       string           `yaml:"events_db"`
	PIDFile        string           `yaml:"pid_file"`
	Watch          WatchConfig      `yaml:"watch"`
	Speak          SpeakConfig      `yaml:"speak"`
	Metrics        MetricsConfig    `yaml:"metrics"`
	Logging        LoggingConfig    `yaml:"logging"`
	Supervisor     SupervisorConfig `yaml:"supervisor"`

	// Dir is the directory the config file lives in; artifact paths
	// (state file, journal, PID file) default under it.
	Dir string `yaml:"-"`
}

// MQTTConfig describes the broker connection and topic namespace.
type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DeviceConfig identifies this machine in payloads and discovery configs.
type DeviceConfig struct {
	Name string `yaml:"name"` // defaults to hostname
}

// WatchConfig controls the passive gamelist watcher.
type WatchConfig struct {
	Enabled     *bool  `yaml:"enabled"` // nil -> true
	QuietPeriod string `yaml:"quiet_period"`
}

// SpeakConfig controls the speak command side effect.
type SpeakConfig struct {
	Command string `yaml:"command"`
}

// MetricsConfig controls the Prometheus endpoint of the listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig holds raw logging options; use NormalizeLogLevel and
// NormalizeLogFormat on the fields.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SupervisorConfig tunes the supervisor loop.
type SupervisorConfig struct {
	RestartDelay string `yaml:"restart_delay"`
	DrainBudget  string `yaml:"drain_budget"`
	ChildGrace   string `yaml:"child_grace"`
}

// DefaultPath returns the default config file location
// (~/.config/retropie-ha/config.yaml).
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "retropie-ha", "config.yaml")
}

// Load reads the config file at path (DefaultPath when empty), expands
// environment references, applies defaults and validates. A missing file is
// not an error; it yields pure defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	dir := filepath.Dir(path)
	loadEnvFiles(dir)

	cfg := &Config{Dir: dir}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// first run, defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Dir == "" {
		c.Dir = filepath.Dir(DefaultPath())
	}
	if c.MQTT.Host == "" {
		c.MQTT.Host = "localhost"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "retropie"
	}
	if c.Device.Name == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.Device.Name = host
		} else {
			c.Device.Name = "retropie"
		}
	}
	if c.RomsDir == "" {
		c.RomsDir = "/home/pi/RetroPie/roms"
	}
	if c.UpdateInterval == "" {
		c.UpdateInterval = "30s"
	}
	if c.StateFile == "" {
		c.StateFile = filepath.Join(c.Dir, "state.json")
	}
	if c.EventsDB == "" {
		c.EventsDB = filepath.Join(c.Dir, "events.db")
	}
	if c.PIDFile == "" {
		c.PIDFile = filepath.Join(c.Dir, "retropie-ha.pid")
	}
	if c.Watch.Enabled == nil {
		enabled := true
		c.Watch.Enabled = &enabled
	}
	if c.Watch.QuietPeriod == "" {
		c.Watch.QuietPeriod = "5s"
	}
	if c.Speak.Command == "" {
		c.Speak.Command = "espeak"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9100"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(LogLevelInfo)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = string(LogFormatText)
	}
	if c.Supervisor.RestartDelay == "" {
		c.Supervisor.RestartDelay = "5s"
	}
	if c.Supervisor.DrainBudget == "" {
		c.Supervisor.DrainBudget = "3s"
	}
	if c.Supervisor.ChildGrace == "" {
		c.Supervisor.ChildGrace = "2s"
	}
}

// WatchEnabled reports whether passive gamelist watching is on.
func (c *Config) WatchEnabled() bool {
	return c.Watch.Enabled == nil || *c.Watch.Enabled
}
