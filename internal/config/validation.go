package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the invariants later components rely on and returns the
// first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MQTT.Host) == "" {
		return fmt.Errorf("mqtt.host must not be empty")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port)
	}
	prefix := c.MQTT.TopicPrefix
	if strings.ContainsAny(prefix, "+#") {
		return fmt.Errorf("mqtt.topic_prefix %q must not contain wildcards", prefix)
	}
	if strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("mqtt.topic_prefix %q must not start or end with '/'", prefix)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"update_interval", c.UpdateInterval},
		{"watch.quiet_period", c.Watch.QuietPeriod},
		{"supervisor.restart_delay", c.Supervisor.RestartDelay},
		{"supervisor.drain_budget", c.Supervisor.DrainBudget},
		{"supervisor.child_grace", c.Supervisor.ChildGrace},
	}
	for _, d := range durations {
		if err := validDuration(d.name, d.value); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return fmt.Errorf("metrics.listen required when metrics enabled")
	}
	if _, err := logLevelNormalizer.NormalizeWithError(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := logFormatNormalizer.NormalizeWithError(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	return nil
}

func validDuration(name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return nil
}
