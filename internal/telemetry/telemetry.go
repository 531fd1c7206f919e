package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Telemetry is one snapshot of host health. Zero values mean the probe was
// unavailable.
type Telemetry struct {
	CPUTemp       float64    `json:"cpu_temp"`
	GPUTemp       float64    `json:"gpu_temp"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	LoadAvg       [3]float64 `json:"load_avg"`
	Memory        Memory     `json:"memory"`
}

// Memory reports host memory in megabytes.
type Memory struct {
	TotalMB int64 `json:"total_mb"`
	UsedMB  int64 `json:"used_mb"`
	FreeMB  int64 `json:"free_mb"`
}

// Collector reads host telemetry from the usual Raspberry Pi sources. Every
// probe degrades independently: a missing sensor logs one warning and leaves
// its field zero. Collect never fails.
type Collector struct {
	log *slog.Logger

	thermalPath string
	uptimePath  string
	loadavgPath string
	meminfoPath string
	vcgencmd    func() (string, error)
}

// NewCollector returns a collector wired to the live system paths.
func NewCollector(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		log:         log,
		thermalPath: "/sys/class/thermal/thermal_zone0/temp",
		uptimePath:  "/proc/uptime",
		loadavgPath: "/proc/loadavg",
		meminfoPath: "/proc/meminfo",
		vcgencmd:    runVcgencmd,
	}
}

// Collect gathers a best-effort snapshot.
func (c *Collector) Collect() Telemetry {
	var t Telemetry

	if temp, err := c.cpuTemp(); err != nil {
		c.log.Warn("cpu temperature unavailable", "error", err)
	} else {
		t.CPUTemp = temp
	}

	if out, err := c.vcgencmd(); err != nil {
		c.log.Warn("gpu temperature unavailable", "error", err)
	} else if temp, err := ParseVcgencmdTemp(out); err != nil {
		c.log.Warn("gpu temperature unavailable", "error", err)
	} else {
		t.GPUTemp = temp
	}

	if data, err := os.ReadFile(c.uptimePath); err != nil {
		c.log.Warn("uptime unavailable", "error", err)
	} else if up, err := ParseUptime(string(data)); err != nil {
		c.log.Warn("uptime unavailable", "error", err)
	} else {
		t.UptimeSeconds = up
	}

	if data, err := os.ReadFile(c.loadavgPath); err != nil {
		c.log.Warn("load averages unavailable", "error", err)
	} else if load, err := ParseLoadAvg(string(data)); err != nil {
		c.log.Warn("load averages unavailable", "error", err)
	} else {
		t.LoadAvg = load
	}

	if data, err := os.ReadFile(c.meminfoPath); err != nil {
		c.log.Warn("memory info unavailable", "error", err)
	} else if mem, err := ParseMeminfo(string(data)); err != nil {
		c.log.Warn("memory info unavailable", "error", err)
	} else {
		t.Memory = mem
	}

	return t
}

// cpuTemp prefers the kernel thermal zone and falls back to vcgencmd, which
// is all the older firmware images offer.
func (c *Collector) cpuTemp() (float64, error) {
	data, err := os.ReadFile(c.thermalPath)
	if err == nil {
		return ParseThermalZone(string(data))
	}
	out, verr := c.vcgencmd()
	if verr != nil {
		return 0, fmt.Errorf("thermal zone: %w", err)
	}
	return ParseVcgencmdTemp(out)
}

func runVcgencmd() (string, error) {
	out, err := exec.Command("vcgencmd", "measure_temp").Output()
	if err != nil {
		return "", fmt.Errorf("vcgencmd measure_temp: %w", err)
	}
	return string(out), nil
}

// ParseThermalZone parses millidegrees from a sysfs thermal_zone reading.
func ParseThermalZone(s string) (float64, error) {
	raw := strings.TrimSpace(s)
	milli, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("thermal zone value %q: %w", raw, err)
	}
	return milli / 1000, nil
}

// ParseVcgencmdTemp parses the temp=48.3'C format printed by vcgencmd.
func ParseVcgencmdTemp(s string) (float64, error) {
	raw := strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(raw, "temp=")
	if !ok {
		return 0, fmt.Errorf("unexpected vcgencmd output %q", raw)
	}
	rest, _, _ = strings.Cut(rest, "'")
	temp, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, fmt.Errorf("vcgencmd temperature %q: %w", rest, err)
	}
	return temp, nil
}

// ParseUptime parses the first field of /proc/uptime into whole seconds.
func ParseUptime(s string) (int64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty uptime reading")
	}
	up, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("uptime %q: %w", fields[0], err)
	}
	return int64(up), nil
}

// ParseLoadAvg parses the three load averages from /proc/loadavg.
func ParseLoadAvg(s string) ([3]float64, error) {
	var load [3]float64
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return load, fmt.Errorf("short loadavg reading %q", strings.TrimSpace(s))
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return load, fmt.Errorf("loadavg field %q: %w", fields[i], err)
		}
		load[i] = v
	}
	return load, nil
}

// ParseMeminfo extracts totals from /proc/meminfo. Used is computed against
// MemAvailable, matching what free(1) reports as effectively used.
func ParseMeminfo(s string) (Memory, error) {
	var totalKB, availableKB int64
	var haveTotal, haveAvailable bool

	for _, line := range strings.Split(s, "\n") {
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch name {
		case "MemTotal":
			totalKB, haveTotal = v, true
		case "MemAvailable":
			availableKB, haveAvailable = v, true
		}
	}
	if !haveTotal || !haveAvailable {
		return Memory{}, fmt.Errorf("meminfo missing MemTotal or MemAvailable")
	}

	totalMB := totalKB / 1024
	freeMB := availableKB / 1024
	return Memory{TotalMB: totalMB, UsedMB: totalMB - freeMB, FreeMB: freeMB}, nil
}
