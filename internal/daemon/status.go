package daemon

import (
	"time"

	"github.com/retropie-ha/retropie-ha/internal/state"
	"github.com/retropie-ha/retropie-ha/internal/telemetry"
)

// StatusReport is the retained status snapshot: machine state merged with
// current telemetry. The Home Assistant sensor templates read their values
// out of this document, so field names here are part of the wire contract.
type StatusReport struct {
	Timestamp           int64            `json:"timestamp"`
	DeviceName          string           `json:"device_name"`
	Status              state.Status     `json:"status"`
	CurrentGame         string           `json:"current_game,omitempty"`
	GameDurationSeconds int64            `json:"game_duration_seconds,omitempty"`
	CPUTemp             float64          `json:"cpu_temp"`
	GPUTemp             float64          `json:"gpu_temp"`
	UptimeSeconds       int64            `json:"uptime_seconds"`
	LoadAvg             [3]float64       `json:"load_avg"`
	Memory              telemetry.Memory `json:"memory"`
}

// BuildStatus assembles a status report from the current machine state and a
// telemetry sample.
func BuildStatus(device string, st state.MachineState, tel telemetry.Telemetry, now time.Time) StatusReport {
	report := StatusReport{
		Timestamp:     now.Unix(),
		DeviceName:    device,
		Status:        st.Status,
		CurrentGame:   st.CurrentGame,
		CPUTemp:       tel.CPUTemp,
		GPUTemp:       tel.GPUTemp,
		UptimeSeconds: tel.UptimeSeconds,
		LoadAvg:       tel.LoadAvg,
		Memory:        tel.Memory,
	}
	if st.Status == state.StatusPlaying && st.GameStartedAt != nil {
		report.GameDurationSeconds = int64(now.Sub(*st.GameStartedAt).Seconds())
	}
	return report
}
