package state

import (
	"path/filepath"
	"strings"
	"time"
)

// Status enumerates machine lifecycle states.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPlaying  Status = "playing"
	StatusShutdown Status = "shutdown"
)

// Event names match the frontend hook vocabulary one to one.
const (
	EventSystemStart  = "system-start"
	EventGameStart    = "game-start"
	EventGameEnd      = "game-end"
	EventSystemSelect = "system-select"
	EventGameSelect   = "game-select"
	EventQuit         = "quit"
)

// KnownEvents lists every event name Apply understands.
var KnownEvents = []string{
	EventSystemStart,
	EventGameStart,
	EventGameEnd,
	EventSystemSelect,
	EventGameSelect,
	EventQuit,
}

// Event is one named occurrence reported by the frontend hooks.
type Event struct {
	Name string
	Args map[string]string
	At   time.Time
}

func (e Event) arg(key string) string {
	if e.Args == nil {
		return ""
	}
	return strings.TrimSpace(e.Args[key])
}

// Counts holds collection numbers for a single system.
type Counts struct {
	Games       int `json:"games"`
	Favorites   int `json:"favorites"`
	KidFriendly int `json:"kid_friendly"`
}

// CollectionStats aggregates gamelist scan results across systems.
type CollectionStats struct {
	TotalGames      int               `json:"total_games"`
	Favorites       int               `json:"favorites"`
	KidFriendly     int               `json:"kid_friendly"`
	LastScanAt      *time.Time        `json:"last_scan_at,omitempty"`
	PerSystemCounts map[string]Counts `json:"per_system_counts,omitempty"`
}

// MachineState is the durable machine/game state. CurrentGame is set exactly
// when Status is playing, and GameStartedAt is set exactly when CurrentGame
// is; Apply maintains both invariants.
type MachineState struct {
	Status          Status          `json:"status"`
	CurrentGame     string          `json:"current_game,omitempty"`
	GameStartedAt   *time.Time      `json:"game_started_at,omitempty"`
	LastUpdatedAt   time.Time       `json:"last_updated_at"`
	CollectionStats CollectionStats `json:"collection_stats"`
}

// DefaultState is the first-run state before any event was applied.
func DefaultState() MachineState {
	return MachineState{Status: StatusIdle}
}

// ApplyResult carries the outcome of one transition.
type ApplyResult struct {
	State   MachineState   // state after the transition
	Payload map[string]any // event-specific fields for the outgoing message
	Note    string         // non-empty for recoverable conditions worth a warning
}

// Apply is the pure transition function. It never fails: malformed or
// insufficient args leave the state unchanged, set Note, and still produce a
// payload with whatever is known.
func Apply(cur MachineState, evt Event) ApplyResult {
	switch evt.Name {
	case EventSystemStart:
		// Unconditional reset, clears stale playing state left by a crash.
		next := cur
		next.Status = StatusIdle
		next.CurrentGame = ""
		next.GameStartedAt = nil
		next.LastUpdatedAt = evt.At
		return ApplyResult{State: next, Payload: map[string]any{}}

	case EventGameStart:
		payload := map[string]any{}
		for _, k := range []string{"system", "emulator", "rom_path", "game_name"} {
			if v := evt.arg(k); v != "" {
				payload[k] = v
			}
		}
		rom := evt.arg("rom_path")
		if rom == "" {
			return ApplyResult{State: cur, Payload: payload, Note: "game-start without rom_path"}
		}
		game := evt.arg("game_name")
		if game == "" {
			game = gameNameFromROM(rom)
			payload["game_name"] = game
		}
		started := evt.At
		next := cur
		next.Status = StatusPlaying
		next.CurrentGame = game
		next.GameStartedAt = &started
		next.LastUpdatedAt = evt.At
		return ApplyResult{State: next, Payload: payload}

	case EventGameEnd:
		if cur.Status != StatusPlaying || cur.GameStartedAt == nil {
			return ApplyResult{State: cur, Payload: map[string]any{}, Note: "game-end without active game"}
		}
		payload := map[string]any{
			"game_name":        cur.CurrentGame,
			"duration_seconds": int(evt.At.Sub(*cur.GameStartedAt).Seconds()),
		}
		next := cur
		next.Status = StatusIdle
		next.CurrentGame = ""
		next.GameStartedAt = nil
		next.LastUpdatedAt = evt.At
		return ApplyResult{State: next, Payload: payload}

	case EventSystemSelect:
		payload := map[string]any{}
		note := ""
		if v := evt.arg("system_name"); v != "" {
			payload["system_name"] = v
		} else {
			note = "system-select without system_name"
		}
		if v := evt.arg("access_type"); v != "" {
			payload["access_type"] = v
		}
		next := cur
		if note == "" {
			next.LastUpdatedAt = evt.At
		}
		return ApplyResult{State: next, Payload: payload, Note: note}

	case EventGameSelect:
		payload := map[string]any{}
		note := ""
		for _, k := range []string{"system", "rom_path", "game_name", "access_type"} {
			if v := evt.arg(k); v != "" {
				payload[k] = v
			}
		}
		if evt.arg("rom_path") == "" {
			note = "game-select without rom_path"
		}
		next := cur
		if note == "" {
			next.LastUpdatedAt = evt.At
		}
		return ApplyResult{State: next, Payload: payload, Note: note}

	case EventQuit:
		payload := map[string]any{}
		if v := evt.arg("quit_mode"); v != "" {
			payload["quit_mode"] = v
		}
		next := cur
		next.Status = StatusShutdown
		next.CurrentGame = ""
		next.GameStartedAt = nil
		next.LastUpdatedAt = evt.At
		return ApplyResult{State: next, Payload: payload}

	default:
		return ApplyResult{State: cur, Payload: map[string]any{}, Note: "unknown event " + evt.Name}
	}
}

// gameNameFromROM derives a display name from the ROM file name when the
// frontend did not pass one.
func gameNameFromROM(romPath string) string {
	base := filepath.Base(romPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
