package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func requireInvariant(t *testing.T, st MachineState) {
	t.Helper()
	require.Equal(t, st.Status == StatusPlaying, st.CurrentGame != "",
		"current game must be set exactly while playing: %+v", st)
	require.Equal(t, st.CurrentGame != "", st.GameStartedAt != nil,
		"start time must be set exactly while a game is set: %+v", st)
}

func TestGameStartThenEnd(t *testing.T) {
	st := DefaultState()

	res := Apply(st, Event{
		Name: EventGameStart,
		Args: map[string]string{"system": "snes", "emulator": "lr-snes9x", "rom_path": "/roms/snes/smw.sfc", "game_name": "Super Mario World"},
		At:   t0,
	})
	require.Empty(t, res.Note)
	require.Equal(t, StatusPlaying, res.State.Status)
	require.Equal(t, "Super Mario World", res.State.CurrentGame)
	require.NotNil(t, res.State.GameStartedAt)
	require.True(t, res.State.GameStartedAt.Equal(t0))
	require.Equal(t, "snes", res.Payload["system"])
	require.Equal(t, "lr-snes9x", res.Payload["emulator"])
	requireInvariant(t, res.State)

	end := Apply(res.State, Event{Name: EventGameEnd, At: t0.Add(95 * time.Second)})
	require.Empty(t, end.Note)
	require.Equal(t, StatusIdle, end.State.Status)
	require.Empty(t, end.State.CurrentGame)
	require.Nil(t, end.State.GameStartedAt)
	require.Equal(t, "Super Mario World", end.Payload["game_name"])
	require.Equal(t, 95, end.Payload["duration_seconds"])
	requireInvariant(t, end.State)
}

func TestGameNameFallsBackToROMBase(t *testing.T) {
	res := Apply(DefaultState(), Event{
		Name: EventGameStart,
		Args: map[string]string{"system": "megadrive", "rom_path": "/roms/megadrive/Sonic The Hedgehog.md"},
		At:   t0,
	})
	require.Equal(t, "Sonic The Hedgehog", res.State.CurrentGame)
	require.Equal(t, "Sonic The Hedgehog", res.Payload["game_name"])
}

func TestGameStartWithoutROMPathLeavesStateUnchanged(t *testing.T) {
	st := DefaultState()
	st.LastUpdatedAt = t0

	res := Apply(st, Event{Name: EventGameStart, Args: map[string]string{"system": "nes"}, At: t0.Add(time.Minute)})
	require.NotEmpty(t, res.Note)
	require.Equal(t, st, res.State)
	require.Equal(t, "nes", res.Payload["system"])
	requireInvariant(t, res.State)
}

func TestGameEndWithoutActiveGame(t *testing.T) {
	st := DefaultState()
	res := Apply(st, Event{Name: EventGameEnd, At: t0})
	require.NotEmpty(t, res.Note)
	require.Equal(t, st, res.State)
	requireInvariant(t, res.State)
}

func TestSystemStartClearsStalePlayingState(t *testing.T) {
	started := t0
	stale := MachineState{
		Status:        StatusPlaying,
		CurrentGame:   "Doom",
		GameStartedAt: &started,
		LastUpdatedAt: t0,
	}

	res := Apply(stale, Event{Name: EventSystemStart, At: t0.Add(time.Hour)})
	require.Equal(t, StatusIdle, res.State.Status)
	require.Empty(t, res.State.CurrentGame)
	require.Nil(t, res.State.GameStartedAt)
	requireInvariant(t, res.State)
}

func TestQuitIsTerminal(t *testing.T) {
	started := t0
	playing := MachineState{Status: StatusPlaying, CurrentGame: "Doom", GameStartedAt: &started}

	res := Apply(playing, Event{Name: EventQuit, Args: map[string]string{"quit_mode": "reboot"}, At: t0})
	require.Equal(t, StatusShutdown, res.State.Status)
	require.Empty(t, res.State.CurrentGame)
	require.Equal(t, "reboot", res.Payload["quit_mode"])
	requireInvariant(t, res.State)
}

func TestSelectEventsKeepStatus(t *testing.T) {
	res := Apply(DefaultState(), Event{
		Name: EventSystemSelect,
		Args: map[string]string{"system_name": "arcade", "access_type": "direct"},
		At:   t0,
	})
	require.Empty(t, res.Note)
	require.Equal(t, StatusIdle, res.State.Status)
	require.Equal(t, "arcade", res.Payload["system_name"])
	require.Equal(t, "direct", res.Payload["access_type"])

	res = Apply(res.State, Event{
		Name: EventGameSelect,
		Args: map[string]string{"system": "arcade", "rom_path": "/roms/arcade/pacman.zip", "game_name": "Pac-Man"},
		At:   t0,
	})
	require.Empty(t, res.Note)
	require.Equal(t, StatusIdle, res.State.Status)
	require.Equal(t, "Pac-Man", res.Payload["game_name"])
}

func TestSelectEventsNoteMissingArgs(t *testing.T) {
	res := Apply(DefaultState(), Event{Name: EventSystemSelect, At: t0})
	require.NotEmpty(t, res.Note)

	res = Apply(DefaultState(), Event{Name: EventGameSelect, Args: map[string]string{"system": "nes"}, At: t0})
	require.NotEmpty(t, res.Note)
}

func TestUnknownEventLeavesStateUnchanged(t *testing.T) {
	st := DefaultState()
	st.LastUpdatedAt = t0

	res := Apply(st, Event{Name: "emulator-crashed", At: t0.Add(time.Minute)})
	require.NotEmpty(t, res.Note)
	require.Equal(t, st, res.State)
}

// TestInvariantOverSequences drives random-ish event sequences, including
// malformed ones, and checks the invariant after each step.
func TestInvariantOverSequences(t *testing.T) {
	sequences := [][]Event{
		{
			{Name: EventSystemStart},
			{Name: EventGameStart, Args: map[string]string{"rom_path": "/roms/nes/mario.nes"}},
			{Name: EventGameStart, Args: map[string]string{"rom_path": "/roms/nes/zelda.nes"}},
			{Name: EventGameEnd},
			{Name: EventGameEnd},
			{Name: EventQuit},
		},
		{
			{Name: EventGameEnd},
			{Name: EventGameStart, Args: nil},
			{Name: EventSystemSelect, Args: map[string]string{"system_name": "snes"}},
			{Name: EventGameStart, Args: map[string]string{"rom_path": "/roms/snes/smw.sfc"}},
			{Name: EventSystemStart},
			{Name: "bogus"},
			{Name: EventQuit},
		},
	}

	for _, seq := range sequences {
		st := DefaultState()
		at := t0
		for _, evt := range seq {
			evt.At = at
			res := Apply(st, evt)
			requireInvariant(t, res.State)
			st = res.State
			at = at.Add(30 * time.Second)
		}
	}
}
