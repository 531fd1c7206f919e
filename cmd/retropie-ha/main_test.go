package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventArgsGameStart(t *testing.T) {
	args, err := eventArgs("game-start", []string{"nes", "lr-fceumm", "/roms/nes/contra.nes"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"system":   "nes",
		"emulator": "lr-fceumm",
		"rom_path": "/roms/nes/contra.nes",
	}, args)
}

func TestEventArgsGameStartMissingArgs(t *testing.T) {
	_, err := eventArgs("game-start", []string{"nes"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "game-start needs")
}

func TestEventArgsSystemSelect(t *testing.T) {
	args, err := eventArgs("system-select", []string{"snes", "manual"})
	require.NoError(t, err)
	require.Equal(t, "snes", args["system_name"])
	require.Equal(t, "manual", args["access_type"])

	_, err = eventArgs("system-select", nil)
	require.Error(t, err)
}

func TestEventArgsGameSelectOptionalFields(t *testing.T) {
	args, err := eventArgs("game-select", []string{"snes", "/roms/snes/smw.sfc", "Super Mario World", "random"})
	require.NoError(t, err)
	require.Equal(t, "Super Mario World", args["game_name"])
	require.Equal(t, "random", args["access_type"])

	args, err = eventArgs("game-select", []string{"snes", "/roms/snes/smw.sfc"})
	require.NoError(t, err)
	require.NotContains(t, args, "game_name")
}

func TestEventArgsQuitMode(t *testing.T) {
	args, err := eventArgs("quit", []string{"reboot"})
	require.NoError(t, err)
	require.Equal(t, "reboot", args["quit_mode"])

	args, err = eventArgs("quit", nil)
	require.NoError(t, err)
	require.Empty(t, args)
}

func TestEventArgsBareEvents(t *testing.T) {
	for _, name := range []string{"system-start", "game-end"} {
		args, err := eventArgs(name, nil)
		require.NoError(t, err)
		require.Empty(t, args)
	}
}

func TestEventArgsUnknownEvent(t *testing.T) {
	_, err := eventArgs("game-restart", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown event")
	require.Contains(t, err.Error(), "game-start")
}
