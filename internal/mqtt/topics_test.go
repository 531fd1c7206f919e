package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopicNames(t *testing.T) {
	topics := Topics{Prefix: "retropie"}

	require.Equal(t, "retropie/status", topics.Status())
	require.Equal(t, "retropie/machine_status", topics.MachineStatus())
	require.Equal(t, "retropie/availability", topics.Availability())
	require.Equal(t, "retropie/game_collection", topics.GameCollection())
	require.Equal(t, "retropie/event/game-start", topics.Event("game-start"))
	require.Equal(t, "retropie/event/#", topics.EventFilter())
	require.Equal(t, "retropie/command/speak", topics.Command("speak"))
	require.Equal(t, "retropie/command/speak/response", topics.CommandResponse("speak"))
	require.Equal(t, "retropie/command/#", topics.CommandFilter())
}

func TestCommandNameExtraction(t *testing.T) {
	topics := Topics{Prefix: "retropie"}

	cases := []struct {
		topic string
		name  string
		ok    bool
	}{
		{"retropie/command/speak", "speak", true},
		{"retropie/command/rescan", "rescan", true},
		{"retropie/command/speak/response", "", false},
		{"retropie/command/", "", false},
		{"retropie/status", "", false},
		{"other/command/speak", "", false},
	}
	for _, c := range cases {
		name, ok := topics.CommandName(c.topic)
		require.Equal(t, c.ok, ok, c.topic)
		require.Equal(t, c.name, name, c.topic)
	}
}

func TestEventNameExtraction(t *testing.T) {
	topics := Topics{Prefix: "retropie"}

	name, ok := topics.EventName("retropie/event/game-end")
	require.True(t, ok)
	require.Equal(t, "game-end", name)

	_, ok = topics.EventName("retropie/command/speak")
	require.False(t, ok)
}

func TestBrokerAddr(t *testing.T) {
	cfg := Config{Host: "broker.lan", Port: 8883}
	require.Equal(t, "broker.lan:8883", cfg.Addr())
	require.Equal(t, "tcp://broker.lan:8883", cfg.BrokerURL())
}

func TestClientIDFreshness(t *testing.T) {
	a := ClientID("bartop")
	b := ClientID("bartop")
	require.NotEqual(t, a, b)
	require.Contains(t, a, "retropie-ha-bartop-")
}
