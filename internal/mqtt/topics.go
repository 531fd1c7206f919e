package mqtt

import "strings"

// Topics derives the agent's topic namespace from the configured prefix.
type Topics struct {
	Prefix string
}

func (t Topics) Status() string         { return t.Prefix + "/status" }
func (t Topics) MachineStatus() string  { return t.Prefix + "/machine_status" }
func (t Topics) Availability() string   { return t.Prefix + "/availability" }
func (t Topics) GameCollection() string { return t.Prefix + "/game_collection" }

// Event returns the one-shot notification topic for an event name.
func (t Topics) Event(name string) string {
	return t.Prefix + "/event/" + name
}

// EventFilter matches every event topic.
func (t Topics) EventFilter() string {
	return t.Prefix + "/event/#"
}

// Command returns the inbound topic for a command name.
func (t Topics) Command(name string) string {
	return t.Prefix + "/command/" + name
}

// CommandResponse returns the ack topic for a command name.
func (t Topics) CommandResponse(name string) string {
	return t.Command(name) + "/response"
}

// CommandFilter matches every command topic, including acks; use CommandName
// to tell them apart.
func (t Topics) CommandFilter() string {
	return t.Prefix + "/command/#"
}

// CommandName extracts the command name from an inbound topic. It reports
// false for acks and unrelated topics, so the listener never answers its own
// responses.
func (t Topics) CommandName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// EventName extracts the event name from an event topic.
func (t Topics) EventName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/event/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
