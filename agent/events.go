package agent

import "fmt"

// Notifier receives progress events while a turn executes tools. The ids are
// opaque; consumers correlate started/finished pairs by them.
type Notifier interface {
	ToolStarted(id, toolName, serverID string)
	ToolFinished(id, toolName, serverID string, isError bool)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) ToolStarted(id, toolName, serverID string)                {}
func (NopNotifier) ToolFinished(id, toolName, serverID string, isError bool) {}

var _ Notifier = NopNotifier{}

// StreamNotifier renders tool progress as status lines on the chat stream.
// Emit failures are dropped; a gone consumer already fails the turn through
// the text path.
type StreamNotifier struct {
	Emit StreamFunc
}

func (n StreamNotifier) ToolStarted(id, toolName, serverID string) {
	_ = n.Emit(fmt.Sprintf("\n[running %s on %s...]\n", toolName, serverID))
}

func (n StreamNotifier) ToolFinished(id, toolName, serverID string, isError bool) {
	if isError {
		_ = n.Emit(fmt.Sprintf("\n[%s on %s failed]\n", toolName, serverID))
		return
	}
	_ = n.Emit(fmt.Sprintf("\n[%s on %s finished]\n", toolName, serverID))
}

var _ Notifier = StreamNotifier{}

// multiNotifier fans each event out to every receiver.
type multiNotifier []Notifier

func (m multiNotifier) ToolStarted(id, toolName, serverID string) {
	for _, n := range m {
		n.ToolStarted(id, toolName, serverID)
	}
}

func (m multiNotifier) ToolFinished(id, toolName, serverID string, isError bool) {
	for _, n := range m {
		n.ToolFinished(id, toolName, serverID, isError)
	}
}
