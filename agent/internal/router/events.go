package router

import "github.com/obsidianstack/volta/agent/internal/host"

// Event is a host lifecycle event the router reacts to.
type Event int

const (
	EventNone Event = iota
	EventShutdown
	EventDisconnected
	EventConnected
	EventPrintStarted
	EventPrintPaused
	EventWaiting
	EventPrintResumed
	EventPrintFailed
	EventPrintDone
	EventProgress
	EventStartup
)

var eventNames = map[string]Event{
	"Shutdown":         EventShutdown,
	"Disconnected":     EventDisconnected,
	"Connected":        EventConnected,
	"PrintStarted":     EventPrintStarted,
	"PrintPaused":      EventPrintPaused,
	"Waiting":          EventWaiting,
	"PrintResumed":     EventPrintResumed,
	"PrintFailed":      EventPrintFailed,
	"PrintDone":        EventPrintDone,
	host.EventProgress: EventProgress,
	host.EventStartup:  EventStartup,
}

// ParseEvent looks up a host event name.
func ParseEvent(name string) (Event, bool) {
	e, ok := eventNames[name]
	return e, ok
}

func (e Event) String() string {
	for name, ev := range eventNames {
		if ev == e {
			return name
		}
	}
	return "None"
}
