// internal/run/events.go
package run

import "time"

// EventKind classifies operator-channel messages.
type EventKind int

const (
	// EventInfo is an informational text line.
	EventInfo EventKind = iota + 1
	// EventError is a non-fatal or fatal error text line.
	EventError
	// EventAwaitOperator carries the prompt for a manual voltage change.
	EventAwaitOperator
	// EventFinished signals normal run completion.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "info"
	case EventError:
		return "error"
	case EventAwaitOperator:
		return "await-operator"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is one message on the operator channel. This channel is the sole
// surface a front end (CLI, GUI, remote console) implements against.
type Event struct {
	Kind EventKind
	Text string
	At   time.Time
}
