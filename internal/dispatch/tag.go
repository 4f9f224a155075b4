// Package dispatch multiplexes completion events of many in-flight calls
// through one shared queue drained by a single goroutine.
package dispatch

import "fmt"

// Cause identifies which step of a call just completed.
type Cause int

const (
	// CauseStartCall - the stream was opened (or failed to open).
	CauseStartCall Cause = iota + 1
	// CauseWrite - an outbound message was handed to the transport.
	CauseWrite
	// CauseRead - an inbound message was received into the call's scratch slot.
	CauseRead
	// CauseWritesDone - the half-close was acknowledged.
	CauseWritesDone
	// CauseAlarm - the pacing timer fired.
	CauseAlarm
	// CauseFinish - the final call status is available.
	CauseFinish
)

// String returns the string representation of the cause.
func (c Cause) String() string {
	switch c {
	case CauseStartCall:
		return "start_call"
	case CauseWrite:
		return "write"
	case CauseRead:
		return "read"
	case CauseWritesDone:
		return "writes_done"
	case CauseAlarm:
		return "alarm"
	case CauseFinish:
		return "finish"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Handler is the capability every call exposes to the dispatcher.
// Proceed is never invoked concurrently for the same handler.
type Handler interface {
	Proceed(cause Cause, ok bool)
}

// Tag pairs the cause of a completion with the call that owns it.
// The tag only refers to the call; the caller owns the call.
type Tag struct {
	Cause   Cause
	Handler Handler
}

// Completion is a tag together with the transport's success flag.
type Completion struct {
	Tag
	OK bool
}

// Poster accepts completions from the transport side.
type Poster interface {
	Post(tag Tag, ok bool) bool
}
