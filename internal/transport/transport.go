package transport

import (
	"context"
	"encoding/json"
)

// EventKind identifies the type of a transport Event.
type EventKind int

const (
	// EventOpen reports that a client attached.
	EventOpen EventKind = iota + 1
	// EventMessage carries one JSON value received from the client.
	EventMessage
	// EventClose reports that the client detached.
	EventClose
	// EventError reports a transport-level problem, such as an undecodable
	// frame or an abnormal disconnect. It does not end the transport.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single occurrence on a transport.
type Event struct {
	Kind EventKind
	// ConnID identifies the client connection the event belongs to.
	ConnID string
	// Message is set for EventMessage.
	Message json.RawMessage
	// Err is set for EventError.
	Err error
}

// Transport is the network endpoint the gateway relays to.
//
// Implementations must allow Send to be called concurrently with event
// delivery. Close must be safe to call multiple times.
type Transport interface {
	// Start begins accepting clients. It returns once the transport is ready.
	Start(ctx context.Context) error

	// Send delivers one JSON value to the attached client.
	Send(ctx context.Context, msg json.RawMessage) error

	// Events returns the channel on which client activity is delivered.
	Events() <-chan Event

	// Close stops the transport and disconnects any client.
	Close() error
}
