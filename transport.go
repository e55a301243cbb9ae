package gateway

import (
	"log/slog"

	"github.com/wagiedev/stdio-gateway/internal/shutdown"
	"github.com/wagiedev/stdio-gateway/internal/transport"
)

// Transport is the network side of the gateway.
// Implement this to relay over something other than the built-in WebSocket
// server; inject it with WithTransport.
type Transport = transport.Transport

// Event is a single occurrence on a Transport.
type Event = transport.Event

// EventKind identifies the type of an Event.
type EventKind = transport.EventKind

// Transport event kinds.
const (
	EventOpen    = transport.EventOpen
	EventMessage = transport.EventMessage
	EventClose   = transport.EventClose
	EventError   = transport.EventError
)

// WebSocketServer is the built-in Transport.
type WebSocketServer = transport.WebSocketServer

// NewWebSocketServer creates the built-in WebSocket transport listening on
// addr. Use it with WithTransport to set transport-specific options.
func NewWebSocketServer(log *slog.Logger, addr string, opts ...transport.WebSocketOption) *WebSocketServer {
	if log == nil {
		log = NopLogger()
	}

	return transport.NewWebSocketServer(log, addr, opts...)
}

// WithReadLimit sets the maximum size of a client frame in bytes.
func WithReadLimit(n int64) transport.WebSocketOption {
	return transport.WithReadLimit(n)
}

// SignalSource registers for OS signal delivery.
type SignalSource = shutdown.SignalSource

// OSSignals is the default SignalSource.
type OSSignals = shutdown.OSSignals
