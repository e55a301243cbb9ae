package gateway

import "github.com/wagiedev/stdio-gateway/internal/errors"

// Re-export error types from internal package

// ShellNotFoundError indicates no shell was found to interpret the command.
type ShellNotFoundError = errors.ShellNotFoundError

// SpawnError indicates the stdio server could not be started.
type SpawnError = errors.SpawnError

// ListenError indicates a listener could not be bound.
type ListenError = errors.ListenError

// ConfigError indicates an invalid configuration value.
type ConfigError = errors.ConfigError

// DecodeError indicates a line of stdio server output was not valid JSON.
type DecodeError = errors.DecodeError

// DeliveryError indicates a relayed message could not be delivered.
type DeliveryError = errors.DeliveryError

// GatewayError is the base interface for all gateway errors.
type GatewayError = errors.GatewayError

// Re-export sentinel errors from internal package.
var (
	// ErrStdinClosed indicates the stdio server no longer accepts input.
	ErrStdinClosed = errors.ErrStdinClosed

	// ErrNoClient indicates no client is attached to receive a message.
	ErrNoClient = errors.ErrNoClient

	// ErrClientConflict indicates a second client tried to attach.
	ErrClientConflict = errors.ErrClientConflict

	// ErrTransportClosed indicates the transport has been closed.
	ErrTransportClosed = errors.ErrTransportClosed

	// ErrSessionUsed indicates Run was called more than once.
	ErrSessionUsed = errors.ErrSessionUsed
)
