package errors

import (
	"errors"
	"fmt"
)

// GatewayError is the base interface for all gateway errors.
type GatewayError interface {
	error
	IsGatewayError() bool
}

// Compile-time verification that all error types implement GatewayError.
var (
	_ GatewayError = (*ShellNotFoundError)(nil)
	_ GatewayError = (*SpawnError)(nil)
	_ GatewayError = (*ListenError)(nil)
	_ GatewayError = (*ConfigError)(nil)
	_ GatewayError = (*DecodeError)(nil)
	_ GatewayError = (*DeliveryError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrProcessNotStarted indicates the subprocess has not been started yet.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted indicates Start was called more than once.
	ErrProcessAlreadyStarted = errors.New("process already started")

	// ErrStdinClosed indicates the subprocess input stream is no longer writable.
	ErrStdinClosed = errors.New("stdin closed")

	// ErrNoClient indicates no transport client is attached to receive a message.
	ErrNoClient = errors.New("no client connected")

	// ErrClientConflict indicates a second client tried to attach while one is active.
	ErrClientConflict = errors.New("a client is already connected")

	// ErrTransportClosed indicates the transport has been closed.
	ErrTransportClosed = errors.New("transport closed")

	// ErrSessionUsed indicates a session was run more than once.
	ErrSessionUsed = errors.New("session already used: sessions are single-use")

	// ErrLineTooLong indicates a subprocess output line exceeded the framer limit.
	ErrLineTooLong = errors.New("line exceeds maximum size")
)

// ShellNotFoundError indicates no shell was found to interpret the command.
type ShellNotFoundError struct {
	SearchedPaths []string
}

func (e *ShellNotFoundError) Error() string {
	return fmt.Sprintf("shell not found in: %v", e.SearchedPaths)
}

// IsGatewayError implements GatewayError.
func (e *ShellNotFoundError) IsGatewayError() bool { return true }

// SpawnError indicates the subprocess could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsGatewayError implements GatewayError.
func (e *SpawnError) IsGatewayError() bool { return true }

// ListenError indicates a network listener could not be bound.
type ListenError struct {
	Addr string
	Err  error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// IsGatewayError implements GatewayError.
func (e *ListenError) IsGatewayError() bool { return true }

// ConfigError indicates an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsGatewayError implements GatewayError.
func (e *ConfigError) IsGatewayError() bool { return true }

// DecodeError indicates a line from the subprocess was not valid JSON.
// It preserves the raw line that failed to parse.
type DecodeError struct {
	RawLine string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode JSON line: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsGatewayError implements GatewayError.
func (e *DecodeError) IsGatewayError() bool { return true }

// Direction names the side a relayed message was travelling towards.
type Direction string

const (
	// ToProcess is the transport to subprocess direction.
	ToProcess Direction = "to_process"
	// ToTransport is the subprocess to transport direction.
	ToTransport Direction = "to_transport"
)

// DeliveryError indicates a relayed message could not be delivered.
// Delivery errors are contained: they are logged and the relay continues.
type DeliveryError struct {
	Direction Direction
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery %s failed: %v", e.Direction, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsGatewayError implements GatewayError.
func (e *DeliveryError) IsGatewayError() bool { return true }
