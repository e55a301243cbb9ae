// Package errors defines error types for the stdio gateway.
//
// Errors fall into four classes: startup failures (SpawnError,
// ShellNotFoundError, ListenError, ConfigError) that end the session,
// decode errors (DecodeError) and delivery failures (DeliveryError) that are
// logged and contained, and subprocess termination, which is reported as an
// exit status rather than an error. All error types support unwrapping and can
// be checked using errors.Is, errors.As, and errors.AsType.
package errors
