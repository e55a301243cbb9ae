package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/wagiedev/stdio-gateway/internal/errors"
	"github.com/wagiedev/stdio-gateway/internal/shutdown"
	"github.com/wagiedev/stdio-gateway/internal/transport"
)

const (
	// DefaultPort is the WebSocket listen port.
	DefaultPort = 8000

	// HealthDisabled turns off the health responder when used as HealthPort.
	HealthDisabled = -1

	// DefaultDrainTimeout bounds how long remaining child output is relayed
	// after the child exits.
	DefaultDrainTimeout = 2 * time.Second

	// DefaultKillGrace is how long a signalled stdio server may take to exit
	// after SIGTERM before it is killed.
	DefaultKillGrace = 2 * time.Second

	maxPort = 65535
)

// Options configures a gateway session.
type Options struct {
	// Logger is the slog logger for gateway output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Command is the shell command that starts the stdio server. Required.
	// It is interpreted by the platform shell and must come from a trusted
	// operator.
	Command string

	// Host is the interface the servers bind to. Empty means all interfaces.
	Host string

	// Port is the WebSocket listen port. 0 picks an ephemeral port.
	Port int

	// HealthPort is the health responder port. 0 means Port+1 (or an
	// ephemeral port when Port is 0); HealthDisabled turns it off.
	HealthPort int

	// ExitOnDisconnect makes a client disconnect end the session with exit
	// code 0. By default a disconnect is only logged and a new client may
	// attach.
	ExitOnDisconnect bool

	// Env provides additional environment variables for the stdio server.
	Env map[string]string

	// Dir sets the working directory of the stdio server.
	Dir string

	// Shell is an explicit shell used to interpret Command.
	// If empty, the platform shell is discovered.
	Shell string

	// MaxLineSize bounds a single line of stdio server output.
	// If 0, the framer default applies.
	MaxLineSize int

	// DrainTimeout bounds the relay of trailing output after the stdio
	// server exits. If 0, DefaultDrainTimeout applies.
	DrainTimeout time.Duration

	// KillGrace bounds how long the stdio server may take to exit after a
	// shutdown signal is forwarded as SIGTERM. If 0, DefaultKillGrace
	// applies.
	KillGrace time.Duration

	// Transport replaces the WebSocket server. Port is then only used to
	// derive the health port.
	Transport transport.Transport

	// SignalSource delivers shutdown signals. If nil, OS signals are used.
	SignalSource shutdown.SignalSource
}

// Validate checks the options for configuration errors.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Command) == "" {
		return &errors.ConfigError{Field: "command", Reason: "a stdio server command is required"}
	}

	if o.Port < 0 || o.Port > maxPort {
		return &errors.ConfigError{Field: "port", Reason: fmt.Sprintf("%d is out of range 0-%d", o.Port, maxPort)}
	}

	if o.HealthPort < HealthDisabled || o.HealthPort > maxPort {
		return &errors.ConfigError{
			Field:  "health port",
			Reason: fmt.Sprintf("%d is out of range 0-%d", o.HealthPort, maxPort),
		}
	}

	if o.HealthPort == 0 && o.Port == maxPort {
		return &errors.ConfigError{
			Field:  "health port",
			Reason: fmt.Sprintf("port %d leaves no room for the default health port", o.Port),
		}
	}

	if o.MaxLineSize < 0 {
		return &errors.ConfigError{Field: "max line size", Reason: "must not be negative"}
	}

	if o.DrainTimeout < 0 {
		return &errors.ConfigError{Field: "drain timeout", Reason: "must not be negative"}
	}

	if o.KillGrace < 0 {
		return &errors.ConfigError{Field: "kill grace", Reason: "must not be negative"}
	}

	return nil
}

// ListenAddr returns the WebSocket listen address.
func (o *Options) ListenAddr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// HealthEnabled reports whether the health responder should run.
func (o *Options) HealthEnabled() bool {
	return o.HealthPort != HealthDisabled
}

// ResolvedHealthPort returns the effective health port.
func (o *Options) ResolvedHealthPort() int {
	switch {
	case o.HealthPort != 0:
		return o.HealthPort
	case o.Port == 0:
		return 0
	default:
		return o.Port + 1
	}
}

// HealthAddr returns the health responder listen address.
func (o *Options) HealthAddr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.ResolvedHealthPort()))
}

// ResolvedDrainTimeout returns the effective drain timeout.
func (o *Options) ResolvedDrainTimeout() time.Duration {
	if o.DrainTimeout == 0 {
		return DefaultDrainTimeout
	}

	return o.DrainTimeout
}

// ResolvedKillGrace returns the effective kill grace period.
func (o *Options) ResolvedKillGrace() time.Duration {
	if o.KillGrace == 0 {
		return DefaultKillGrace
	}

	return o.KillGrace
}
