package gateway

import (
	"log/slog"
	"time"

	"github.com/wagiedev/stdio-gateway/internal/config"
)

// Options configures a Gateway. Build it with the With... functions.
type Options = config.Options

// Option configures Options using the functional options pattern.
type Option func(*Options)

const (
	// DefaultPort is the WebSocket listen port used by the CLI.
	DefaultPort = config.DefaultPort

	// HealthDisabled turns off the health endpoint when passed to
	// WithHealthPort.
	HealthDisabled = config.HealthDisabled
)

// applyOptions applies functional options to an Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithCommand sets the shell command that starts the stdio server. Required.
func WithCommand(command string) Option {
	return func(o *Options) {
		o.Command = command
	}
}

// WithPort sets the WebSocket listen port. 0 picks an ephemeral port.
func WithPort(port int) Option {
	return func(o *Options) {
		o.Port = port
	}
}

// WithHost sets the interface to bind. Defaults to all interfaces.
func WithHost(host string) Option {
	return func(o *Options) {
		o.Host = host
	}
}

// WithHealthPort sets the health endpoint port.
// Defaults to the WebSocket port + 1; HealthDisabled turns it off.
func WithHealthPort(port int) Option {
	return func(o *Options) {
		o.HealthPort = port
	}
}

// WithExitOnDisconnect ends the gateway with exit code 0 when the client
// disconnects. By default a disconnect is only logged and a new client may
// attach to the same stdio server.
func WithExitOnDisconnect(enabled bool) Option {
	return func(o *Options) {
		o.ExitOnDisconnect = enabled
	}
}

// WithLogger sets the logger.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTransport replaces the WebSocket server with a custom transport.
func WithTransport(t Transport) Option {
	return func(o *Options) {
		o.Transport = t
	}
}

// WithSignalSource replaces OS signal delivery, mainly for tests.
func WithSignalSource(src SignalSource) Option {
	return func(o *Options) {
		o.SignalSource = src
	}
}

// WithEnv provides additional environment variables for the stdio server.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithDir sets the working directory of the stdio server.
func WithDir(dir string) Option {
	return func(o *Options) {
		o.Dir = dir
	}
}

// WithShell sets an explicit shell used to interpret the command.
func WithShell(path string) Option {
	return func(o *Options) {
		o.Shell = path
	}
}

// WithMaxLineSize bounds a single line of stdio server output in bytes.
func WithMaxLineSize(n int) Option {
	return func(o *Options) {
		o.MaxLineSize = n
	}
}

// WithDrainTimeout bounds how long trailing output is relayed after the
// stdio server exits.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.DrainTimeout = d
	}
}

// WithKillGrace bounds how long the stdio server may take to exit after a
// shutdown signal before it is killed.
func WithKillGrace(d time.Duration) Option {
	return func(o *Options) {
		o.KillGrace = d
	}
}
