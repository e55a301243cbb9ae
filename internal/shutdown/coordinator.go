package shutdown

import (
	"log/slog"
	"sync"
	"time"
)

// State is the coordinator lifecycle state.
type State int

const (
	// StateStarting is the state before the bridge is fully up.
	StateStarting State = iota
	// StateRunning is the steady state.
	StateRunning
	// StateTearingDown is entered by the first trigger.
	StateTearingDown
	// StateTerminated is entered once teardown actions have been issued.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTearingDown:
		return "tearing_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Closer is the transport side of teardown.
type Closer interface {
	Close() error
}

// Killer is the process side of teardown.
type Killer interface {
	Kill() error
}

// Terminator is implemented by processes that can be asked to stop before
// they are killed.
type Terminator interface {
	Terminate(grace time.Duration) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGracePeriod makes signal-triggered teardown ask the child to stop and
// only kill it after d. Other causes always kill immediately. The process
// must implement Terminator; d <= 0 disables the grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		c.grace = d
	}
}

// Coordinator performs teardown exactly once.
type Coordinator struct {
	log       *slog.Logger
	transport Closer
	process   Killer
	grace     time.Duration

	mu    sync.Mutex
	state State
	cause Cause
	fired bool

	done            chan struct{}
	transportClosed chan struct{}
}

// New creates a Coordinator in StateStarting. Either target may be nil.
func New(log *slog.Logger, transport Closer, process Killer, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:             log.With("component", "shutdown"),
		transport:       transport,
		process:         process,
		done:            make(chan struct{}),
		transportClosed: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// MarkRunning moves the coordinator from starting to running. It returns
// false if teardown has already begun.
func (c *Coordinator) MarkRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStarting {
		return c.state == StateRunning
	}

	c.state = StateRunning

	return true
}

// Trigger starts teardown for cause. The first call closes the transport
// asynchronously, stops the child and returns true. Later calls do nothing
// and return false.
func (c *Coordinator) Trigger(cause Cause) bool {
	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		c.log.Debug("Teardown already in progress", "cause", cause.String())

		return false
	}

	c.fired = true
	c.cause = cause
	c.state = StateTearingDown
	c.mu.Unlock()

	c.log.Info("Shutting down", "cause", cause.String(), "exit_code", cause.ExitCode())

	go func() {
		defer close(c.transportClosed)

		if c.transport == nil {
			return
		}

		if err := c.transport.Close(); err != nil {
			c.log.Error("Failed to close transport", "error", err)
		}
	}()

	c.stopProcess(cause)

	c.mu.Lock()
	c.state = StateTerminated
	c.mu.Unlock()

	close(c.done)

	return true
}

func (c *Coordinator) stopProcess(cause Cause) {
	if c.process == nil {
		return
	}

	if t, ok := c.process.(Terminator); ok && cause.Kind == CauseSignal && c.grace > 0 {
		if err := t.Terminate(c.grace); err != nil {
			c.log.Error("Failed to terminate stdio server", "error", err)
		}

		return
	}

	if err := c.process.Kill(); err != nil {
		c.log.Error("Failed to kill stdio server", "error", err)
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Cause returns the winning cause and whether teardown has been triggered.
func (c *Coordinator) Cause() (Cause, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cause, c.fired
}

// ExitCode returns the exit code of the winning cause, or 0 if teardown has
// not been triggered.
func (c *Coordinator) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cause.ExitCode()
}

// Done is closed once teardown actions have been issued.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// TransportClosed is closed once the asynchronous transport close returns.
func (c *Coordinator) TransportClosed() <-chan struct{} {
	return c.transportClosed
}
