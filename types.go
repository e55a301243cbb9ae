package gateway

import (
	"github.com/wagiedev/stdio-gateway/internal/relay"
	"github.com/wagiedev/stdio-gateway/internal/session"
	"github.com/wagiedev/stdio-gateway/internal/shutdown"
	"github.com/wagiedev/stdio-gateway/internal/subprocess"
	"github.com/wagiedev/stdio-gateway/internal/version"
)

// State is the gateway lifecycle state.
type State = shutdown.State

// Lifecycle states.
const (
	StateStarting    = shutdown.StateStarting
	StateRunning     = shutdown.StateRunning
	StateTearingDown = shutdown.StateTearingDown
	StateTerminated  = shutdown.StateTerminated
)

// Stats holds relay counters.
type Stats = relay.Stats

// Status is the snapshot served by the health endpoint's GET /status.
type Status = session.Status

// ExitStatus describes how the stdio server terminated.
type ExitStatus = subprocess.ExitStatus

// Name is the server name reported in logs and by GET /version.
const Name = version.Name

// Version returns the gateway version, or "unknown".
func Version() string {
	return version.String()
}
