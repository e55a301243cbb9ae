package gateway

import (
	"context"

	"github.com/wagiedev/stdio-gateway/internal/session"
)

// Gateway is a single bridge run between a stdio server and a transport.
//
// Lifecycle: gateways are single-use. Run may be called once; create a new
// gateway with New for another run.
type Gateway interface {
	// Run starts the stdio server and the transport and blocks until the
	// gateway is torn down. It returns the exit code implied by the teardown
	// cause. A non-nil error is returned only for startup failures
	// (SpawnError, ListenError, ...), together with exit code 1.
	Run(ctx context.Context) (int, error)

	// ID returns the session identifier that appears in logs.
	ID() string

	// State returns the lifecycle state.
	State() State

	// Stats returns relay counters.
	Stats() Stats
}

// gatewayWrapper adapts the internal session to the public interface.
type gatewayWrapper struct {
	impl *session.Session
}

// Compile-time check that *gatewayWrapper implements the Gateway interface.
var _ Gateway = (*gatewayWrapper)(nil)

// New validates the options and creates a Gateway. Nothing is started until
// Run. Returns ConfigError for invalid options.
func New(opts ...Option) (Gateway, error) {
	impl, err := session.New(applyOptions(opts))
	if err != nil {
		return nil, err
	}

	return &gatewayWrapper{impl: impl}, nil
}

// Run creates a Gateway and runs it. See Gateway.Run.
func Run(ctx context.Context, opts ...Option) (int, error) {
	g, err := New(opts...)
	if err != nil {
		return 1, err
	}

	return g.Run(ctx)
}

func (g *gatewayWrapper) Run(ctx context.Context) (int, error) {
	return g.impl.Run(ctx)
}

func (g *gatewayWrapper) ID() string {
	return g.impl.ID()
}

func (g *gatewayWrapper) State() State {
	return g.impl.State()
}

func (g *gatewayWrapper) Stats() Stats {
	return g.impl.Stats()
}
