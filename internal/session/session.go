package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/stdio-gateway/internal/config"
	"github.com/wagiedev/stdio-gateway/internal/errors"
	"github.com/wagiedev/stdio-gateway/internal/health"
	"github.com/wagiedev/stdio-gateway/internal/relay"
	"github.com/wagiedev/stdio-gateway/internal/shutdown"
	"github.com/wagiedev/stdio-gateway/internal/subprocess"
	"github.com/wagiedev/stdio-gateway/internal/transport"
	"github.com/wagiedev/stdio-gateway/internal/version"
)

const (
	// signalBufferSize is the buffer size for the OS signal channel.
	signalBufferSize = 4

	// teardownTimeout bounds each wait after teardown has been issued.
	teardownTimeout = 5 * time.Second
)

// Status is the snapshot served by GET /status.
type Status struct {
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	ChildPID  int         `json:"child_pid"`
	Relay     relay.Stats `json:"relay"`
}

// Session is a single bridge run.
type Session struct {
	id        string
	log       *slog.Logger
	options   *config.Options
	process   *subprocess.Process
	transport transport.Transport
	relay     *relay.Relay
	coord     *shutdown.Coordinator
	health    *health.Server
	signals   shutdown.SignalSource

	used atomic.Bool
}

// New validates options and assembles a Session. Nothing is started until
// Run.
func New(options *config.Options) (*Session, error) {
	if options == nil {
		options = &config.Options{}
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	id := ulid.Make().String()

	log := options.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	log = log.With("session_id", id)

	s := &Session{
		id:        id,
		log:       log.With("component", "session"),
		options:   options,
		transport: options.Transport,
		signals:   options.SignalSource,
	}

	processOpts := []subprocess.Option{subprocess.WithEnv(options.Env), subprocess.WithDir(options.Dir)}
	if options.Shell != "" {
		processOpts = append(processOpts, subprocess.WithShell(options.Shell))
	}

	s.process = subprocess.New(log, options.Command, processOpts...)

	if s.transport == nil {
		s.transport = transport.NewWebSocketServer(log, options.ListenAddr())
	}

	if s.signals == nil {
		s.signals = shutdown.OSSignals{}
	}

	var relayOpts []relay.Option
	if options.MaxLineSize > 0 {
		relayOpts = append(relayOpts, relay.WithMaxLineSize(options.MaxLineSize))
	}

	s.relay = relay.New(log, s.process, s.transport, relayOpts...)
	s.coord = shutdown.New(log, s.transport, s.process,
		shutdown.WithGracePeriod(options.ResolvedKillGrace()),
	)

	if options.HealthEnabled() {
		s.health = health.New(log, options.HealthAddr(),
			health.WithIdentity(version.Implementation()),
			health.WithStatus(func() any { return s.Status() }),
		)
	}

	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the coordinator lifecycle state.
func (s *Session) State() shutdown.State {
	return s.coord.State()
}

// Stats returns the relay counters.
func (s *Session) Stats() relay.Stats {
	return s.relay.Stats()
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	return Status{
		SessionID: s.id,
		State:     s.coord.State().String(),
		ChildPID:  s.process.Pid(),
		Relay:     s.relay.Stats(),
	}
}

// HealthServer returns the health responder, or nil when disabled.
func (s *Session) HealthServer() *health.Server {
	return s.health
}

// Run starts the bridge and blocks until it is torn down. It returns the
// exit code implied by the teardown cause. A non-nil error is returned only
// for startup failures, together with exit code 1.
//
// Cancelling ctx tears the session down with exit code 0.
func (s *Session) Run(ctx context.Context) (int, error) {
	if !s.used.CompareAndSwap(false, true) {
		return 1, errors.ErrSessionUsed
	}

	sigCh := make(chan os.Signal, signalBufferSize)
	stop := s.signals.Notify(sigCh, shutdown.DefaultSignals...)

	defer stop()

	identity := version.Implementation()
	s.log.Info("Starting gateway",
		"name", identity.Name,
		"version", identity.Version,
		"port", s.options.Port,
		"stdio", s.options.Command,
	)

	if err := s.start(ctx); err != nil {
		s.log.Error("Failed to start gateway", "error", err)
		s.coord.Trigger(shutdown.Fatal(err))
		s.finish()

		return 1, err
	}

	eg, egCtx := errgroup.WithContext(context.Background())
	outputDone := make(chan struct{})

	eg.Go(func() error {
		defer close(outputDone)

		return s.relay.PumpOutput(egCtx, s.process.Stdout())
	})

	eg.Go(func() error {
		return s.relay.PumpDiagnostics(egCtx, s.process.Stderr())
	})

	eg.Go(func() error {
		return s.relay.PumpInput(egCtx)
	})

	if s.coord.MarkRunning() {
		s.log.Info("Gateway running", "pid", s.process.Pid())
	}

	s.dispatch(ctx, sigCh, outputDone)

	// Stop feeding the child and release a write stuck on a full pipe.
	s.relay.StopInput()
	s.process.CloseStdin()

	// Give the pumps a chance to relay what the child writes while it shuts
	// down, then force any pipe held open by a descendant closed.
	s.await(outputDone, s.options.ResolvedDrainTimeout()+s.options.ResolvedKillGrace())
	s.process.ClosePipes()

	if err := eg.Wait(); err != nil {
		s.log.Warn("Output relay stopped with error", "error", err)
	}

	s.finish()

	code := s.exitCode()
	s.log.Info("Gateway stopped", "exit_code", code, "stats", s.relay.Stats())

	return code, nil
}

// start brings up the stdio server, the transport and the health responder.
func (s *Session) start(ctx context.Context) error {
	if err := s.process.Start(ctx); err != nil {
		return err
	}

	if err := s.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	if addr, ok := s.transport.(interface{ Addr() net.Addr }); ok && addr.Addr() != nil {
		s.log.Info("WebSocket endpoint", "url", "ws://"+addr.Addr().String())
	}

	if s.health != nil {
		if err := s.health.Start(ctx); err != nil {
			return fmt.Errorf("start health endpoint: %w", err)
		}

		s.log.Info("Health endpoint", "url", "http://"+s.health.Addr().String()+"/health")
	}

	return nil
}

// dispatch handles every trigger source from one goroutine until teardown.
// Nothing in the loop blocks: child input is queued for the input pump and
// the wait for trailing output after a child exit runs in its own goroutine.
func (s *Session) dispatch(ctx context.Context, sigCh <-chan os.Signal, outputDone <-chan struct{}) {
	events := s.transport.Events()
	exited := s.process.Exited()

	var drained chan struct{}

	for {
		select {
		case sig := <-sigCh:
			s.log.Info("Received signal", "signal", sig.String())
			s.coord.Trigger(shutdown.Signal(sig))

		case <-exited:
			exited = nil

			// Relay trailing output before the transport goes away.
			ch := make(chan struct{})
			drained = ch

			go func() {
				defer close(ch)

				s.await(outputDone, s.options.ResolvedDrainTimeout())
			}()

		case <-drained:
			drained = nil
			s.coord.Trigger(shutdown.ProcessExit(s.process.ExitStatus()))

		case ev := <-events:
			s.handleEvent(ev)

		case <-ctx.Done():
			s.log.Info("Context cancelled", "error", ctx.Err())
			s.coord.Trigger(shutdown.Cancelled())

		case <-s.coord.Done():
		}

		select {
		case <-s.coord.Done():
			return
		default:
		}
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpen:
		s.log.Debug("Client attached", "conn_id", ev.ConnID)

	case transport.EventMessage:
		s.relay.Enqueue(ev.Message)

	case transport.EventClose:
		s.log.Info("WebSocket connection closed", "conn_id", ev.ConnID)

		if s.options.ExitOnDisconnect {
			s.coord.Trigger(shutdown.TransportClosed())
		}

	case transport.EventError:
		s.log.Error("WebSocket error", "conn_id", ev.ConnID, "error", ev.Err)
	}
}

// finish waits, bounded, for the asynchronous teardown actions and stops the
// health responder.
func (s *Session) finish() {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		if err := s.health.Shutdown(ctx); err != nil {
			s.log.Warn("Failed to stop health endpoint", "error", err)
		}
	}

	s.await(s.coord.TransportClosed(), teardownTimeout)

	if s.process.Pid() != 0 {
		s.await(s.process.Exited(), s.options.ResolvedKillGrace()+teardownTimeout)
	}
}

// exitCode resolves the exit code once the child has been waited for.
func (s *Session) exitCode() int {
	cause, _ := s.coord.Cause()

	select {
	case <-s.process.Exited():
		return shutdown.ExitCodeFor(cause, s.process.ExitStatus(), true)
	default:
		return shutdown.ExitCodeFor(cause, nil, false)
	}
}

// await waits for ch to close or timeout to elapse and reports which came
// first.
func (s *Session) await(ch <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		s.log.Debug("Timed out waiting for teardown step", "timeout", timeout)

		return false
	}
}
