//go:build !windows

package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdio-gateway/internal/config"
	"github.com/wagiedev/stdio-gateway/internal/errors"
	"github.com/wagiedev/stdio-gateway/internal/shutdown"
	"github.com/wagiedev/stdio-gateway/internal/transport"
)

const testTimeout = 5 * time.Second

type fakeTransport struct {
	events   chan transport.Event
	sentCh   chan json.RawMessage
	startErr error

	startCalls atomic.Int32
	closeCalls atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan transport.Event, 16),
		sentCh: make(chan json.RawMessage, 64),
	}
}

func (f *fakeTransport) Start(context.Context) error {
	f.startCalls.Add(1)

	return f.startErr
}

func (f *fakeTransport) Send(_ context.Context, msg json.RawMessage) error {
	f.sentCh <- append(json.RawMessage(nil), msg...)

	return nil
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeTransport) Close() error {
	f.closeCalls.Add(1)

	return nil
}

func (f *fakeTransport) receive(t *testing.T) json.RawMessage {
	t.Helper()

	select {
	case msg := <-f.sentCh:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for relayed message")

		return nil
	}
}

type fakeSignals struct {
	mu      sync.Mutex
	ch      chan<- os.Signal
	stopped atomic.Bool
}

func (f *fakeSignals) Notify(ch chan<- os.Signal, _ ...os.Signal) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ch = ch

	return func() { f.stopped.Store(true) }
}

func (f *fakeSignals) registered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ch != nil
}

func (f *fakeSignals) send(sig os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ch <- sig
}

type runResult struct {
	code int
	err  error
}

type harness struct {
	session   *Session
	transport *fakeTransport
	signals   *fakeSignals
	cancel    context.CancelFunc
	result    chan runResult
}

func newTestOptions(command string) *config.Options {
	return &config.Options{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Command:      command,
		HealthPort:   config.HealthDisabled,
		DrainTimeout: 2 * time.Second,
	}
}

// start runs a session with fake transport and signals in the background.
func start(t *testing.T, options *config.Options) *harness {
	t.Helper()

	h := &harness{
		transport: newFakeTransport(),
		signals:   &fakeSignals{},
		result:    make(chan runResult, 1),
	}

	options.Transport = h.transport
	options.SignalSource = h.signals

	s, err := New(options)
	require.NoError(t, err)

	h.session = s

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	t.Cleanup(cancel)

	go func() {
		code, err := s.Run(ctx)
		h.result <- runResult{code: code, err: err}
	}()

	return h
}

func (h *harness) waitRunning(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		return h.session.State() == shutdown.StateRunning
	}, testTimeout, 10*time.Millisecond)
}

func (h *harness) wait(t *testing.T) runResult {
	t.Helper()

	select {
	case res := <-h.result:
		return res
	case <-time.After(2 * testTimeout):
		t.Fatal("session did not stop")

		return runResult{}
	}
}

func (h *harness) deliver(msg string) {
	h.transport.events <- transport.Event{Kind: transport.EventMessage, ConnID: "test", Message: json.RawMessage(msg)}
}

func TestSession_RelaysBothDirectionsInOrder(t *testing.T) {
	h := start(t, newTestOptions("cat"))
	h.waitRunning(t)

	h.deliver(`{"id":"m1"}`)
	h.deliver("{\n  \"id\": \"m2\",\n  \"text\": \"a\\nb\"\n}")
	h.deliver(`{"id":"m3"}`)

	assert.JSONEq(t, `{"id":"m1"}`, string(h.transport.receive(t)))
	assert.Equal(t, `{"id":"m2","text":"a\nb"}`, string(h.transport.receive(t)))
	assert.JSONEq(t, `{"id":"m3"}`, string(h.transport.receive(t)))

	stats := h.session.Stats()
	assert.Equal(t, uint64(3), stats.MessagesIn)
	assert.Equal(t, uint64(3), stats.MessagesOut)

	h.cancel()

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 0, res.code)
	assert.Equal(t, int32(1), h.transport.closeCalls.Load())
	assert.True(t, h.signals.stopped.Load())
	assert.Equal(t, shutdown.StateTerminated, h.session.State())
}

func TestSession_PropagatesChildExitCode(t *testing.T) {
	h := start(t, newTestOptions(`echo '{"jsonrpc":"2.0","method":"bye"}'; exit 7`))

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 7, res.code)

	// Output written before exit is relayed before teardown.
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"bye"}`, string(h.transport.receive(t)))
	assert.Equal(t, int32(1), h.transport.closeCalls.Load())
}

func TestSession_SignalKilledChildExitsWithOne(t *testing.T) {
	h := start(t, newTestOptions("kill -9 $$"))

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.code)
}

func TestSession_SignalTearsDownOnce(t *testing.T) {
	h := start(t, newTestOptions("sleep 30"))
	h.waitRunning(t)

	h.signals.send(os.Interrupt)
	h.signals.send(syscall.SIGTERM)

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.code)
	assert.Equal(t, int32(1), h.transport.closeCalls.Load())

	cause, fired := h.session.coord.Cause()
	require.True(t, fired)
	assert.Equal(t, shutdown.CauseSignal, cause.Kind)
}

// TestSession_SignalWhileStdinBlocked checks that a child that never reads
// its input cannot stop the gateway from reacting to signals and events.
func TestSession_SignalWhileStdinBlocked(t *testing.T) {
	h := start(t, newTestOptions("sleep 300"))
	h.waitRunning(t)

	// Far larger than a pipe buffer: the write to stdin cannot complete.
	h.deliver(`{"data":"` + strings.Repeat("x", 256*1024) + `"}`)
	h.deliver(`{"id":"queued"}`)

	require.Eventually(t, func() bool {
		return h.session.relay.Pending() == 1
	}, testTimeout, 10*time.Millisecond, "second message should wait behind the blocked write")

	// Events are still served while the write is pending.
	h.transport.events <- transport.Event{Kind: transport.EventClose, ConnID: "a"}
	h.transport.events <- transport.Event{Kind: transport.EventOpen, ConnID: "b"}

	started := time.Now()

	h.signals.send(os.Interrupt)

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.code)
	assert.Less(t, time.Since(started), testTimeout)
	assert.Equal(t, int32(1), h.transport.closeCalls.Load())
	assert.Equal(t, uint64(0), h.session.Stats().MessagesIn)

	cause, _ := h.session.coord.Cause()
	assert.Equal(t, shutdown.CauseSignal, cause.Kind)
}

// TestSession_InterruptRacesChildExit sends an interrupt around the moment
// the child exits on its own. Whichever wins, teardown happens once.
func TestSession_InterruptRacesChildExit(t *testing.T) {
	for i := range 10 {
		t.Run(fmt.Sprintf("run %d", i), func(t *testing.T) {
			h := start(t, newTestOptions("sleep 0.05"))

			require.Eventually(t, h.signals.registered, testTimeout, time.Millisecond)

			time.Sleep(time.Duration(i*10) * time.Millisecond)
			h.signals.send(os.Interrupt)

			res := h.wait(t)
			require.NoError(t, res.err)
			assert.Contains(t, []int{0, 1}, res.code)
			assert.Equal(t, int32(1), h.transport.closeCalls.Load())
			assert.Equal(t, shutdown.StateTerminated, h.session.State())

			cause, fired := h.session.coord.Cause()
			require.True(t, fired)
			assert.Contains(t, []shutdown.CauseKind{shutdown.CauseSignal, shutdown.CauseProcessExit}, cause.Kind)
		})
	}
}

func TestSession_SignalLetsChildExitCleanly(t *testing.T) {
	h := start(t, newTestOptions(`trap 'exit 0' TERM; echo '{"ready":true}'; while :; do sleep 0.1; done`))

	assert.JSONEq(t, `{"ready":true}`, string(h.transport.receive(t)))

	h.signals.send(syscall.SIGTERM)

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 0, res.code)
}

func TestSession_SignalKillsChildAfterGrace(t *testing.T) {
	options := newTestOptions(`trap '' TERM; echo '{"ready":true}'; while :; do sleep 0.1; done`)
	options.KillGrace = 200 * time.Millisecond

	h := start(t, options)

	assert.JSONEq(t, `{"ready":true}`, string(h.transport.receive(t)))

	h.signals.send(syscall.SIGTERM)

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "SIGKILL", h.session.process.ExitStatus().Signal)
}

func TestSession_DisconnectIsLoggedByDefault(t *testing.T) {
	h := start(t, newTestOptions("cat"))
	h.waitRunning(t)

	h.transport.events <- transport.Event{Kind: transport.EventOpen, ConnID: "a"}
	h.transport.events <- transport.Event{Kind: transport.EventClose, ConnID: "a"}
	h.transport.events <- transport.Event{Kind: transport.EventError, ConnID: "a", Err: stderrors.New("reset")}

	// A later client is still served by the same child.
	h.deliver(`{"id":"after"}`)
	assert.JSONEq(t, `{"id":"after"}`, string(h.transport.receive(t)))
	assert.Equal(t, shutdown.StateRunning, h.session.State())

	h.cancel()
	assert.Equal(t, 0, h.wait(t).code)
}

func TestSession_ExitOnDisconnect(t *testing.T) {
	options := newTestOptions("cat")
	options.ExitOnDisconnect = true

	h := start(t, options)
	h.waitRunning(t)

	h.transport.events <- transport.Event{Kind: transport.EventClose, ConnID: "a"}

	res := h.wait(t)
	require.NoError(t, res.err)
	assert.Equal(t, 0, res.code)

	cause, _ := h.session.coord.Cause()
	assert.Equal(t, shutdown.CauseTransportClosed, cause.Kind)
}

func TestSession_MalformedOutputIsSkipped(t *testing.T) {
	h := start(t, newTestOptions(`echo '{"a":1}'; echo NOT-JSON; echo diagnostics >&2; echo '{"b":2}'; sleep 30`))

	assert.JSONEq(t, `{"a":1}`, string(h.transport.receive(t)))
	assert.JSONEq(t, `{"b":2}`, string(h.transport.receive(t)))

	require.Eventually(t, func() bool {
		return h.session.Stats().DecodeErrors == 1
	}, testTimeout, 10*time.Millisecond)

	h.cancel()
	h.wait(t)

	select {
	case msg := <-h.transport.sentCh:
		t.Fatalf("stderr or invalid output was forwarded: %s", msg)
	default:
	}
}

func TestSession_TransportStartFailure(t *testing.T) {
	listenErr := &errors.ListenError{Addr: ":8000", Err: syscall.EADDRINUSE}

	options := newTestOptions("sleep 30")

	h := &harness{transport: newFakeTransport(), signals: &fakeSignals{}}
	h.transport.startErr = listenErr

	options.Transport = h.transport
	options.SignalSource = h.signals

	s, err := New(options)
	require.NoError(t, err)

	code, err := s.Run(context.Background())
	assert.Equal(t, 1, code)

	_, ok := stderrors.AsType[*errors.ListenError](err)
	require.True(t, ok)

	// The already started child is killed.
	select {
	case <-s.process.Exited():
	case <-time.After(testTimeout):
		t.Fatal("child still running after startup failure")
	}

	assert.Equal(t, int32(1), h.transport.closeCalls.Load())
}

func TestSession_SpawnFailure(t *testing.T) {
	options := newTestOptions("cat")
	options.Shell = "/nonexistent/shell"
	options.Transport = newFakeTransport()
	options.SignalSource = &fakeSignals{}

	s, err := New(options)
	require.NoError(t, err)

	code, err := s.Run(context.Background())
	assert.Equal(t, 1, code)

	_, ok := stderrors.AsType[*errors.SpawnError](err)
	require.True(t, ok)
	assert.Equal(t, int32(0), options.Transport.(*fakeTransport).startCalls.Load())
}

func TestSession_RunTwice(t *testing.T) {
	h := start(t, newTestOptions("exit 0"))
	assert.Equal(t, 0, h.wait(t).code)

	code, err := h.session.Run(context.Background())
	assert.Equal(t, 1, code)
	require.ErrorIs(t, err, errors.ErrSessionUsed)
}

func TestSession_InvalidOptions(t *testing.T) {
	_, err := New(&config.Options{})

	_, ok := stderrors.AsType[*errors.ConfigError](err)
	require.True(t, ok)

	_, err = New(nil)
	require.Error(t, err)
}

func TestSession_HealthEndpoint(t *testing.T) {
	options := newTestOptions("cat")
	options.Host = "127.0.0.1"
	options.HealthPort = 0

	h := start(t, options)
	h.waitRunning(t)

	addr := h.session.HealthServer().Addr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get("http://" + addr.String() + "/status")
	require.NoError(t, err)

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, h.session.ID(), status.SessionID)
	assert.Equal(t, "running", status.State)
	assert.NotZero(t, status.ChildPID)

	h.cancel()
	assert.Equal(t, 0, h.wait(t).code)
}
