package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/stdio-gateway/internal/errors"
)

const (
	// DefaultReadLimit is the largest frame accepted from a client.
	DefaultReadLimit = 16 * 1024 * 1024 // 16MB

	eventBufferSize  = 64
	closeGracePeriod = time.Second
	shutdownTimeout  = 5 * time.Second
)

// Compile-time verification that WebSocketServer implements Transport.
var _ Transport = (*WebSocketServer)(nil)

// WebSocketOption configures a WebSocketServer.
type WebSocketOption func(*WebSocketServer)

// WithReadLimit sets the maximum size of a client frame in bytes.
func WithReadLimit(n int64) WebSocketOption {
	return func(s *WebSocketServer) {
		s.readLimit = n
	}
}

// WithCheckOrigin sets the origin check applied to upgrade requests.
// By default every origin is accepted.
func WithCheckOrigin(check func(r *http.Request) bool) WebSocketOption {
	return func(s *WebSocketServer) {
		s.upgrader.CheckOrigin = check
	}
}

// clientConn is the single attached client.
type clientConn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// WebSocketServer is a Transport serving one WebSocket client at a time.
//
// Each text or binary frame carries one JSON value. While a client is
// attached, further upgrade attempts are refused with 409 Conflict; once it
// detaches a new client may attach.
type WebSocketServer struct {
	log       *slog.Logger
	addr      string
	readLimit int64
	upgrader  websocket.Upgrader

	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	conn     *clientConn
	busy     bool
	started  bool
	closed   bool

	wg sync.WaitGroup
}

// NewWebSocketServer creates a WebSocket transport listening on addr
// ("host:port"). The listener is opened by Start.
func NewWebSocketServer(log *slog.Logger, addr string, opts ...WebSocketOption) *WebSocketServer {
	s := &WebSocketServer{
		log:       log.With("component", "websocket"),
		addr:      addr,
		readLimit: DefaultReadLimit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start binds the listener and begins serving upgrade requests.
// Returns ListenError if the address cannot be bound.
func (s *WebSocketServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrTransportClosed
	}

	if s.started {
		return fmt.Errorf("websocket server already started")
	}

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return &errors.ListenError{Addr: s.addr, Err: err}
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           http.HandlerFunc(s.handleUpgrade),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	s.started = true

	server := s.server

	s.wg.Go(func() {
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("WebSocket server stopped", "error", err)
			s.emit(Event{Kind: EventError, Err: fmt.Errorf("serve: %w", err)})
		}
	})

	s.log.Info("WebSocket server listening", "addr", ln.Addr().String())

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *WebSocketServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Events returns the event channel. It is never closed; stop reading once
// Close has been called.
func (s *WebSocketServer) Events() <-chan Event {
	return s.events
}

// Send writes msg as a single text frame to the attached client.
// Returns ErrNoClient when no client is attached.
func (s *WebSocketServer) Send(ctx context.Context, msg json.RawMessage) error {
	s.mu.Lock()
	c, closed := s.conn, s.closed
	s.mu.Unlock()

	if closed {
		return errors.ErrTransportClosed
	}

	if c == nil {
		return errors.ErrNoClient
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline for %s: %w", c.id, err)
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write to client %s: %w", c.id, err)
	}

	return nil
}

// Close disconnects the client, stops the listener and waits for the
// connection goroutines to finish.
func (s *WebSocketServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	c := s.conn
	server := s.server
	s.mu.Unlock()

	close(s.done)

	if c != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway shutting down")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		_ = c.ws.Close()
	}

	var err error

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutdown websocket server: %w", shutdownErr)
		}
	}

	s.wg.Wait()

	s.log.Info("WebSocket server closed")

	return err
}

func (s *WebSocketServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, errors.ErrTransportClosed.Error(), http.StatusServiceUnavailable)

		return
	}

	if s.busy {
		s.mu.Unlock()
		s.log.Warn("Refusing additional client", "remote_addr", r.RemoteAddr)
		http.Error(w, errors.ErrClientConflict.Error(), http.StatusConflict)

		return
	}

	s.busy = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		s.log.Warn("Failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
		s.release(nil)

		return
	}

	ws.SetReadLimit(s.readLimit)

	c := &clientConn{id: ulid.Make().String(), ws: ws}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()

		return
	}

	s.conn = c
	s.mu.Unlock()

	s.log.Info("Client connected", "conn_id", c.id, "remote_addr", r.RemoteAddr)
	s.emit(Event{Kind: EventOpen, ConnID: c.id})

	s.readLoop(c)
}

func (s *WebSocketServer) readLoop(c *clientConn) {
	var readErr error

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			readErr = err

			break
		}

		if !json.Valid(data) {
			s.emit(Event{
				Kind:   EventError,
				ConnID: c.id,
				Err:    &errors.DecodeError{RawLine: truncate(data, 256), Err: fmt.Errorf("frame is not valid JSON")},
			})

			continue
		}

		s.emit(Event{Kind: EventMessage, ConnID: c.id, Message: data})
	}

	_ = c.ws.Close()

	if s.release(c) {
		return
	}

	_, isClose := stderrors.AsType[*websocket.CloseError](readErr)
	if !isClose || websocket.IsUnexpectedCloseError(readErr,
		websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		s.emit(Event{Kind: EventError, ConnID: c.id, Err: fmt.Errorf("read from client %s: %w", c.id, readErr)})
	}

	s.log.Info("Client disconnected", "conn_id", c.id)
	s.emit(Event{Kind: EventClose, ConnID: c.id})
}

// release frees the client slot and reports whether the server is closing.
func (s *WebSocketServer) release(c *clientConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == c {
		s.conn = nil
	}

	s.busy = false

	return s.closed
}

func (s *WebSocketServer) emit(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	return string(b[:n]) + "..."
}
