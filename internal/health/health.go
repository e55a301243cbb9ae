package health

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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/stdio-gateway/internal/errors"
)

// StatusFunc returns a JSON-serializable snapshot for GET /status.
type StatusFunc func() any

// Option configures a Server.
type Option func(*Server)

// WithIdentity sets the identity reported by GET /version.
func WithIdentity(impl *mcp.Implementation) Option {
	return func(s *Server) {
		s.identity = impl
	}
}

// WithStatus enables GET /status.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) {
		s.status = fn
	}
}

// Server is the health responder.
type Server struct {
	log      *slog.Logger
	addr     string
	identity *mcp.Implementation
	status   StatusFunc
	router   chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	served   chan struct{}
}

// New creates a health Server for addr ("host:port").
func New(log *slog.Logger, addr string, opts ...Option) *Server {
	s := &Server{
		log:  log.With("component", "health"),
		addr: addr,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRouter()

	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	if s.status != nil {
		r.Get("/status", s.handleStatus)
	}

	s.router = r
}

// Handler returns the HTTP handler serving the health endpoints.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
// Returns ListenError if the address cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("health server already started")
	}

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return &errors.ListenError{Addr: s.addr, Err: err}
	}

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.server = server
	s.listener = ln
	s.served = make(chan struct{})

	go func() {
		defer close(s.served)

		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server stopped", "error", err)
		}
	}()

	s.log.Info("Health endpoint listening", "addr", ln.Addr().String())

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Shutdown stops the server gracefully. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server, served := s.server, s.served
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown health server: %w", err)
	}

	<-served

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	identity := s.identity
	if identity == nil {
		identity = &mcp.Implementation{Name: "stdio-gateway", Version: "unknown"}
	}

	s.writeJSON(w, identity)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.status())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug("Health request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
