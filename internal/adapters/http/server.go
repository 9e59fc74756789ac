package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
)

const defaultShutdownTimeout = 10 * time.Second

var errDraining = fmt.Errorf("%w: server is draining", domain.ErrUnavailable)

// Server is the inbound HTTP listener. It doubles as a health checker so
// readiness reports 503 as soon as shutdown begins.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
	drain  time.Duration

	mu       sync.Mutex
	ln       net.Listener
	draining atomic.Bool
}

// NewServer builds a server for handler from cfg. A nil logger discards.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger: logger,
		drain:  cfg.DrainDelay,
	}
}

// Listen binds the address without serving. Calling it before Start lets
// callers learn the real port when the configured one is 0.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	return nil
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("starting HTTP server", slog.String("addr", s.Addr()))

	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown flips readiness to draining, waits out the drain delay, then
// stops accepting connections and waits for in-flight requests. Without a
// deadline on ctx a 10 second bound applies.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	s.draining.Store(true)
	if s.drain > 0 {
		s.logger.Info("draining HTTP server", slog.Duration("delay", s.drain))
		select {
		case <-time.After(s.drain):
		case <-ctx.Done():
		}
	}

	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// Addr is the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Name implements ports.HealthChecker.
func (s *Server) Name() string { return "http" }

// HealthCheck fails once shutdown has started.
func (s *Server) HealthCheck(context.Context) error {
	if s.draining.Load() {
		return errDraining
	}
	return nil
}
