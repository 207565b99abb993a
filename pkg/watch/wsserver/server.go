// Package wsserver exposes the watch pipeline over WebSocket. Clients open
// GET /watch?path=<absolute path> and exchange subscribe/unsubscribe frames.
package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/fsx/internal/logger"
	"github.com/marmos91/fsx/pkg/watch"
)

// Config holds the watch server settings.
type Config struct {
	Port             int           `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	MaxSubscriptions int           `mapstructure:"max_subscriptions" yaml:"max_subscriptions" validate:"gte=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
}

// Server runs the WebSocket endpoint with graceful shutdown.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates the watch WebSocket server in a stopped state.
func NewServer(config Config, registry *watch.Registry) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", config.Port),
		Handler:     NewRouter(registry),
		ReadTimeout: config.ReadTimeout,
		IdleTimeout: config.IdleTimeout,
	}

	return &Server{server: server, config: config}
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("watch server listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("watch server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("watch server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("watch server shutdown error: %w", err)
			logger.Error("watch server shutdown error", "error", err)
		} else {
			logger.Info("watch server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}

// NewRouter builds the chi router for the watch endpoint. No request
// timeout middleware: WebSocket connections are long lived.
func NewRouter(registry *watch.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h := NewHandler(registry)
	r.Get("/watch", h.Watch)
	r.Get("/health", healthHandler(registry))

	return r
}

var processStart = time.Now()

// healthHandler reports liveness plus watch pipeline counts.
func healthHandler(registry *watch.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"uptime":        time.Since(processStart).Round(time.Second).String(),
			"connections":   registry.ConnectionCount(),
			"subscriptions": registry.TotalSubscriptions(),
		})
	}
}
