// internal/httpserver/server.go
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/smartmark/internal/config"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/routes"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http    *http.Server
	logger  logger.Logger
	started time.Time
	// ends hijacked websocket connections, which Shutdown does not track
	closeConns context.CancelFunc
}

// New builds the HTTP server (router, middlewares, route registration).
func New(cfg *config.Config, loggerClient logger.Logger, d deps.Deps) *Server {
	base, closeConns := context.WithCancel(context.Background())
	s := &http.Server{
		Addr:              cfg.ListenPort,
		BaseContext:       func(net.Listener) context.Context { return base },
		Handler:           NewRouter(loggerClient, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:       s,
		logger:     loggerClient,
		started:    d.StartTime,
		closeConns: closeConns,
	}
}

// NewRouter wires middlewares and every registered route.
func NewRouter(loggerClient logger.Logger, d deps.Deps) http.Handler {
	r := chi.NewRouter()

	// --- Global middlewares (safe defaults)
	// Request timeouts are set per route: /api/live is long-lived.
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID) // X-Request-ID on each request
	r.Use(middleware.Recoverer) // never crash the process on panic
	r.Use(mw.Log(loggerClient)) // structured access logs
	r.Use(mw.Session)           // access token from cookie into the request context

	// Auto-register all routes
	routes.RegisterAll(r, d)

	return r
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	// http.ErrServerClosed is expected on graceful shutdown.
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...")
	err := s.http.Shutdown(ctx)
	s.closeConns()
	return err
}
