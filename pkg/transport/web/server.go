// Package web serves the feed and activity operations over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modoterra/gatewatch/pkg/activity"
	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/daemon"
	"github.com/modoterra/gatewatch/pkg/telemetry"
	"github.com/modoterra/gatewatch/pkg/transport/uds"
)

// Engine is the daemon surface the HTTP API exposes.
type Engine interface {
	Feed(sinceID int64, limit int) uds.FeedResponse
	Poll(ctx context.Context, window int) (telemetry.PollResult, error)
	Clear()
	Pause(set *bool) bool
	Activity(ctx context.Context, q activity.Query) activity.Page
	LogActivity(ctx context.Context, entry core.ActivityEntry) (core.ActivityEntry, error)
	KnownAgents() ([]string, error)
	Status() daemon.Status
}

// Server holds the Gin engine and dependencies for the HTTP API.
type Server struct {
	router *gin.Engine
	engine Engine
	hub    *Hub
	addr   string
	logger *slog.Logger
}

// New creates an HTTP server for the given engine. Entries published to hub
// are streamed to /api/network/tail and /api/network/ws clients.
func New(engine Engine, hub *Hub, addr string, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// Disable automatic redirects that cause 301 issues.
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	s := &Server{
		router: router,
		engine: engine,
		hub:    hub,
		addr:   addr,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	network := api.Group("/network")
	network.GET("/log", s.handleFeed)
	network.GET("/poll", s.handlePoll)
	network.POST("/clear", s.handleClear)
	network.POST("/pause", s.handlePause)
	network.GET("/tail", s.handleTail)
	network.GET("/ws", s.handleWebSocket)

	api.GET("/activity", s.handleActivity)
	api.POST("/activity", s.handleLogActivity)
	api.GET("/agents/known", s.handleKnownAgents)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
