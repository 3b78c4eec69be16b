// Package server exposes the game over a JSON API with a server-sent event
// stream of conversation updates.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/atlas/internal/calllog"
	"github.com/zulandar/atlas/internal/game"
	"github.com/zulandar/atlas/internal/models"
)

const (
	// DefaultMaxUploadBytes caps photo uploads when Opts leaves it unset.
	DefaultMaxUploadBytes = 10 << 20
	// DefaultHeartbeat is how often the event stream sends a keepalive.
	DefaultHeartbeat = 15 * time.Second

	shutdownTimeout = 5 * time.Second
)

// CallSource lists recorded inference calls. *calllog.Store satisfies it.
type CallSource interface {
	Recent(ctx context.Context, limit int) ([]models.InferenceCall, error)
	Summary(ctx context.Context) ([]calllog.OperationSummary, error)
}

// Opts holds the collaborators for the HTTP handlers.
type Opts struct {
	Engine         *game.Engine
	Calls          CallSource // optional; /api/calls returns 404 without it
	MaxUploadBytes int64
	Heartbeat      time.Duration
}

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Opts
	Host string
	Port int
	Out  io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)
	return router, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully. Open event streams end with ctx.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts.Opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		host := opts.Host
		if host == "" {
			host = "localhost"
		}
		fmt.Fprintf(opts.Out, "Atlas running at http://%s\n", net.JoinHostPort(host, strconv.Itoa(opts.Port)))
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
