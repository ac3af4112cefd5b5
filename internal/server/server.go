// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/pipeline"
	"github.com/roach88/citytrain/internal/tracker"
)

// Backend is what the handlers need from the application.
type Backend interface {
	Enhance(ctx context.Context, src string, funcs []pipeline.FuncInterface) (*ast.Feed, error)
	Breadcrumb(ctx context.Context, key string) (tracker.Breadcrumb, error)
}

// Server is the citytrain HTTP proxy.
type Server struct {
	backend Backend
	router  *gin.Engine
	logger  *slog.Logger
}

// New creates the server and its routes.
func New(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		backend: backend,
		router:  router,
		logger:  logger.With("component", "server"),
	}
	router.Use(s.logRequests)

	router.GET("/healthz", s.handleHealth)
	router.GET("/proxy", s.handleProxy)
	router.GET("/breadcrumbs/:key", s.handleBreadcrumb)

	return s
}

// Handler returns the router for use with net/http or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}
