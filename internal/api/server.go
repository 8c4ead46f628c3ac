// Package api serves catalog search, run health and the duplicate-review
// queue over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/search"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Searcher ranks canonical jobs.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Result, error)
}

// ReviewQueue lists unresolved duplicate links.
type ReviewQueue interface {
	ListUnreviewed(ctx context.Context, limit int) ([]model.DuplicateLink, error)
	CountUnreviewed(ctx context.Context) (int, error)
}

// ReviewResolver applies a reviewer's decision.
type ReviewResolver interface {
	ResolveReview(ctx context.Context, linkID string, approve bool) (*model.DuplicateLink, error)
}

// Runs reports and triggers pipeline runs.
type Runs interface {
	Latest(ctx context.Context) (*model.RunReport, error)
	Run(ctx context.Context) (*model.RunReport, error)
	State() model.RunState
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes. Registry may be nil to omit /metrics.
type Deps struct {
	Search   Searcher
	Queue    ReviewQueue
	Resolver ReviewResolver
	Runs     Runs
	Health   Pinger
	Registry *prometheus.Registry
}

// Server is the HTTP surface.
type Server struct {
	deps   Deps
	router *gin.Engine
	logger *slog.Logger

	// base outlives requests; runs triggered over HTTP use it.
	base context.Context
}

// NewServer builds the router with recovery and request logging.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		deps:   deps,
		router: gin.New(),
		logger: logger.With("component", "api"),
		base:   context.Background(),
	}
	s.router.Use(gin.Recovery(), loggerMiddleware(s.logger))
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/search", s.searchGet)
	s.router.POST("/search", s.searchPost)
	s.router.GET("/runs/latest", s.latestRun)
	s.router.POST("/runs", s.triggerRun)
	s.router.GET("/reviews", s.listReviews)
	s.router.POST("/reviews/:id", s.resolveReview)
	if s.deps.Registry != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.base = ctx
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve http: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// loggerMiddleware logs one line per request.
func loggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			args = append(args, "query", q)
		}
		if len(c.Errors) > 0 {
			logger.Error("http request with errors", append(args, "errors", c.Errors.String())...)
			return
		}
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			logger.Debug("http request", args...)
			return
		}
		logger.Info("http request", args...)
	}
}
