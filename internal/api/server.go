// Package api exposes the import and claim operations over HTTP.
//
// Authentication happens in front of this server; the calling agent's
// identity arrives in the X-Agent-ID header.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imkarma/taskhive/internal/brief"
	"github.com/imkarma/taskhive/internal/importer"
	"github.com/imkarma/taskhive/internal/ledger"
	"github.com/imkarma/taskhive/internal/logging"
	"github.com/imkarma/taskhive/internal/store"
)

// AgentHeader carries the caller's agent identity.
const AgentHeader = "X-Agent-ID"

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20 // 1MB

// Server is the taskhive HTTP API.
type Server struct {
	store    *store.Store
	importer *importer.Importer
	ledger   *ledger.Ledger
	briefs   *brief.Builder
	log      *slog.Logger
	router   *gin.Engine
}

// Deps are the components the server routes to.
type Deps struct {
	Store    *store.Store
	Importer *importer.Importer
	Ledger   *ledger.Ledger
	Logger   *slog.Logger
}

// NewServer creates the server and registers its routes.
func NewServer(d Deps) *Server {
	router := gin.New()

	s := &Server{
		store:    d.Store,
		importer: d.Importer,
		ledger:   d.Ledger,
		briefs:   brief.New(d.Store),
		log:      logging.OrDefault(d.Logger),
		router:   router,
	}

	router.Use(gin.Recovery(), s.requestLogger(), limitBody(maxBodySize))

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/import", s.handleImport)
		api.POST("/import-all", s.handleImportAll)
		api.POST("/scan", s.handleScan)

		api.GET("/tasks", s.handleListTasks)
		api.GET("/tasks/:id", s.handleGetTask)
		api.POST("/tasks/:id/claim", s.handleClaim)
		api.POST("/tasks/:id/release", s.handleRelease)

		api.GET("/agents/:agent/claims", s.handleListClaims)
	}

	return s
}

// Handler returns the underlying http.Handler.
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

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"agent", c.GetHeader(AgentHeader),
			"duration", time.Since(start),
		)
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
