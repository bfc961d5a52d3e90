// Package server exposes the sync job over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Syncer runs sync passes. Each call opens and closes its own connections.
type Syncer interface {
	SyncAll(ctx context.Context) (pipeline.Summary, error)
	SyncTarget(ctx context.Context, name string) (pipeline.Outcome, error)
	Targets() []config.Target
}

type Server struct {
	router *gin.Engine
	syncer Syncer
}

func New(syncer Syncer) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{router: gin.New(), syncer: syncer}
	s.router.Use(requestLogger(), gin.CustomRecovery(recovered))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.syncAll)
	s.router.GET("/sync", s.syncAll)
	s.router.GET("/sync/:target", s.syncTarget)
	s.router.GET("/targets", s.targets)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runContext detaches a pass from the request. A client that disconnects
// does not cancel it; every target is still attempted.
func runContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (s *Server) syncAll(c *gin.Context) {
	summary, err := s.syncer.SyncAll(runContext(c))
	if err != nil {
		log.Error().Err(err).Msg("Sync pass could not start")
		c.JSON(http.StatusInternalServerError, SyncResponse{
			Status:    string(pipeline.StatusFailure),
			Error:     err.Error(),
			ErrorKind: pipeline.ErrorKind(err),
		})
		return
	}

	// a completed pass is a 200 even when every target failed; the body
	// carries the per-target outcomes
	c.JSON(http.StatusOK, SummaryResponse(summary))
}

func (s *Server) syncTarget(c *gin.Context) {
	name := c.Param("target")

	outcome, err := s.syncer.SyncTarget(runContext(c), name)
	switch {
	case errors.Is(err, pipeline.ErrTargetNotFound):
		c.JSON(http.StatusNotFound, SyncResponse{
			Status: string(pipeline.StatusFailure),
			Error:  fmt.Sprintf("unknown target %q", name),
		})
		return
	case err != nil:
		log.Error().Err(err).Str("target", name).Msg("Sync could not start")
		c.JSON(http.StatusInternalServerError, SyncResponse{
			Status:    string(pipeline.StatusFailure),
			Error:     err.Error(),
			ErrorKind: pipeline.ErrorKind(err),
		})
		return
	}

	code := http.StatusOK
	if outcome.Status != pipeline.StatusSuccess {
		code = http.StatusInternalServerError
	}
	c.JSON(code, OutcomeResponse(outcome))
}

func (s *Server) targets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"targets": s.syncer.Targets()})
}

func recovered(c *gin.Context, value any) {
	log.Error().Interface("panic", value).Str("path", c.Request.URL.Path).Msg("Handler panicked")
	c.AbortWithStatusJSON(http.StatusInternalServerError, SyncResponse{
		Status:    string(pipeline.StatusFailure),
		Error:     fmt.Sprintf("unhandled failure: %v", value),
		ErrorKind: "unhandled",
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
