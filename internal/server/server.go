// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/jobs"
	"blueprintvision/internal/tiling"
)

// Analyzer is the pipeline entry point the server drives.
type Analyzer interface {
	Analyze(ctx context.Context, img tiling.Image) (detection.Result, error)
}

type Server struct {
	analyzer Analyzer
	jobs     *jobs.Manager
	log      *zap.Logger
	// SyncTimeout bounds analyses run inline with ?sync=true.
	SyncTimeout time.Duration
}

func New(a Analyzer, jm *jobs.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{analyzer: a, jobs: jm, log: logger, SyncTimeout: 5 * time.Minute}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/analyze", s.handleAnalyze)
	api.GET("/jobs/:id", s.handleJob)
	api.POST("/tags/parse", s.handleParseTags)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	return err
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func abort(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
