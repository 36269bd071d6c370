// Package server exposes the daemon's health and status over HTTP for
// operators; the synchronizer itself has no interactive surface.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dramosoft/tabula-sync/internal/syncer"
)

// Config holds server configuration.
type Config struct {
	Address string
	Debug   bool
}

// Server serves the status endpoints.
type Server struct {
	config *Config
	router *gin.Engine
	status *syncer.Status
	http   *http.Server
}

// New creates the status server over the orchestrator's state.
func New(config *Config, status *syncer.Status) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{
		config: config,
		router: router,
		status: status,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
}

func (s *Server) handleHealth(c *gin.Context) {
	snapshot := s.status.Snapshot()
	code := http.StatusOK
	if !snapshot.Running {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"running": snapshot.Running})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot())
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
