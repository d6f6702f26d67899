// Package api exposes the replay session over HTTP: the WebSocket the
// annotation client connects to, dataset file serving, and operational
// endpoints for status, the run ledger and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gazereplay/gazereplay/internal/extract"
	"github.com/gazereplay/gazereplay/internal/ledger"
	"github.com/gazereplay/gazereplay/internal/playback"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr           string
	Sessions       *SessionManager
	Ledger         ledger.Repository // optional
	Doctor         *extract.CachedDoctor
	Files          *playback.Server
	MetricsEnabled bool
	AllowedOrigins []string
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.Addr,
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// frames are streamed for as long as the client keeps up
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
