package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-render/internal/export"
	"github.com/heimdex/heimdex-render/internal/playback"
	"github.com/heimdex/heimdex-render/internal/presets"
	"github.com/heimdex/heimdex-render/internal/store"
)

// JobService is what the handlers need from the job manager.
type JobService interface {
	Submit(ctx context.Context, req export.Request) (*store.Job, error)
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*store.Job, error)
	List(ctx context.Context, limit int) ([]*store.Job, error)
	ActiveCount() int
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port             int
	Jobs             JobService
	Repository       ConfigReader
	Presets          *presets.Catalog
	PlaybackServer   playback.PlaybackService
	DefaultOutputDir string
	Logger           *slog.Logger
	StartTime        time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
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
