package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"scrapeflow/internal/config"
	"scrapeflow/internal/monitoring"
	"scrapeflow/internal/scraper"
	"scrapeflow/internal/task"

	"go.uber.org/zap"
)

// Pinger is a health-checkable backend dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	scheduler  *scraper.Scheduler
	tasks      task.Store
	backends   map[string]Pinger
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewServer wires the transport layer. backends maps a dependency name to
// its health probe and may be empty in memory-only setups.
func NewServer(cfg *config.Config, sched *scraper.Scheduler, tasks task.Store, backends map[string]Pinger, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		config:    cfg,
		scheduler: sched,
		tasks:     tasks,
		backends:  backends,
		metrics:   m,
		logger:    l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
