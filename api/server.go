// Package api exposes the exporter over HTTP: environment checks, CSV
// exports as attachments and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-templates/config"
	"github.com/aluiziolira/go-scrape-templates/monitoring"
	"github.com/aluiziolira/go-scrape-templates/pipeline"
	"github.com/aluiziolira/go-scrape-templates/popup"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	cfg          *config.Config
	controller   *popup.Controller
	metrics      *monitoring.Metrics
	logger       *slog.Logger
	exporterOpts []pipeline.Option
	router       http.Handler
	httpServer   *http.Server
}

// NewServer builds the API around controller. exporterOpts configure the
// per-request exporter that streams the CSV attachment.
func NewServer(cfg *config.Config, controller *popup.Controller, m *monitoring.Metrics, logger *slog.Logger, exporterOpts ...pipeline.Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:          cfg,
		controller:   controller,
		metrics:      m,
		logger:       logger,
		exporterOpts: append([]pipeline.Option{pipeline.WithMetrics(m)}, exporterOpts...),
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.requestTimeout() + 10*time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestTimeout covers tab resolution plus one injection.
func (s *Server) requestTimeout() time.Duration {
	return 2*s.cfg.Timeout + s.cfg.RenderWait
}
