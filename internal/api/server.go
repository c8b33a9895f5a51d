// Package api exposes the journey engine over HTTP. Routing is chi-based;
// every route under /api is organization-scoped via the X-Organization-ID
// header (or org_id query parameter).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/marketsage/journey-engine/internal/config"
	"github.com/marketsage/journey-engine/internal/service/analytics"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/metrics"
	"github.com/marketsage/journey-engine/internal/service/progression"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	corsCfg config.CORSConfig,
	journeys *journey.Service,
	progressions *progression.Service,
	analyticsSvc *analytics.Service,
	metricsSvc *metrics.Service,
) *Server {
	h := NewHandlers(journeys, progressions, analyticsSvc, metricsSvc)
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, corsCfg),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
