package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/api/handlers"
	"github.com/amaumene/privatecinema/internal/api/middleware"
	"github.com/amaumene/privatecinema/internal/config"
	"github.com/amaumene/privatecinema/internal/controllers"
	"github.com/amaumene/privatecinema/internal/metrics"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/services/identity"
)

// Server represents the HTTP server
type Server struct {
	server       *http.Server
	db           *models.Database
	claimCtrl    *controllers.ClaimController
	ingestCtrl   *controllers.IngestController
	playbackCtrl *controllers.PlaybackController
	enrichCtrl   *controllers.EnrichController
	verifier     *identity.Verifier
	maxBody      int64
	logger       *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	db *models.Database,
	claimCtrl *controllers.ClaimController,
	ingestCtrl *controllers.IngestController,
	playbackCtrl *controllers.PlaybackController,
	enrichCtrl *controllers.EnrichController,
	verifier *identity.Verifier,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		db:           db,
		claimCtrl:    claimCtrl,
		ingestCtrl:   ingestCtrl,
		playbackCtrl: playbackCtrl,
		enrichCtrl:   enrichCtrl,
		verifier:     verifier,
		maxBody:      cfg.IngestMaxBodyBytes,
		logger:       logger,
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// routes lists every path served, for metric labels
var routes = map[string]bool{
	"/health":         true,
	"/status":         true,
	"/metrics":        true,
	"/claimToken":     true,
	"/agentClaim":     true,
	"/agentIngest":    true,
	"/playbackReport": true,
	"/tmdbEnrich":     true,
}

// Handler builds the routed and instrumented HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return middleware.Logging(metrics.Middleware(routes, middleware.Tracing(mux)), s.logger)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	requireUser := middleware.RequireUser(s.verifier, controllers.ErrUnauthenticated, handlers.ErrorWriter(s.logger), s.logger)

	// Operational endpoints
	mux.Handle("GET /health", handlers.NewHealthHandler(s.logger))
	mux.Handle("GET /status", handlers.NewStatusHandler(s.db, s.logger))
	mux.Handle("GET /metrics", metrics.Handler())

	// Link handshake
	claimHandler := handlers.NewClaimHandler(s.claimCtrl, s.logger)
	mux.Handle("POST /claimToken", requireUser(http.HandlerFunc(claimHandler.IssueToken)))
	mux.HandleFunc("POST /agentClaim", claimHandler.AgentClaim)

	// Agent ingest, authenticated by API key inside the controller
	mux.Handle("POST /agentIngest", handlers.NewIngestHandler(s.ingestCtrl, s.maxBody, s.logger))

	// Player and library
	mux.Handle("POST /playbackReport", requireUser(handlers.NewPlaybackHandler(s.playbackCtrl, s.logger)))
	mux.Handle("POST /tmdbEnrich", requireUser(handlers.NewEnrichHandler(s.enrichCtrl, s.logger)))
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server and waits for pending
// lastSeen updates
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.ingestCtrl.Wait()
	return err
}
