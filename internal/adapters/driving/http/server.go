package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driving"
)

// maxIngressBody bounds a receipts.new body
const maxIngressBody = 64 << 10

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	authService      driving.AuthService
	ingressService   driving.IngressService
	sourceService    driving.SourceService
	ledgerService    driving.LedgerService
	aggregateService driving.AggregateService

	// Health checks, keyed by component name; nil entries are skipped
	checks map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// Services groups the driving ports the server exposes
type Services struct {
	Auth       driving.AuthService
	Ingress    driving.IngressService
	Sources    driving.SourceService
	Ledger     driving.LedgerService
	Aggregates driving.AggregateService
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, svc Services, checks map[string]Pinger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		logger:           logger,
		authService:      svc.Auth,
		ingressService:   svc.Ingress,
		sourceService:    svc.Sources,
		ledgerService:    svc.Ledger,
		aggregateService: svc.Aggregates,
		checks:           checks,
	}

	s.setupRoutes()

	mws := []middleware{withRequestID, withRequestLog(logger), withRecovery(logger)}
	if len(cfg.AllowedOrigins) > 0 {
		mws = append(mws, withCORS(cfg.AllowedOrigins))
	}
	handler := chain(s.router, mws...)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)

	// Ingress (shared secret)
	s.router.Handle("POST /api/v1/ingress",
		authMiddleware.RequireIngressKey(http.HandlerFunc(s.handleIngress)))

	// Source endpoints
	s.router.Handle("GET /api/v1/sources",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListSources)))
	s.router.Handle("GET /api/v1/sources/{id}/watermark",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetWatermark)))
	s.router.Handle("POST /api/v1/sources/{id}/poll",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleTriggerPoll))))

	// Period endpoints
	s.router.Handle("GET /api/v1/periods",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListAggregates)))
	s.router.Handle("GET /api/v1/periods/{period}/aggregate",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetAggregate)))
	s.router.Handle("POST /api/v1/periods/{period}/aggregate",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleRefreshAggregate))))
	s.router.Handle("GET /api/v1/periods/{period}/rows",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListRows)))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
