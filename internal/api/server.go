package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/tradeproof/internal/audit"
	"github.com/opensource-finance/tradeproof/internal/crosscheck"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/metrics"
	"github.com/opensource-finance/tradeproof/internal/ratelimit"
	"github.com/opensource-finance/tradeproof/internal/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the components the API serves. Repo, Cache, Bus, Limiter and
// Metrics may be nil.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *crosscheck.Engine
	Processor *report.Processor
	Chain     *audit.Chain
	Metrics   *metrics.Metrics
	Limiter   ratelimit.Limiter

	// Gatherer backs /metrics; defaults to the global registry.
	Gatherer prometheus.Gatherer

	Version string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// API routes (tenant required)
	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		if deps.Limiter != nil {
			r.Use(RateLimitMiddleware(deps.Limiter, deps.Metrics))
		}

		// Cross-checks and reports
		r.Post("/crosscheck", handler.CrossCheck)
		r.Post("/crosscheck/async", handler.CrossCheckAsync)
		r.Get("/reports/{id}", handler.GetReport)
		r.Get("/trades/{tradeId}/reports", handler.ListTradeReports)

		// Readiness
		r.Post("/readiness", handler.ScoreReadiness)
		r.Get("/readiness/{id}", handler.GetAssessment)
		r.Post("/readiness/{id}/recheck", handler.RecheckAssessment)

		// Audit chain
		r.Post("/trades/{tradeId}/events", handler.AppendEvent)
		r.Get("/trades/{tradeId}/events", handler.ListEvents)
		r.Get("/trades/{tradeId}/verify", handler.VerifyTrade)
		r.Post("/audit/verify", handler.VerifyTrades)

		// Custom rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
