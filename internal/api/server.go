package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kavach/internal/behavior"
	"github.com/opensource-finance/kavach/internal/domain"
	"github.com/opensource-finance/kavach/internal/metrics"
	"github.com/opensource-finance/kavach/internal/parser"
	"github.com/opensource-finance/kavach/internal/pipeline"
	"github.com/opensource-finance/kavach/internal/risk"
	"github.com/opensource-finance/kavach/internal/rules"
)

// Dependencies are the components the API serves. Repo, Cache and Bus may
// be nil; the endpoints that need them answer 503.
type Dependencies struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Scorer   *risk.Scorer
	Detector *behavior.Detector
	Pipeline *pipeline.Processor
	Engine   *rules.Engine
	Parser   *parser.Parser
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	limiter *RateLimiter
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg *domain.Config, deps Dependencies, version string) *Server {
	handler := NewHandler(deps, cfg.Server.Async, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(metrics.Middleware)     // Prometheus request metrics
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	var limiter *RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	// Operational endpoints are never limited or authenticated
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		// Stateless scoring
		r.Post("/risk/analyze", handler.AnalyzeRisk)
		r.Post("/risk/report", handler.RiskReport)

		// Per-user endpoints
		r.Group(func(r chi.Router) {
			if cfg.Auth.JWTSecret != "" {
				r.Use(AuthMiddleware(cfg.Auth.JWTSecret))
			}

			r.Post("/behavior/init", handler.InitProfile)
			r.Post("/behavior/analyze", handler.AnalyzeBehavior)
			r.Post("/behavior/update", handler.UpdateBehavior)
			r.Get("/behavior/insights", handler.Insights)
			r.Get("/behavior/profile", handler.GetProfile)
			r.Delete("/behavior/profile", handler.ClearProfile)

			r.Post("/transactions", handler.SubmitTransaction)
			r.Post("/transactions/parse", handler.ParseTransaction)
			r.Get("/transactions", handler.ListTransactions)
			r.Get("/transactions/{id}", handler.GetTransaction)
		})

		// Fraud feedback
		r.Post("/fraud/report", handler.ReportFraud)
		r.Post("/fraud/verify", handler.VerifyTransaction)
		r.Get("/fraud/stats", handler.FraudStats)

		// Operator rules
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		limiter: limiter,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server. It blocks until the server stops.
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

// StartMaintenance runs background housekeeping until ctx is done.
func (s *Server) StartMaintenance(ctx context.Context) {
	if s.limiter != nil {
		go s.limiter.Cleanup(ctx, time.Minute)
	}
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
