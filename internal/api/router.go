// Package api provides the HTTP API for Run Coach.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/api/handler"
	"github.com/breatheroute/runcoach/internal/api/middleware"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/provider/resilience"
	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/internal/timing"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// Metrics is optional; without it no HTTP metrics are recorded.
	Metrics *middleware.Metrics

	// TokenValidator authenticates /v1/me requests.
	TokenValidator middleware.TokenValidator

	CORSAllowedOrigins []string
	RequireTLS         bool

	Fields     *airquality.Service
	Candidates *routing.Service // optional
	Optimizer  *routing.Optimizer
	Timing     *timing.Service
	Risk       *health.Model
	Providers  *resilience.Registry
	Readiness  map[string]handler.ReadinessCheck

	// RefreshStats is reported by /v1/ops/providers (optional).
	RefreshStats func() map[string]any
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing)   // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Providers:    cfg.Providers,
		Fields:       cfg.Fields,
		Checks:       cfg.Readiness,
		RefreshStats: cfg.RefreshStats,
	})
	routeHandler := handler.NewRouteHandler(handler.RouteHandlerConfig{
		Fields:     cfg.Fields,
		Candidates: cfg.Candidates,
		Optimizer:  cfg.Optimizer,
		Risk:       cfg.Risk,
		Timing:     cfg.Timing,
		Logger:     cfg.Logger,
	})
	pollutionHandler := handler.NewPollutionHandler(cfg.Fields, cfg.Risk, cfg.Logger)
	timesHandler := handler.NewTimesHandler(cfg.Timing, cfg.Logger)
	healthHandler := handler.NewHealthHandler(cfg.Risk, cfg.Fields, cfg.Logger)

	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min
	gpxContentType := middleware.RequireContentType("application/gpx+xml", "application/xml", "text/xml", "application/octet-stream")

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.With(standardRateLimit).Get("/ops/providers", opsHandler.ProviderStatus)

		r.Route("/routes", func(r chi.Router) {
			r.Use(expensiveRateLimit)
			r.With(middleware.RequireJSON).Post("/recommend", routeHandler.Recommend)
			r.With(gpxContentType).Post("/candidates/gpx", routeHandler.ImportGPX)
		})

		r.Route("/pollution", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/heatmap", pollutionHandler.Heatmap)
			r.Get("/clean-zones", pollutionHandler.CleanZones)
			r.Get("/point", pollutionHandler.Point)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/times/optimal", timesHandler.Optimal)
			r.Post("/times/weekly", timesHandler.Weekly)
			r.Post("/health/assessment", healthHandler.Assessment)
		})

		// Me endpoints (authenticated) - user-based rate limiting
		r.Route("/me", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.TokenValidator))
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit)) // 100 req/min per user
			r.Use(middleware.RequireJSON)
			r.Post("/exposure", healthHandler.RecordExposure)
			r.Get("/exposure/budget", healthHandler.ExposureBudget)
		})
	})

	return r
}
