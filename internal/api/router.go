// Package api provides the HTTP preview server for isochrone maps.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/isopleth/isopleth/internal/api/handler"
	"github.com/isopleth/isopleth/internal/api/middleware"
	"github.com/isopleth/isopleth/internal/api/models"
	"github.com/isopleth/isopleth/internal/api/response"
	"github.com/isopleth/isopleth/internal/isochrone"
	"github.com/isopleth/isopleth/internal/provider/resilience"
	"github.com/isopleth/isopleth/internal/render"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Service     *isochrone.Service
	Renderer    *render.Renderer
	Registry    *resilience.Registry

	// RateLimit is the per-IP request budget per minute for endpoints that
	// call the isochrone provider. Zero uses middleware.UpstreamRateLimit,
	// a negative value disables throttling.
	RateLimit int

	// RequireTLS rejects requests that the load balancer forwarded over
	// plain HTTP.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "isopleth-api"
	}

	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.NewRenderer(render.Config{Logger: cfg.Logger})
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // server.require_tls
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route matches "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewProblem(models.ProblemTypeNotFound, "Method not allowed", http.StatusMethodNotAllowed,
			middleware.GetRequestID(r.Context()))
		problem.Detail = r.Method + " is not supported on " + r.URL.Path
		response.Error(w, r, problem)
	})

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)

	// Upstream endpoints spend the server's single Mapbox token.
	upstreamLimit := middleware.UpstreamRateLimit
	if cfg.RateLimit != 0 {
		upstreamLimit = middleware.PerMinute(cfg.RateLimit)
	}
	upstreamRateLimit := middleware.RateLimitByIP(upstreamLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Service == nil {
			return
		}
		isochroneHandler := handler.NewIsochroneHandler(cfg.Service, cfg.Logger)
		mapHandler := handler.NewMapHandler(cfg.Service, renderer, cfg.Logger)

		r.Group(func(r chi.Router) {
			r.Use(upstreamRateLimit)

			r.Route("/isochrones", func(r chi.Router) {
				r.Get("/", isochroneHandler.GetIsochrones)
				r.With(middleware.RequireJSON).Post("/batch", isochroneHandler.BatchIsochrones)
			})

			r.With(middleware.MapAssets).Get("/maps", mapHandler.GetMap)
		})
	})

	return r
}
