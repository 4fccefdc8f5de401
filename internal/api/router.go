// Package api provides the HTTP API for windspot.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/api/handler"
	"github.com/windspot/windspot/internal/api/middleware"
	"github.com/windspot/windspot/internal/api/response"
	"github.com/windspot/windspot/internal/auth"
	"github.com/windspot/windspot/internal/provider/resilience"
	"github.com/windspot/windspot/internal/stations"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// Live resolves station readings (required).
	Live handler.LiveReader

	// Stations lists configured bindings (required).
	Stations stations.Repository

	// LiveRateLimit applies per client IP to the live endpoint.
	LiveRateLimit middleware.RateLimitConfig

	// Tokens verifies operator tokens. Without a signing key the guarded
	// ops endpoints answer 503.
	Tokens *auth.TokenService

	Upstreams       *resilience.HealthRegistry
	Cache           handler.CacheAdmin
	Refresh         handler.RefreshReporter
	ReadinessChecks map[string]handler.ReadinessCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "windspot-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	liveHandler := handler.NewLiveHandler(cfg.Live, cfg.Logger)
	stationsHandler := handler.NewStationsHandler(cfg.Stations, cfg.Logger)
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Upstreams: cfg.Upstreams,
		Cache:     cfg.Cache,
		Refresh:   cfg.Refresh,
		Checks:    cfg.ReadinessChecks,
		Logger:    cfg.Logger,
	})

	opsRead := middleware.RequireScope(cfg.Tokens, auth.ScopeOpsRead)
	cacheWrite := middleware.RequireScope(cfg.Tokens, auth.ScopeCacheWrite)
	opsRateLimit := middleware.RateLimitByOperator(middleware.OpsRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/stations", func(r chi.Router) {
			r.Get("/", stationsHandler.ListStations)
			r.With(middleware.RateLimitByIP(cfg.LiveRateLimit)).
				Get("/{stationId}/live", liveHandler.GetLive)
		})

		r.Route("/ops", func(r chi.Router) {
			// Probes stay public and unthrottled.
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)

			r.With(opsRead, opsRateLimit).Get("/status", opsHandler.SystemStatus)
			r.With(cacheWrite, opsRateLimit, middleware.RequireJSON).
				Post("/cache/invalidate", opsHandler.InvalidateCache)
		})
	})

	return r
}
