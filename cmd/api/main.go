// Package main provides the entrypoint for the windspot API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/api"
	"github.com/windspot/windspot/internal/api/handler"
	"github.com/windspot/windspot/internal/api/middleware"
	"github.com/windspot/windspot/internal/auth"
	"github.com/windspot/windspot/internal/bootstrap"
	"github.com/windspot/windspot/internal/conditions"
	"github.com/windspot/windspot/internal/config"
	"github.com/windspot/windspot/internal/livecache"
	"github.com/windspot/windspot/internal/logging"
	"github.com/windspot/windspot/internal/provider/resilience"
	"github.com/windspot/windspot/internal/telemetry"
	"github.com/windspot/windspot/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "windspot-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log, logCloser := logging.New(logging.Config{
		Service:    serviceName,
		Version:    Version,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close() //nolint:errcheck // best effort on exit

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting windspot API")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	sourceMetrics, err := telemetry.NewSourceMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize source metrics")
	}

	// Station bindings
	bindings, err := bootstrap.OpenBindings(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open station bindings")
	}
	defer bindings.Close()

	index, err := bindings.Index(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load station bindings")
	}
	log.Info().Int("stations", len(index.StationIDs())).Msg("station bindings loaded")

	// Sources and orchestration
	upstreams := resilience.NewHealthRegistry()
	registry := bootstrap.BuildRegistry(cfg, index, upstreams, log)

	service := conditions.NewService(conditions.ServiceConfig{
		Registry:     registry,
		Evaluator:    conditions.NewStalenessEvaluator(cfg.Live.StaleAfter),
		FetchTimeout: cfg.Live.FetchTimeout,
		Logger:       log.With().Str("component", "conditions").Logger(),
		Metrics:      sourceMetrics,
	})

	cache := livecache.New(livecache.Config{
		Resolver: service,
		TTL:      cfg.Live.CacheTTL,
		Logger:   log.With().Str("component", "livecache").Logger(),
	})

	// Warm-up
	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Concurrency: cfg.RefreshWorkers,
			Timeout:     2 * cfg.Live.FetchTimeout,
		},
		Live:     cache,
		Stations: index,
		Logger:   log.With().Str("component", "refresh").Logger(),
	})

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		RefreshJob: refreshJob,
		Interval:   cfg.RefreshInterval,
		Pruner:     cache,
		Logger:     log.With().Str("component", "scheduler").Logger(),
	})
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	if cfg.PubSubProjectID != "" {
		pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			RefreshJob:       refreshJob,
			Live:             cache,
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer pubsubHandler.Close() //nolint:errcheck // best effort on exit

		go func() {
			if err := pubsubHandler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	// Operator tokens
	tokens := auth.NewTokenService(auth.TokenConfig{SigningKey: cfg.OpsSigningKey})
	if !tokens.Enabled() {
		log.Warn().Msg("OPS_SIGNING_KEY not set - operator endpoints are disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   serviceName,
		Metrics:       httpMetrics,
		RequireTLS:    cfg.RequireTLS,
		Live:          cache,
		Stations:      bindings.Repository,
		LiveRateLimit: middleware.PerMinute(cfg.Live.RateLimit),
		Tokens:        tokens,
		Upstreams:     upstreams,
		Cache:         cache,
		Refresh:       refreshJob,
		ReadinessChecks: map[string]handler.ReadinessCheck{
			"stations": bindings.Check,
			"sources":  bootstrap.SourcesCheck(registry),
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
