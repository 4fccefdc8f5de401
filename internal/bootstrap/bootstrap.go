// Package bootstrap assembles the live-conditions stack from configuration.
package bootstrap

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/conditions"
	"github.com/windspot/windspot/internal/conditions/clientraw"
	"github.com/windspot/windspot/internal/conditions/stationdump"
	"github.com/windspot/windspot/internal/config"
	"github.com/windspot/windspot/internal/database"
	"github.com/windspot/windspot/internal/provider/resilience"
	"github.com/windspot/windspot/internal/stations"
)

// Bindings is the configured station bindings backend plus its pool, if any.
type Bindings struct {
	stations.Repository
	pool *pgxpool.Pool
}

// OpenBindings opens the backend named by cfg.StationsBackend.
func OpenBindings(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Bindings, error) {
	if cfg.StationsBackend != config.BackendPostgres {
		log.Info().Str("file", cfg.StationsFile).Msg("station bindings from file")
		return &Bindings{Repository: stations.NewFileRepository(cfg.StationsFile)}, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	repo := stations.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("station bindings from database")
	return &Bindings{Repository: repo, pool: pool}, nil
}

// Index snapshots the enabled bindings for source construction.
func (b *Bindings) Index(ctx context.Context) (*stations.Index, error) {
	list, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	return stations.NewIndex(list)
}

// Check is the readiness probe for the bindings backend.
func (b *Bindings) Check(ctx context.Context) error {
	if b.pool != nil {
		return b.pool.Ping(ctx)
	}
	_, err := b.List(ctx)
	return err
}

// Close releases the database pool, if any.
func (b *Bindings) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// BuildRegistry registers a source for every configured base URL. Each source
// gets its own resilient client so one host tripping its breaker leaves the
// other usable.
func BuildRegistry(cfg *config.Config, index *stations.Index, upstreams *resilience.HealthRegistry, log zerolog.Logger) *conditions.Registry {
	registry := conditions.NewRegistry()

	if cfg.StationDumpBaseURL != "" {
		registry.Register(stationdump.NewClient(stationdump.ClientConfig{
			BaseURL:    cfg.StationDumpBaseURL,
			Stations:   index.ForSource(stationdump.SourceName),
			HTTPClient: upstreamClient(stationdump.SourceName, upstreams, log),
			Logger:     log.With().Str("source", stationdump.SourceName).Logger(),
		}))
	}

	if cfg.ClientRawBaseURL != "" {
		registry.Register(clientraw.NewClient(clientraw.ClientConfig{
			BaseURL:    cfg.ClientRawBaseURL,
			Stations:   index.ForSource(clientraw.SourceName),
			HTTPClient: upstreamClient(clientraw.SourceName, upstreams, log),
			Logger:     log.With().Str("source", clientraw.SourceName).Logger(),
		}))
	}

	for _, s := range registry.Sources() {
		log.Info().
			Str("source", s.Name()).
			Bool("fallback", s.IsFallback()).
			Msg("live source registered")
	}
	return registry
}

func upstreamClient(name string, upstreams *resilience.HealthRegistry, log zerolog.Logger) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Health = upstreams
	cfg.Logger = log.With().Str("upstream", name).Logger()
	return resilience.NewClient(cfg)
}

// ErrNoSources is returned by SourcesCheck when no base URL is configured.
var ErrNoSources = errors.New("no live sources configured")

// SourcesCheck fails readiness while the registry is empty.
func SourcesCheck(registry *conditions.Registry) func(context.Context) error {
	return func(context.Context) error {
		if n := len(registry.Sources()); n == 0 {
			return ErrNoSources
		}
		return nil
	}
}
