// Package config loads windspot settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/windspot/windspot/internal/database"
)

// Station binding backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Port string `validate:"required,numeric"`
	Env  string `validate:"required"`

	// RequireTLS rejects requests forwarded as plain HTTP.
	RequireTLS bool

	Log LogConfig

	Live LiveConfig

	StationDumpBaseURL string `validate:"omitempty,url"`
	ClientRawBaseURL   string `validate:"omitempty,url"`

	StationsBackend string `validate:"oneof=file postgres"`
	StationsFile    string `validate:"required_if=StationsBackend file"`

	// Database is only validated when StationsBackend is postgres.
	Database database.Config `validate:"-"`

	// RefreshInterval triggers periodic warm-up when positive.
	RefreshInterval time.Duration `validate:"min=0"`
	RefreshWorkers  int           `validate:"min=1,max=64"`

	PubSubProjectID    string
	PubSubSubscription string `validate:"required_with=PubSubProjectID"`

	// OpsSigningKey enables the operator endpoints when set.
	OpsSigningKey string `validate:"omitempty,min=16"`

	OTelEnabled  bool
	OTelEndpoint string `validate:"required_if=OTelEnabled true"`
}

// LogConfig controls log level and optional rotating file output.
type LogConfig struct {
	Level      string `validate:"oneof=trace debug info warn error fatal panic disabled"`
	File       string
	MaxSizeMB  int `validate:"min=1"`
	MaxBackups int `validate:"min=0"`
	MaxAgeDays int `validate:"min=0"`
}

// LiveConfig controls the live-conditions pipeline.
type LiveConfig struct {
	StaleAfter   time.Duration `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gt=0"`
	CacheTTL     time.Duration `validate:"min=0"`
	RateLimit    int           `validate:"min=1"`
}

// Load reads a .env file when present, then the environment, and validates
// the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for missing keys.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		Port: r.str("APP_PORT", "8080"),
		Env:  r.str("APP_ENV", "development"),
		Log: LogConfig{
			Level:      strings.ToLower(r.str("LOG_LEVEL", "info")),
			File:       r.str("LOG_FILE", ""),
			MaxSizeMB:  r.int("LOG_MAX_SIZE_MB", 100),
			MaxBackups: r.int("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: r.int("LOG_MAX_AGE_DAYS", 14),
		},
		Live: LiveConfig{
			StaleAfter:   r.duration("LIVE_STALE_AFTER", 60*time.Minute),
			FetchTimeout: r.duration("LIVE_FETCH_TIMEOUT", 8*time.Second),
			CacheTTL:     r.duration("LIVE_CACHE_TTL", 2*time.Minute),
			RateLimit:    r.int("LIVE_RATE_LIMIT", 120),
		},
		RequireTLS:         r.bool("REQUIRE_TLS", false),
		StationDumpBaseURL: r.str("STATIONDUMP_BASE_URL", ""),
		ClientRawBaseURL:   r.str("CLIENTRAW_BASE_URL", ""),
		StationsBackend:    r.str("STATIONS_BACKEND", BackendFile),
		StationsFile:       r.str("STATIONS_FILE", "stations.yaml"),
		Database: database.Config{
			Host:            r.str("DB_HOST", "localhost"),
			Port:            r.int("DB_PORT", 5432),
			User:            r.str("DB_USER", "windspot"),
			Password:        r.str("DB_PASSWORD", ""),
			Database:        r.str("DB_NAME", "windspot"),
			SSLMode:         r.str("DB_SSL_MODE", "disable"),
			MaxConns:        r.int("DB_MAX_CONNS", 10),
			MinConns:        r.int("DB_MIN_CONNS", 1),
			ConnMaxLifetime: r.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		RefreshInterval:    r.duration("REFRESH_INTERVAL", 0),
		RefreshWorkers:     r.int("REFRESH_WORKERS", 4),
		PubSubProjectID:    r.str("PUBSUB_PROJECT_ID", ""),
		PubSubSubscription: r.str("PUBSUB_SUBSCRIPTION", ""),
		OpsSigningKey:      r.str("OPS_SIGNING_KEY", ""),
		OTelEnabled:        r.bool("OTEL_ENABLED", false),
		OTelEndpoint:       r.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	if err := r.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints, including the database block when the
// postgres backend is selected.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StationsBackend == BackendPostgres {
		if err := validate.Struct(c.Database); err != nil {
			return fmt.Errorf("invalid database config: %w", err)
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// reader collects parse errors so every bad key is reported at once.
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) err() error {
	return errors.Join(r.errs...)
}
