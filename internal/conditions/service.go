package conditions

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/windspot/windspot/internal/telemetry"
)

const tracerName = "github.com/windspot/windspot/internal/conditions"

// DefaultFetchTimeout bounds a single source fetch when the source sets no timeout.
const DefaultFetchTimeout = 8 * time.Second

// Resolution describes which branch produced a result.
type Resolution string

const (
	ResolutionFreshPrimary Resolution = "fresh_primary"
	ResolutionFallback     Resolution = "fallback"
	ResolutionStalePrimary Resolution = "stale_primary"
	ResolutionEmpty        Resolution = "empty"
	ResolutionNoPrimary    Resolution = "no_primary"
)

// Result is a resolved reading together with where it came from.
type Result struct {
	// Conditions is nil when no source produced a usable reading.
	Conditions *LiveConditions

	// Source is the name of the source that produced Conditions.
	Source string

	Resolution Resolution
}

// Stale reports whether the result is a primary reading served past its threshold.
func (r Result) Stale() bool {
	return r.Resolution == ResolutionStalePrimary
}

// ServiceConfig holds configuration for the live-conditions service.
type ServiceConfig struct {
	// Registry holds the available sources (required).
	Registry *Registry

	// Evaluator classifies primary readings; defaults to DefaultStaleAfter.
	Evaluator *StalenessEvaluator

	// FetchTimeout bounds each source fetch unless the source declares its own.
	// Default: 8 seconds
	FetchTimeout time.Duration

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records per-source outcomes (optional).
	Metrics *telemetry.SourceMetrics
}

// Service picks one live reading per station from the registered sources.
// It keeps no per-request state, so concurrent calls are independent.
type Service struct {
	registry     *Registry
	evaluator    *StalenessEvaluator
	fetchTimeout time.Duration
	logger       zerolog.Logger
	metrics      *telemetry.SourceMetrics
	tracer       trace.Tracer
}

// NewService creates a new live-conditions service.
func NewService(cfg ServiceConfig) *Service {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = NewStalenessEvaluator(DefaultStaleAfter)
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	return &Service{
		registry:     registry,
		evaluator:    evaluator,
		fetchTimeout: fetchTimeout,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       otel.Tracer(tracerName),
	}
}

// FetchLiveConditions returns the best available reading using the system clock.
func (s *Service) FetchLiveConditions(ctx context.Context, stationID int) (*LiveConditions, error) {
	return s.Fetch(ctx, stationID, SystemClock)
}

// Fetch returns the best available reading for stationID judged against clock.
// A nil reading with a nil error means no source could answer.
func (s *Service) Fetch(ctx context.Context, stationID int, clock Clock) (*LiveConditions, error) {
	res, err := s.Resolve(ctx, stationID, clock)
	if err != nil {
		return nil, err
	}
	return res.Conditions, nil
}

// Resolve runs the primary/fallback decision for stationID.
//
// Order of preference: a fresh primary reading, then a fallback reading, then
// a stale primary reading, then nothing. The fallback is fetched only after
// the primary has failed, come back empty, or come back stale. Source errors
// never reach the caller; an error is returned only for a nil clock or when
// the caller's own context ended before anything was found.
func (s *Service) Resolve(ctx context.Context, stationID int, clock Clock) (Result, error) {
	if clock == nil {
		return Result{}, ErrNilClock
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	ctx, span := s.tracer.Start(ctx, "conditions.Resolve",
		trace.WithAttributes(attribute.Int("station.id", stationID)),
	)
	defer span.End()

	res := s.resolve(ctx, stationID, clock)

	span.SetAttributes(
		attribute.String("conditions.resolution", string(res.Resolution)),
		attribute.String("conditions.source", res.Source),
	)
	s.metrics.RecordResolution(ctx, string(res.Resolution))

	if res.Conditions == nil {
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Service) resolve(ctx context.Context, stationID int, clock Clock) Result {
	sel := s.registry.Select(stationID)

	primary := sel.Primary()
	if primary == nil {
		return Result{Resolution: ResolutionNoPrimary}
	}

	var stale *LiveConditions
	if reading := s.attempt(ctx, primary, stationID); reading != nil {
		if !s.evaluator.IsStale(reading, clock) {
			return Result{Conditions: reading, Source: primary.Name(), Resolution: ResolutionFreshPrimary}
		}
		s.logger.Debug().
			Int("station_id", stationID).
			Str("source", primary.Name()).
			Str("timestamp", reading.Timestamp).
			Msg("primary reading is stale")
		stale = reading
	}

	// A caller that has gone away gets whatever the primary left behind.
	if fallback := sel.Fallback(); fallback != nil && ctx.Err() == nil {
		if reading := s.attempt(ctx, fallback, stationID); reading != nil {
			return Result{Conditions: reading, Source: fallback.Name(), Resolution: ResolutionFallback}
		}
	}

	if stale != nil {
		return Result{Conditions: stale, Source: primary.Name(), Resolution: ResolutionStalePrimary}
	}
	return Result{Resolution: ResolutionEmpty}
}

// attempt runs one source fetch under its own deadline and returns a private
// copy of the reading, or nil on error or empty.
func (s *Service) attempt(ctx context.Context, src Source, stationID int) *LiveConditions {
	timeout := s.fetchTimeout
	if ts, ok := src.(TimeoutSource); ok && ts.Timeout() > 0 {
		timeout = ts.Timeout()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	reading, err := src.Fetch(fetchCtx, stationID)
	duration := time.Since(start)

	role := "primary"
	if src.IsFallback() {
		role = "fallback"
	}

	switch {
	case err != nil:
		s.metrics.RecordFetch(ctx, src.Name(), role, telemetry.OutcomeError, duration)
		s.logger.Warn().
			Err(err).
			Int("station_id", stationID).
			Str("source", src.Name()).
			Str("role", role).
			Dur("duration", duration).
			Msg("live conditions fetch failed")
		return nil
	case reading == nil:
		s.metrics.RecordFetch(ctx, src.Name(), role, telemetry.OutcomeEmpty, duration)
		s.logger.Debug().
			Int("station_id", stationID).
			Str("source", src.Name()).
			Str("role", role).
			Msg("source returned no reading")
		return nil
	}

	s.metrics.RecordFetch(ctx, src.Name(), role, telemetry.OutcomeValue, duration)
	out := *reading
	return &out
}
