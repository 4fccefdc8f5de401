package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/windspot/windspot/internal/telemetry"

// Fetch outcomes recorded per source call.
const (
	OutcomeValue = "value"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// SourceMetrics records live-conditions source calls and resolutions.
// A nil *SourceMetrics is valid and records nothing.
type SourceMetrics struct {
	fetchDuration metric.Float64Histogram
	fetchTotal    metric.Int64Counter
	resolutions   metric.Int64Counter
}

// NewSourceMetrics creates the instruments on the global meter provider.
func NewSourceMetrics() (*SourceMetrics, error) {
	meter := otel.Meter(meterName)

	fetchDuration, err := meter.Float64Histogram(
		"live.source.fetch.duration",
		metric.WithDescription("Duration of live-conditions source fetches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fetchTotal, err := meter.Int64Counter(
		"live.source.fetch.total",
		metric.WithDescription("Live-conditions source fetches by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter(
		"live.resolution.total",
		metric.WithDescription("Live-conditions requests by resolution branch"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &SourceMetrics{
		fetchDuration: fetchDuration,
		fetchTotal:    fetchTotal,
		resolutions:   resolutions,
	}, nil
}

// RecordFetch records one source call.
func (m *SourceMetrics) RecordFetch(ctx context.Context, source, role, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source.name", source),
		attribute.String("source.role", role),
		attribute.String("fetch.outcome", outcome),
	)
	// Detach from the request so a cancelled fetch is still counted.
	ctx = context.WithoutCancel(ctx)
	m.fetchDuration.Record(ctx, duration.Seconds(), attrs)
	m.fetchTotal.Add(ctx, 1, attrs)
}

// RecordResolution records which branch answered a request.
func (m *SourceMetrics) RecordResolution(ctx context.Context, resolution string) {
	if m == nil {
		return
	}
	m.resolutions.Add(context.WithoutCancel(ctx), 1,
		metric.WithAttributes(attribute.String("resolution", resolution)),
	)
}
