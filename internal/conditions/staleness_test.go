package conditions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/windspot/windspot/internal/conditions"
)

var reference = time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

func reading(ts string) *conditions.LiveConditions {
	return &conditions.LiveConditions{
		Timestamp:     ts,
		WindSpeed:     14,
		GustSpeed:     19,
		WindDirection: "SW",
		Temperature:   16,
	}
}

func TestStalenessEvaluator_Boundary(t *testing.T) {
	eval := conditions.NewStalenessEvaluator(time.Hour)
	clock := conditions.FixedClock(reference)

	tests := []struct {
		name      string
		timestamp string
		stale     bool
	}{
		{"just now", "2026-10-19 14:00:00", false},
		{"59 minutes old", "2026-10-19 13:01:00", false},
		{"59 minutes 59 seconds old", "2026-10-19 12:00:01", false},
		{"exactly 60 minutes old", "2026-10-19 13:00:00", true},
		{"25 hours old", "2026-10-18 13:00:00", true},
		{"reported in the future", "2026-10-19 14:30:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stale, eval.IsStale(reading(tt.timestamp), clock))
		})
	}
}

func TestStalenessEvaluator_RecognizedFormats(t *testing.T) {
	eval := conditions.NewStalenessEvaluator(time.Hour)
	clock := conditions.FixedClock(reference)

	tests := []struct {
		name      string
		timestamp string
	}{
		{"iso with seconds", "2026-10-19 13:55:00"},
		{"iso without seconds", "2026-10-19 13:55"},
		{"dotted day first", "19.10.2026 13:55"},
		{"slashed two digit year", "19/10/26 13:55:00"},
		{"surrounding whitespace", "  2026-10-19 13:55:00 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := conditions.ParseTimestamp(tt.timestamp, time.UTC)
			assert.True(t, ok)
			assert.Equal(t, time.Date(2026, 10, 19, 13, 55, 0, 0, time.UTC), parsed)
			assert.False(t, eval.IsStale(reading(tt.timestamp), clock))
		})
	}
}

func TestStalenessEvaluator_UntrustworthyIsStale(t *testing.T) {
	eval := conditions.NewStalenessEvaluator(24 * time.Hour)
	clock := conditions.FixedClock(reference)

	assert.True(t, eval.IsStale(nil, clock), "nil reading")
	assert.True(t, eval.IsStale(reading(""), clock), "empty timestamp")
	assert.True(t, eval.IsStale(reading("   "), clock), "blank timestamp")
	assert.True(t, eval.IsStale(reading("yesterday afternoon"), clock), "unparsable")
	assert.True(t, eval.IsStale(reading("2026-10-19T13:55:00Z"), clock), "unsupported layout")
	assert.True(t, eval.IsStale(reading("2026-10-19 13:55:00"), nil), "nil clock")
}

func TestStalenessEvaluator_UsesClockZone(t *testing.T) {
	amsterdam := time.FixedZone("CEST", 2*60*60)
	eval := conditions.NewStalenessEvaluator(time.Hour)

	// 15:30 local in a +02:00 zone is 13:30 UTC, thirty minutes before the reference.
	clock := conditions.FixedClock(reference.In(amsterdam))
	assert.False(t, eval.IsStale(reading("2026-10-19 15:30:00"), clock))
}

func TestNewStalenessEvaluator_Defaults(t *testing.T) {
	assert.Equal(t, conditions.DefaultStaleAfter, conditions.NewStalenessEvaluator(0).Threshold())
	assert.Equal(t, conditions.DefaultStaleAfter, conditions.NewStalenessEvaluator(-time.Minute).Threshold())
	assert.Equal(t, 24*time.Hour, conditions.NewStalenessEvaluator(24*time.Hour).Threshold())
}
