package conditions

import (
	"strings"
	"time"
)

// DefaultStaleAfter is the age at which a reading stops being trusted.
const DefaultStaleAfter = 60 * time.Minute

// timestampLayouts are tried in order; the first layout that parses wins.
var timestampLayouts = []string{
	"2006-01-02 15:04:05", // YYYY-MM-DD HH:MM:SS
	"2006-01-02 15:04",    // YYYY-MM-DD HH:MM
	"02.01.2006 15:04",    // DD.MM.YYYY HH:MM
	"02/01/06 15:04:05",   // DD/MM/YY HH:MM:SS
}

// StalenessEvaluator classifies readings as stale or fresh.
// It holds only its threshold, so one value can be shared across goroutines.
type StalenessEvaluator struct {
	threshold time.Duration
}

// NewStalenessEvaluator creates an evaluator. A non-positive threshold
// falls back to DefaultStaleAfter.
func NewStalenessEvaluator(threshold time.Duration) *StalenessEvaluator {
	if threshold <= 0 {
		threshold = DefaultStaleAfter
	}
	return &StalenessEvaluator{threshold: threshold}
}

// Threshold returns the configured stale-after duration.
func (e *StalenessEvaluator) Threshold() time.Duration {
	return e.threshold
}

// IsStale reports whether reading is too old relative to clock.Now().
// A nil reading, a blank timestamp or one that matches no known layout is
// always stale. Age is counted in whole minutes, so a reading exactly at the
// threshold is stale and one a minute younger is fresh.
func (e *StalenessEvaluator) IsStale(reading *LiveConditions, clock Clock) bool {
	if reading == nil || clock == nil {
		return true
	}

	now := clock.Now()
	observed, ok := ParseTimestamp(reading.Timestamp, now.Location())
	if !ok {
		return true
	}

	ageMinutes := int64(now.Sub(observed) / time.Minute)
	return ageMinutes >= int64(e.threshold/time.Minute)
}

// ParseTimestamp parses a station timestamp in loc using the known layouts.
// Station clocks carry no zone, so loc should be the reference clock's zone.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
