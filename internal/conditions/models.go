// Package conditions decides which live station reading to trust for a wind
// station. Sources are registered as primary or fallback; the Service fetches
// them lazily in order and arbitrates on the freshness of the primary reading.
package conditions

import (
	"errors"
	"math"
	"time"
)

// Errors shared by sources and the orchestrator.
var (
	// ErrNilClock is returned when a caller passes no reference clock.
	ErrNilClock = errors.New("reference clock is required")

	// ErrStationNotSupported is returned by a source asked for a station it does not match.
	ErrStationNotSupported = errors.New("station not supported by source")

	// ErrUnexpectedStatus is returned when a provider answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrEmptyPayload is returned when a provider answers with an empty body.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrMalformedPayload is returned when a payload does not have the expected fields.
	ErrMalformedPayload = errors.New("malformed payload")
)

// LiveConditions is one instantaneous observation from a station.
// Values are compared structurally and never modified after construction.
type LiveConditions struct {
	// Timestamp is the station's own time text, kept exactly as reported.
	Timestamp string

	// Wind and gust speed in knots, rounded to whole units.
	WindSpeed int
	GustSpeed int

	// WindDirection is one of the eight compass points (N, NE, E, SE, S, SW, W, NW).
	WindDirection string

	// Temperature in Celsius, rounded to whole units.
	Temperature int
}

// Clock supplies the reference time for staleness decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock in the local time zone.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// RoundHalfUp rounds to the nearest integer, with .5 going towards +Inf.
func RoundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
