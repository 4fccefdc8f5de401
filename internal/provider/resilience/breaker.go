// Package resilience wraps calls to upstream weather-station hosts with
// per-attempt timeouts, bounded retries and a circuit breaker, and tracks
// each upstream's health for the ops endpoints.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker guarding one upstream.
type BreakerConfig struct {
	// Name identifies the breaker in logs and health reports.
	Name string

	// MaxRequests is how many probes are let through while half-open.
	// Default: 1
	MaxRequests uint32

	// Interval clears the closed-state counts periodically. Zero never clears.
	Interval time.Duration

	// OpenFor is how long the breaker stays open before probing.
	// Default: 30 seconds
	OpenFor time.Duration

	// ReadyToTrip decides when to open. Default: TripOnFailureRatio(5, 0.5).
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the breaker settings used for station hosts.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		OpenFor:     30 * time.Second,
		ReadyToTrip: TripOnFailureRatio(5, 0.5),
	}
}

// TripOnFailureRatio opens the breaker once at least minRequests have been
// counted and the failure share reaches ratio.
func TripOnFailureRatio(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		if c.Requests == 0 || c.Requests < minRequests {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= ratio
	}
}

func newBreaker[T any](cfg BreakerConfig, isSuccessful, isExcluded func(error) bool) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = TripOnFailureRatio(5, 0.5)
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.OpenFor,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
		IsSuccessful:  isSuccessful,
		IsExcluded:    isExcluded,
	})
}
