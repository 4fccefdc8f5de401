// Package worker keeps the live cache warm in the background, either on a
// fixed schedule or when a refresh message arrives over Pub/Sub.
package worker

import "time"

// Job types accepted on the refresh subscription.
const (
	JobTypeLiveRefresh = "live_refresh"
	JobTypeHealthCheck = "health_check"
)

// RefreshConfig holds configuration for the live refresh job.
type RefreshConfig struct {
	// Concurrency is the number of stations refreshed in parallel.
	// Default: 4
	Concurrency int

	// Timeout bounds the refresh of a single station.
	// Default: 20 seconds
	Timeout time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency: 4,
		Timeout:     20 * time.Second,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
