// Package livecache keeps resolved live readings for a short time so page
// renders and warm-up runs do not hit station hosts on every request.
package livecache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/conditions"
)

// Resolver produces a fresh result for a station.
type Resolver interface {
	Resolve(ctx context.Context, stationID int, clock conditions.Clock) (conditions.Result, error)
}

// Config holds cache configuration.
type Config struct {
	// Resolver answers cache misses (required).
	Resolver Resolver

	// TTL is how long a result is served. Zero or negative disables caching.
	TTL time.Duration

	// Clock is the reference clock passed to the resolver. Default: system clock
	Clock conditions.Clock

	Logger zerolog.Logger
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Shared  uint64 `json:"shared"`
	TTL     string `json:"ttl"`
}

type entry struct {
	result    conditions.Result
	expiresAt time.Time
}

type call struct {
	done   chan struct{}
	result conditions.Result
	err    error
}

// Cache memoizes Resolve per station. Empty results are cached like any
// other; errors are not. Concurrent misses for one station share a single
// resolve.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	clock    conditions.Clock
	logger   zerolog.Logger

	mu       sync.Mutex
	entries  map[int]entry
	inflight map[int]*call
	hits     uint64
	misses   uint64
	shared   uint64
}

// New creates a cache in front of cfg.Resolver.
func New(cfg Config) *Cache {
	clock := cfg.Clock
	if clock == nil {
		clock = conditions.SystemClock
	}
	return &Cache{
		resolver: cfg.Resolver,
		ttl:      cfg.TTL,
		clock:    clock,
		logger:   cfg.Logger,
		entries:  make(map[int]entry),
		inflight: make(map[int]*call),
	}
}

// Get returns the cached result for stationID or resolves a new one.
func (c *Cache) Get(ctx context.Context, stationID int) (conditions.Result, error) {
	if c.ttl <= 0 {
		return c.resolver.Resolve(ctx, stationID, c.clock)
	}

	now := c.clock.Now()

	c.mu.Lock()
	if e, ok := c.entries[stationID]; ok && now.Before(e.expiresAt) {
		c.hits++
		c.mu.Unlock()
		return e.result, nil
	}
	if cl, ok := c.inflight[stationID]; ok {
		c.shared++
		c.mu.Unlock()
		return c.wait(ctx, cl)
	}

	c.misses++
	cl := &call{done: make(chan struct{})}
	c.inflight[stationID] = cl
	c.mu.Unlock()

	// The resolve outlives a caller that gives up so waiters still get an answer.
	// Source fetches carry their own deadlines.
	go c.run(context.WithoutCancel(ctx), stationID, cl)

	return c.wait(ctx, cl)
}

func (c *Cache) run(ctx context.Context, stationID int, cl *call) {
	cl.result, cl.err = c.resolver.Resolve(ctx, stationID, c.clock)

	c.mu.Lock()
	delete(c.inflight, stationID)
	if cl.err == nil {
		c.entries[stationID] = entry{result: cl.result, expiresAt: c.clock.Now().Add(c.ttl)}
	}
	c.mu.Unlock()

	if cl.err != nil {
		c.logger.Warn().Err(cl.err).Int("station_id", stationID).Msg("live resolve failed, not caching")
	}
	close(cl.done)
}

func (c *Cache) wait(ctx context.Context, cl *call) (conditions.Result, error) {
	select {
	case <-cl.done:
		return cl.result, cl.err
	case <-ctx.Done():
		return conditions.Result{}, ctx.Err()
	}
}

// Invalidate drops the given stations, or everything when none are given.
// It returns the number of entries removed.
func (c *Cache) Invalidate(stationIDs ...int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(stationIDs) == 0 {
		n := len(c.entries)
		c.entries = make(map[int]entry)
		return n
	}

	n := 0
	for _, id := range stationIDs {
		if _, ok := c.entries[id]; ok {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Prune removes expired entries and returns how many were dropped.
func (c *Cache) Prune() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
			n++
		}
	}
	if n > 0 {
		c.logger.Debug().Int("count", n).Msg("pruned expired live entries")
	}
	return n
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Shared:  c.shared,
		TTL:     c.ttl.String(),
	}
}
