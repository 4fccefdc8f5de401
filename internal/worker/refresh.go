package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/conditions"
)

// LiveReader is the cache the job warms.
type LiveReader interface {
	Get(ctx context.Context, stationID int) (conditions.Result, error)
	Invalidate(stationIDs ...int) int
}

// StationLister supplies the stations to refresh.
type StationLister interface {
	StationIDs() []int
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config   RefreshConfig
	Live     LiveReader
	Stations StationLister
	Logger   zerolog.Logger
}

// RefreshJob resolves every configured station through the live cache.
type RefreshJob struct {
	config   RefreshConfig
	live     LiveReader
	stations StationLister
	logger   zerolog.Logger

	mu      sync.RWMutex
	metrics RefreshMetrics
}

// RefreshMetrics accumulates job statistics across runs.
type RefreshMetrics struct {
	Runs                int64
	Stations            int64
	Failed              int64
	Empty               int64
	Stale               int64
	LastRunAt           time.Time
	LastRunDuration     time.Duration
	ResolutionBreakdown map[conditions.Resolution]int64
}

// RefreshResult is the outcome of one run.
type RefreshResult struct {
	StartTime   time.Time
	Duration    time.Duration
	Total       int
	Resolutions map[conditions.Resolution]int
	Failed      int
	Errors      []RefreshError
}

// Succeeded is the number of stations resolved without error, empty or not.
func (r *RefreshResult) Succeeded() int {
	return r.Total - r.Failed
}

// RefreshError records a station whose resolve returned an error.
type RefreshError struct {
	StationID int
	Error     string
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:   cfg.Config.withDefaults(),
		live:     cfg.Live,
		stations: cfg.Stations,
		logger:   cfg.Logger,
		metrics:  RefreshMetrics{ResolutionBreakdown: make(map[conditions.Resolution]int64)},
	}
}

// Run refreshes every station from the lister.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	var ids []int
	if j.stations != nil {
		ids = j.stations.StationIDs()
	}
	return j.RunStations(ctx, ids)
}

// RunStations refreshes the given stations with bounded concurrency.
func (j *RefreshJob) RunStations(ctx context.Context, ids []int) *RefreshResult {
	start := time.Now()
	result := &RefreshResult{
		StartTime:   start,
		Total:       len(ids),
		Resolutions: make(map[conditions.Resolution]int),
	}

	j.logger.Info().
		Int("stations", len(ids)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting live refresh")

	work := make(chan int)
	outcomes := make(chan stationOutcome, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				outcomes <- j.refreshStation(ctx, id)
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case work <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	close(outcomes)

	handled := 0
	for o := range outcomes {
		handled++
		if o.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{StationID: o.stationID, Error: o.err.Error()})
			continue
		}
		result.Resolutions[o.resolution]++
	}

	// Stations never handed to a worker count as failed.
	if skipped := len(ids) - handled; skipped > 0 {
		result.Failed += skipped
	}

	result.Duration = time.Since(start)
	j.record(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("stations", result.Total).
		Int("failed", result.Failed).
		Int("fresh", result.Resolutions[conditions.ResolutionFreshPrimary]).
		Int("fallback", result.Resolutions[conditions.ResolutionFallback]).
		Int("stale", result.Resolutions[conditions.ResolutionStalePrimary]).
		Int("empty", result.Resolutions[conditions.ResolutionEmpty]+result.Resolutions[conditions.ResolutionNoPrimary]).
		Msg("live refresh completed")

	return result
}

type stationOutcome struct {
	stationID  int
	resolution conditions.Resolution
	err        error
}

func (j *RefreshJob) refreshStation(ctx context.Context, stationID int) stationOutcome {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	res, err := j.live.Get(ctx, stationID)
	if err != nil {
		j.logger.Warn().Err(err).Int("station_id", stationID).Msg("station refresh failed")
		return stationOutcome{stationID: stationID, err: err}
	}
	return stationOutcome{stationID: stationID, resolution: res.Resolution}
}

func (j *RefreshJob) record(result *RefreshResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	m := &j.metrics
	m.Runs++
	m.Stations += int64(result.Total)
	m.Failed += int64(result.Failed)
	m.Stale += int64(result.Resolutions[conditions.ResolutionStalePrimary])
	m.Empty += int64(result.Resolutions[conditions.ResolutionEmpty] + result.Resolutions[conditions.ResolutionNoPrimary])
	m.LastRunAt = result.StartTime
	m.LastRunDuration = result.Duration
	for r, n := range result.Resolutions {
		m.ResolutionBreakdown[r] += int64(n)
	}
}

// Metrics returns a copy of the accumulated metrics.
func (j *RefreshJob) Metrics() RefreshMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := j.metrics
	out.ResolutionBreakdown = make(map[conditions.Resolution]int64, len(j.metrics.ResolutionBreakdown))
	for k, v := range j.metrics.ResolutionBreakdown {
		out.ResolutionBreakdown[k] = v
	}
	return out
}

// MetricsSnapshot returns the metrics as a JSON-friendly map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.Metrics()

	resolutions := make(map[string]int64, len(m.ResolutionBreakdown))
	for k, v := range m.ResolutionBreakdown {
		resolutions[string(k)] = v
	}

	snapshot := map[string]interface{}{
		"runs":              m.Runs,
		"stations":          m.Stations,
		"failed":            m.Failed,
		"stale":             m.Stale,
		"empty":             m.Empty,
		"resolutions":       resolutions,
		"last_run_duration": m.LastRunDuration.String(),
	}
	if !m.LastRunAt.IsZero() {
		snapshot["last_run_at"] = m.LastRunAt.UTC().Format(time.RFC3339)
	}
	return snapshot
}
