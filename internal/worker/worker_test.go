package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windspot/windspot/internal/conditions"
	"github.com/windspot/windspot/internal/worker"
)

// fakeLive answers by station id and records every call.
type fakeLive struct {
	mu          sync.Mutex
	results     map[int]conditions.Result
	errs        map[int]error
	delay       time.Duration
	calls       []int
	invalidated [][]int
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeLive) Get(ctx context.Context, id int) (conditions.Result, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return conditions.Result{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return conditions.Result{}, err
	}
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return conditions.Result{Resolution: conditions.ResolutionEmpty}, nil
}

func (f *fakeLive) Invalidate(ids ...int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, ids)
	return len(ids)
}

func (f *fakeLive) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	copy(out, f.calls)
	return out
}

type stationList []int

func (s stationList) StationIDs() []int { return s }

type fakeAck struct {
	acked, nacked int
}

func (a *fakeAck) Ack()  { a.acked++ }
func (a *fakeAck) Nack() { a.nacked++ }

func newJob(live worker.LiveReader, ids ...int) *worker.RefreshJob {
	return worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:   worker.RefreshConfig{Concurrency: 2, Timeout: time.Second},
		Live:     live,
		Stations: stationList(ids),
		Logger:   zerolog.Nop(),
	})
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
}

func TestRefreshJob_Run(t *testing.T) {
	live := &fakeLive{
		results: map[int]conditions.Result{
			1: {Resolution: conditions.ResolutionFreshPrimary},
			2: {Resolution: conditions.ResolutionFallback},
			3: {Resolution: conditions.ResolutionStalePrimary},
		},
		errs: map[int]error{5: errors.New("context canceled")},
	}
	job := newJob(live, 1, 2, 3, 4, 5)

	result := job.Run(context.Background())

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 4, result.Succeeded())
	assert.Equal(t, 1, result.Resolutions[conditions.ResolutionFreshPrimary])
	assert.Equal(t, 1, result.Resolutions[conditions.ResolutionFallback])
	assert.Equal(t, 1, result.Resolutions[conditions.ResolutionStalePrimary])
	assert.Equal(t, 1, result.Resolutions[conditions.ResolutionEmpty])
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 5, result.Errors[0].StationID)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, live.Calls())

	m := job.Metrics()
	assert.Equal(t, int64(1), m.Runs)
	assert.Equal(t, int64(5), m.Stations)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(1), m.Stale)
	assert.Equal(t, int64(1), m.Empty)
	assert.False(t, m.LastRunAt.IsZero())

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["runs"])
	assert.Contains(t, snapshot, "last_run_at")
}

func TestRefreshJob_BoundedConcurrency(t *testing.T) {
	live := &fakeLive{delay: 20 * time.Millisecond}
	job := newJob(live, 1, 2, 3, 4, 5, 6, 7, 8)

	result := job.Run(context.Background())

	assert.Equal(t, 0, result.Failed)
	assert.LessOrEqual(t, live.maxInflight.Load(), int32(2))
}

func TestRefreshJob_PerStationTimeout(t *testing.T) {
	live := &fakeLive{delay: time.Second}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:   worker.RefreshConfig{Concurrency: 3, Timeout: 20 * time.Millisecond},
		Live:     live,
		Stations: stationList{1, 2, 3},
		Logger:   zerolog.Nop(),
	})

	start := time.Now()
	result := job.Run(context.Background())

	assert.Equal(t, 3, result.Failed)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRefreshJob_CancelledContext(t *testing.T) {
	live := &fakeLive{}
	job := newJob(live, 1, 2, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Failed+result.Resolutions[conditions.ResolutionEmpty])
}

func TestRefreshJob_NoStations(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{Live: &fakeLive{}, Logger: zerolog.Nop()})

	result := job.Run(context.Background())

	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Failed)
}

func TestMessageHandler_LiveRefresh(t *testing.T) {
	live := &fakeLive{}
	h := worker.NewMessageHandler(worker.PubSubConfig{
		RefreshJob: newJob(live, 1, 2, 3),
		Live:       live,
		Logger:     zerolog.Nop(),
	})

	ack := &fakeAck{}
	h.Handle(context.Background(), []byte(`{"job_type":"live_refresh","station_ids":[2],"invalidate":true}`), ack)

	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, []int{2}, live.Calls())
	assert.Equal(t, [][]int{{2}}, live.invalidated)

	ack = &fakeAck{}
	h.Handle(context.Background(), []byte(`{"job_type":"live_refresh"}`), ack)

	assert.Equal(t, 1, ack.acked)
	assert.Len(t, live.Calls(), 4)
}

func TestMessageHandler_RefreshFailuresNack(t *testing.T) {
	boom := errors.New("boom")
	live := &fakeLive{errs: map[int]error{1: boom, 2: boom}}
	h := worker.NewMessageHandler(worker.PubSubConfig{
		RefreshJob: newJob(live, 1, 2, 3),
		Live:       live,
		Logger:     zerolog.Nop(),
	})

	ack := &fakeAck{}
	h.Handle(context.Background(), []byte(`{"job_type":"live_refresh"}`), ack)

	assert.Equal(t, 0, ack.acked)
	assert.Equal(t, 1, ack.nacked)
}

func TestMessageHandler_HealthCheck(t *testing.T) {
	live := &fakeLive{}
	h := worker.NewMessageHandler(worker.PubSubConfig{
		RefreshJob: newJob(live, 7, 8),
		Live:       live,
		Logger:     zerolog.Nop(),
	})

	ack := &fakeAck{}
	h.Handle(context.Background(), []byte(`{"job_type":"health_check"}`), ack)

	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, []int{7}, live.Calls())
	assert.Equal(t, [][]int{{7}}, live.invalidated)

	live.errs = map[int]error{7: errors.New("down")}
	ack = &fakeAck{}
	h.Handle(context.Background(), []byte(`{"job_type":"health_check"}`), ack)
	assert.Equal(t, 1, ack.nacked)
}

func TestMessageHandler_BadMessages(t *testing.T) {
	h := worker.NewMessageHandler(worker.PubSubConfig{
		RefreshJob: newJob(&fakeLive{}),
		Logger:     zerolog.Nop(),
	})

	ack := &fakeAck{}
	h.Handle(context.Background(), []byte(`not json`), ack)
	assert.Equal(t, 1, ack.nacked)

	ack = &fakeAck{}
	h.Handle(context.Background(), []byte(`{"job_type":"provider_refresh"}`), ack)
	assert.Equal(t, 1, ack.acked, "unknown job types are acked")
}

func TestMessageHandler_StartWithoutSubscription(t *testing.T) {
	h := worker.NewMessageHandler(worker.PubSubConfig{Logger: zerolog.Nop()})

	assert.Error(t, h.Start(context.Background()))
	assert.NoError(t, h.Close())
}

type countingPruner struct{ n atomic.Int32 }

func (p *countingPruner) Prune() int {
	p.n.Add(1)
	return 0
}

func TestScheduler_RunsRefreshAndPrune(t *testing.T) {
	live := &fakeLive{}
	pruner := &countingPruner{}

	s := worker.NewScheduler(worker.SchedulerConfig{
		RefreshJob:    newJob(live, 1),
		Interval:      50 * time.Millisecond,
		Pruner:        pruner,
		PruneInterval: 20 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 2, s.Jobs())
	assert.Eventually(t, func() bool {
		return len(live.Calls()) >= 2 && pruner.n.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_NothingToSchedule(t *testing.T) {
	s := worker.NewScheduler(worker.SchedulerConfig{Logger: zerolog.Nop()})

	require.NoError(t, s.Start())
	assert.Equal(t, 0, s.Jobs())
	s.Stop()
}
