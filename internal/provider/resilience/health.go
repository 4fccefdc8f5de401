package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health states reported for an upstream.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// UpstreamHealth is a point-in-time view of one upstream client.
type UpstreamHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Status maps the breaker state onto healthy, degraded or unhealthy.
func (h UpstreamHealth) Status() string {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return StatusUnhealthy
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// HealthRegistry tracks the clients talking to upstream hosts.
type HealthRegistry struct {
	mu      sync.RWMutex
	clients map[string]*tracked
}

type tracked struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{clients: make(map[string]*tracked)}
}

// Register starts tracking client under name, replacing any previous entry.
func (r *HealthRegistry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = &tracked{client: client}
}

// Unregister stops tracking name.
func (r *HealthRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
}

// RecordSuccess notes a successful call. Unknown names are ignored.
func (r *HealthRegistry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.clients[name]; ok {
		now := time.Now()
		t.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call. Unknown names are ignored.
func (r *HealthRegistry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.clients[name]; ok {
		now := time.Now()
		t.lastFailureAt = &now
		if err != nil {
			t.lastError = err.Error()
		}
	}
}

// Health returns the view of one upstream, or false when it is not tracked.
func (r *HealthRegistry) Health(name string) (UpstreamHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.clients[name]
	if !ok {
		return UpstreamHealth{}, false
	}
	return t.snapshot(name), true
}

// All returns every tracked upstream sorted by name.
func (r *HealthRegistry) All() []UpstreamHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]UpstreamHealth, 0, len(r.clients))
	for name, t := range r.clients {
		out = append(out, t.snapshot(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall returns the worst status across all upstreams.
// An empty registry is healthy.
func (r *HealthRegistry) Overall() string {
	status := StatusHealthy
	for _, h := range r.All() {
		switch h.Status() {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Len returns the number of tracked upstreams.
func (r *HealthRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (t *tracked) snapshot(name string) UpstreamHealth {
	return UpstreamHealth{
		Name:          name,
		CircuitState:  t.client.State(),
		Counts:        t.client.Counts(),
		LastSuccessAt: t.lastSuccessAt,
		LastFailureAt: t.lastFailureAt,
		LastError:     t.lastError,
	}
}
