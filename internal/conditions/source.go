package conditions

import (
	"context"
	"sync"
	"time"
)

// Source is a provider of live readings for some set of stations.
type Source interface {
	// Name identifies the source in logs, metrics and health reports.
	Name() string

	// Matches reports whether the source can answer for stationID.
	// It must not perform I/O.
	Matches(stationID int) bool

	// IsFallback reports whether the source is only consulted after the primary.
	IsFallback() bool

	// Fetch reads the current conditions. A nil reading with a nil error
	// means the station had nothing to report.
	Fetch(ctx context.Context, stationID int) (*LiveConditions, error)
}

// TimeoutSource is implemented by sources that want their own fetch deadline.
type TimeoutSource interface {
	Timeout() time.Duration
}

// Selection is the result of matching a station against the registry.
type Selection struct {
	Primaries []Source
	Fallbacks []Source
}

// Primary returns the first matching primary source, or nil.
func (s Selection) Primary() Source {
	if len(s.Primaries) == 0 {
		return nil
	}
	return s.Primaries[0]
}

// Fallback returns the first matching fallback source, or nil.
func (s Selection) Fallback() Source {
	if len(s.Fallbacks) == 0 {
		return nil
	}
	return s.Fallbacks[0]
}

// Registry holds sources in registration order.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
}

// NewRegistry creates a registry pre-populated with sources, in order.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register appends a source. Nil sources are ignored.
func (r *Registry) Register(s Source) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, s)
}

// Sources returns a copy of all registered sources.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Select partitions the sources matching stationID into primaries and
// fallbacks, keeping registration order within each group.
func (r *Registry) Select(stationID int) Selection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sel Selection
	for _, s := range r.sources {
		if !s.Matches(stationID) {
			continue
		}
		if s.IsFallback() {
			sel.Fallbacks = append(sel.Fallbacks, s)
		} else {
			sel.Primaries = append(sel.Primaries, s)
		}
	}
	return sel
}
