// Package stations holds the bindings that tell each live source which
// stations it serves and under which remote id.
package stations

import (
	"errors"
	"sort"
)

var (
	// ErrInvalidBinding is returned for a binding missing its station, source or remote id.
	ErrInvalidBinding = errors.New("invalid station binding")

	// ErrDuplicateBinding is returned when a station is bound twice to one source.
	ErrDuplicateBinding = errors.New("duplicate station binding")
)

// Binding ties a station to a remote id on one source.
type Binding struct {
	StationID int    `yaml:"station_id" json:"stationId"`
	Source    string `yaml:"source" json:"source"`
	RemoteID  string `yaml:"remote_id" json:"remoteId"`
	Enabled   bool   `yaml:"enabled" json:"enabled"`
}

// Validate checks the required fields.
func (b Binding) Validate() error {
	if b.StationID <= 0 || b.Source == "" || b.RemoteID == "" {
		return ErrInvalidBinding
	}
	return nil
}

// Index groups enabled bindings by source name.
type Index struct {
	bySource map[string]map[int]string
	stations []int
}

// NewIndex builds an index from bindings. Disabled bindings are skipped.
func NewIndex(bindings []Binding) (*Index, error) {
	idx := &Index{bySource: make(map[string]map[int]string)}
	seen := make(map[int]struct{})

	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if !b.Enabled {
			continue
		}

		m, ok := idx.bySource[b.Source]
		if !ok {
			m = make(map[int]string)
			idx.bySource[b.Source] = m
		}
		if _, dup := m[b.StationID]; dup {
			return nil, ErrDuplicateBinding
		}
		m[b.StationID] = b.RemoteID

		if _, ok := seen[b.StationID]; !ok {
			seen[b.StationID] = struct{}{}
			idx.stations = append(idx.stations, b.StationID)
		}
	}

	sort.Ints(idx.stations)
	return idx, nil
}

// ForSource returns a copy of stationID → remote id for source.
func (i *Index) ForSource(source string) map[int]string {
	out := make(map[int]string, len(i.bySource[source]))
	for id, remote := range i.bySource[source] {
		out[id] = remote
	}
	return out
}

// StationIDs returns every station with at least one enabled binding, ascending.
func (i *Index) StationIDs() []int {
	out := make([]int, len(i.stations))
	copy(out, i.stations)
	return out
}
