package stations

import (
	"context"
	"sort"
)

// Repository lists station bindings.
type Repository interface {
	// List returns all bindings, enabled or not, ordered by station then source.
	List(ctx context.Context) ([]Binding, error)
}

func sortBindings(b []Binding) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].StationID != b[j].StationID {
			return b[i].StationID < b[j].StationID
		}
		return b[i].Source < b[j].Source
	})
}
