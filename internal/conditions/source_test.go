package conditions_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windspot/windspot/internal/conditions"
)

type stubSource struct {
	name     string
	fallback bool
	stations map[int]bool
}

func (s stubSource) Name() string        { return s.name }
func (s stubSource) Matches(id int) bool { return s.stations[id] }
func (s stubSource) IsFallback() bool    { return s.fallback }
func (s stubSource) Fetch(context.Context, int) (*conditions.LiveConditions, error) {
	return nil, nil
}

func names(sources []conditions.Source) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Name())
	}
	return out
}

func TestRegistry_Select(t *testing.T) {
	reg := conditions.NewRegistry(
		stubSource{name: "raw", fallback: true, stations: map[int]bool{1: true, 2: true}},
		stubSource{name: "dump", stations: map[int]bool{1: true}},
		stubSource{name: "dump-b", stations: map[int]bool{1: true, 3: true}},
		stubSource{name: "raw-b", fallback: true, stations: map[int]bool{1: true}},
	)

	t.Run("partitions keeping registration order", func(t *testing.T) {
		sel := reg.Select(1)
		assert.Equal(t, []string{"dump", "dump-b"}, names(sel.Primaries))
		assert.Equal(t, []string{"raw", "raw-b"}, names(sel.Fallbacks))
		require.NotNil(t, sel.Primary())
		require.NotNil(t, sel.Fallback())
		assert.Equal(t, "dump", sel.Primary().Name())
		assert.Equal(t, "raw", sel.Fallback().Name())
	})

	t.Run("fallback only", func(t *testing.T) {
		sel := reg.Select(2)
		assert.Nil(t, sel.Primary())
		assert.Equal(t, "raw", sel.Fallback().Name())
	})

	t.Run("primary only", func(t *testing.T) {
		sel := reg.Select(3)
		assert.Equal(t, "dump-b", sel.Primary().Name())
		assert.Nil(t, sel.Fallback())
	})

	t.Run("nothing matches", func(t *testing.T) {
		sel := reg.Select(99)
		assert.Nil(t, sel.Primary())
		assert.Nil(t, sel.Fallback())
	})
}

func TestRegistry_RegisterIgnoresNil(t *testing.T) {
	reg := conditions.NewRegistry()
	reg.Register(nil)
	reg.Register(stubSource{name: "dump"})

	assert.Equal(t, []string{"dump"}, names(reg.Sources()))
}

func TestRegistry_SourcesReturnsCopy(t *testing.T) {
	reg := conditions.NewRegistry(stubSource{name: "dump"})

	got := reg.Sources()
	got[0] = stubSource{name: "mutated"}

	assert.Equal(t, []string{"dump"}, names(reg.Sources()))
}
