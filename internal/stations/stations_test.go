package stations_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windspot/windspot/internal/stations"
)

const sampleYAML = `
stations:
  - station_id: 42
    source: stationdump
    remote_id: brouwersdam
  - station_id: 42
    source: clientraw
    remote_id: brouwersdam-wd
  - station_id: 7
    source: clientraw
    remote_id: ijmuiden
    enabled: false
  - station_id: 9
    source: clientraw
    remote_id: wijk-aan-zee
`

func TestParseYAML(t *testing.T) {
	got, err := stations.ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []stations.Binding{
		{StationID: 7, Source: "clientraw", RemoteID: "ijmuiden", Enabled: false},
		{StationID: 9, Source: "clientraw", RemoteID: "wijk-aan-zee", Enabled: true},
		{StationID: 42, Source: "clientraw", RemoteID: "brouwersdam-wd", Enabled: true},
		{StationID: 42, Source: "stationdump", RemoteID: "brouwersdam", Enabled: true},
	}, got)
}

func TestParseYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing remote id", "stations:\n  - station_id: 1\n    source: clientraw\n"},
		{"missing source", "stations:\n  - station_id: 1\n    remote_id: x\n"},
		{"zero station", "stations:\n  - source: clientraw\n    remote_id: x\n"},
		{"not yaml", "stations: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stations.ParseYAML([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestFileRepository_List(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	got, err := stations.NewFileRepository(path).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = stations.NewFileRepository(filepath.Join(t.TempDir(), "missing.yaml")).List(context.Background())
	assert.Error(t, err)
}

func TestInMemoryRepository(t *testing.T) {
	repo := stations.NewInMemoryRepository(
		stations.Binding{StationID: 2, Source: "stationdump", RemoteID: "b", Enabled: true},
		stations.Binding{StationID: 1, Source: "stationdump", RemoteID: "a", Enabled: true},
	)

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].StationID)

	got[0].RemoteID = "mutated"
	again, _ := repo.List(context.Background())
	assert.Equal(t, "a", again[0].RemoteID)

	repo.Replace(nil)
	again, _ = repo.List(context.Background())
	assert.Empty(t, again)
}

func TestIndex(t *testing.T) {
	bindings, err := stations.ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	idx, err := stations.NewIndex(bindings)
	require.NoError(t, err)

	assert.Equal(t, map[int]string{42: "brouwersdam"}, idx.ForSource("stationdump"))
	assert.Equal(t, map[int]string{9: "wijk-aan-zee", 42: "brouwersdam-wd"}, idx.ForSource("clientraw"))
	assert.Empty(t, idx.ForSource("unknown"))
	assert.Equal(t, []int{9, 42}, idx.StationIDs())
}

func TestIndex_Errors(t *testing.T) {
	_, err := stations.NewIndex([]stations.Binding{
		{StationID: 1, Source: "clientraw", RemoteID: "a", Enabled: true},
		{StationID: 1, Source: "clientraw", RemoteID: "b", Enabled: true},
	})
	assert.ErrorIs(t, err, stations.ErrDuplicateBinding)

	_, err = stations.NewIndex([]stations.Binding{{StationID: 1, Source: "clientraw"}})
	assert.ErrorIs(t, err, stations.ErrInvalidBinding)
}
