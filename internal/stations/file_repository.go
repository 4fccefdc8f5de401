package stations

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileDocument is the layout of the bindings file:
//
//	stations:
//	  - station_id: 42
//	    source: stationdump
//	    remote_id: brouwersdam
//	    enabled: true
type fileDocument struct {
	Stations []fileBinding `yaml:"stations"`
}

// fileBinding defaults Enabled to true when the key is absent.
type fileBinding struct {
	StationID int    `yaml:"station_id"`
	Source    string `yaml:"source"`
	RemoteID  string `yaml:"remote_id"`
	Enabled   *bool  `yaml:"enabled"`
}

// FileRepository reads bindings from a YAML file on every List.
type FileRepository struct {
	path string
}

// NewFileRepository creates a repository over the YAML file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// List reads and validates the file.
func (r *FileRepository) List(_ context.Context) ([]Binding, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a bindings document.
func ParseYAML(data []byte) ([]Binding, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode stations file: %w", err)
	}

	out := make([]Binding, 0, len(doc.Stations))
	for i, fb := range doc.Stations {
		b := Binding{
			StationID: fb.StationID,
			Source:    fb.Source,
			RemoteID:  fb.RemoteID,
			Enabled:   fb.Enabled == nil || *fb.Enabled,
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("stations[%d]: %w", i, err)
		}
		out = append(out, b)
	}

	sortBindings(out)
	return out, nil
}
