package models

// LiveConditions is the JSON view of a resolved station reading.
type LiveConditions struct {
	StationID int `json:"stationId"`

	// Timestamp is the station's own time text, unchanged.
	Timestamp string `json:"timestamp"`

	WindSpeed     int    `json:"windSpeed"`
	GustSpeed     int    `json:"gustSpeed"`
	WindDirection string `json:"windDirection"`
	Temperature   int    `json:"temperature"`

	// Source names the provider that produced the reading.
	Source string `json:"source"`

	// Resolution is one of fresh_primary, fallback or stale_primary.
	Resolution string `json:"resolution"`

	// Stale is set when a primary reading is served past its threshold.
	Stale bool `json:"stale"`
}

// StationBinding is one configured station and the source serving it.
type StationBinding struct {
	StationID int    `json:"stationId"`
	Source    string `json:"source"`
	RemoteID  string `json:"remoteId"`
	Enabled   bool   `json:"enabled"`
}

// StationList is the response for GET /v1/stations.
type StationList struct {
	Items []StationBinding `json:"items"`
	Count int              `json:"count"`
}
