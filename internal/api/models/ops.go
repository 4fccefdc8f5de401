package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus is the operator view of upstreams, cache and warm-up.
type SystemStatus struct {
	Status    HealthStatus           `json:"status"`
	Time      Timestamp              `json:"time"`
	Upstreams []UpstreamStatus       `json:"upstreams"`
	Cache     *CacheStatus           `json:"cache,omitempty"`
	Refresh   map[string]interface{} `json:"refresh,omitempty"`
}

// UpstreamStatus represents the status of one live-conditions provider.
type UpstreamStatus struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	Requests            uint32       `json:"requests"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError           *string      `json:"lastError,omitempty"`
}

// CacheStatus mirrors the live cache counters.
type CacheStatus struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Shared  uint64 `json:"shared"`
	TTL     string `json:"ttl"`
}

// CacheInvalidateRequest is the body of POST /v1/ops/cache/invalidate.
// An empty StationIDs list drops every entry.
type CacheInvalidateRequest struct {
	StationIDs []int `json:"stationIds" validate:"omitempty,max=500,dive,gt=0"`
}

// CacheInvalidateResponse reports how many entries were dropped.
type CacheInvalidateResponse struct {
	Invalidated int    `json:"invalidated"`
	Scope       string `json:"scope"`
}
