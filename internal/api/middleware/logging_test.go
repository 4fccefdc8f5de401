package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windspot/windspot/internal/api/middleware"
)

func logEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(middleware.Logger(zerolog.New(&buf))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("response body"))
		}),
	))

	req := httptest.NewRequest(http.MethodGet, "/v1/stations", http.NoBody)
	req.Header.Set("User-Agent", "test-agent")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := logEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/stations", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(len("response body")), entry["bytes"])
	assert.Equal(t, "test-agent", entry["user_agent"])
	assert.NotEmpty(t, entry["request_id"])
	assert.NotContains(t, entry, "trace_id")
}

func TestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  string
	}{
		{"server error", "/v1/stations/1/live", http.StatusInternalServerError, "error"},
		{"client error", "/v1/stations/x/live", http.StatusBadRequest, "warn"},
		{"no content", "/v1/stations/1/live", http.StatusNoContent, "info"},
		{"health probe", "/v1/ops/health", http.StatusOK, "debug"},
		{"failing probe", "/v1/ops/ready", http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			entry := logEntry(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestLogger_LogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.Get("/v1/stations/{stationId}/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stations/42/live", http.NoBody))

	entry := logEntry(t, &buf)
	assert.Equal(t, "/v1/stations/42/live", entry["path"])
	assert.Equal(t, "/v1/stations/{stationId}/live", entry["route"])
}

func TestLogger_IncludesTraceID(t *testing.T) {
	sr, cleanup := setupTestTracer()
	defer cleanup()

	var buf bytes.Buffer
	handler := middleware.Tracing("windspot-test")(middleware.Logger(zerolog.New(&buf))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stations", http.NoBody))

	entry := logEntry(t, &buf)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, spans[0].SpanContext().SpanID().String(), entry["span_id"])
}
