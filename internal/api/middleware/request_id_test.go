package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windspot/windspot/internal/api/middleware"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	var seen string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stations", http.NoBody))

	assert.True(t, strings.HasPrefix(seen, "req_"))
	assert.Len(t, seen, len("req_")+24)
	assert.Equal(t, seen, w.Header().Get(middleware.RequestIDHeader))
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	ids := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		ids[w.Header().Get(middleware.RequestIDHeader)] = struct{}{}
	}
	assert.Len(t, ids, 50)
}

func TestRequestID_IncomingHeader(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"plain token", "existing_request_id", true},
		{"uuid", "0af76519-16cd-43dd-8448-eb211c80319c", true},
		{"with colon and dot", "lb:edge.42", true},
		{"contains space", "bad id", false},
		{"contains newline", "bad\nid", false},
		{"too long", strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = middleware.GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.Header.Set(middleware.RequestIDHeader, tt.incoming)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
				assert.True(t, strings.HasPrefix(seen, "req_"))
			}
			assert.Equal(t, seen, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}
