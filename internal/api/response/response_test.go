package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windspot/windspot/internal/api/middleware"
	"github.com/windspot/windspot/internal/api/models"
	"github.com/windspot/windspot/internal/api/response"
)

// requestWithID returns a request whose context carries a request ID.
func requestWithID(t *testing.T, method, path string) *http.Request {
	t.Helper()

	var processed *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))

	require.NotNil(t, processed)
	return processed
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/v1/stations")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"message":"hello"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/stations", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}

func TestNoContent(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/v1/stations/7/live")
	rec := httptest.NewRecorder()

	response.NoContent(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "detail", []models.FieldError{{Field: "stationId", Message: "invalid"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			response.Unauthorized(w, r, "detail")
		}, http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			response.Forbidden(w, r, "detail")
		}, http.StatusForbidden, models.ProblemTypeForbidden},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "detail")
		}, http.StatusNotFound, models.ProblemTypeNotFound},
		{"too many requests", func(w http.ResponseWriter, r *http.Request) {
			response.TooManyRequests(w, r, "detail")
		}, http.StatusTooManyRequests, models.ProblemTypeTooManyRequests},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "detail")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			response.ServiceUnavailable(w, r, "detail")
		}, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, http.MethodGet, "/v1/stations/7/live")
			rec := httptest.NewRecorder()

			tt.write(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.typ, problem.Type)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, "detail", problem.Detail)
			assert.Equal(t, "/v1/stations/7/live", problem.Instance)
			assert.Equal(t, middleware.GetRequestID(req.Context()), problem.TraceID)
			assert.Equal(t, problem.TraceID, rec.Header().Get("X-Request-Id"))
		})
	}
}
