package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windspot/windspot/internal/api/middleware"
	"github.com/windspot/windspot/internal/api/models"
	"github.com/windspot/windspot/internal/auth"
)

const testSigningKey = "test-signing-key-0123456789"

func testTokens(now time.Time) *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: testSigningKey,
		Now:        func() time.Time { return now },
	})
}

func guarded(tokens *auth.TokenService, scope string) (http.Handler, *string) {
	subject := new(string)
	h := middleware.RequireScope(tokens, scope)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*subject = middleware.GetOperatorSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, subject
}

func serveWithAuth(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func problemDetail(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestRequireScope_ValidToken(t *testing.T) {
	tokens := testTokens(time.Now())
	token, err := tokens.Issue("ops@windspot", []string{auth.ScopeOpsRead}, time.Hour)
	require.NoError(t, err)

	h, subject := guarded(tokens, auth.ScopeOpsRead)
	rec := serveWithAuth(h, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@windspot", *subject)
}

func TestRequireScope_CaseInsensitivePrefix(t *testing.T) {
	tokens := testTokens(time.Now())
	token, err := tokens.Issue("ops", []string{auth.ScopeOpsRead}, time.Hour)
	require.NoError(t, err)

	h, _ := guarded(tokens, auth.ScopeOpsRead)
	assert.Equal(t, http.StatusOK, serveWithAuth(h, "bearer "+token).Code)
}

func TestRequireScope_Unauthorized(t *testing.T) {
	now := time.Now()
	tokens := testTokens(now)

	expired, err := testTokens(now.Add(-2*time.Hour)).Issue("ops", []string{auth.ScopeOpsRead}, time.Hour)
	require.NoError(t, err)

	foreign, err := auth.NewTokenService(auth.TokenConfig{SigningKey: "another-key-0123456789"}).
		Issue("ops", []string{auth.ScopeOpsRead}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing header", "", "missing authorization header"},
		{"no bearer prefix", "token123", "invalid authorization header format"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"just bearer", "Bearer", "invalid authorization header format"},
		{"empty bearer", "Bearer   ", "missing bearer token"},
		{"garbage token", "Bearer not-a-jwt", "invalid operator token"},
		{"wrong key", "Bearer " + foreign, "invalid operator token"},
		{"expired", "Bearer " + expired, "operator token has expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, subject := guarded(tokens, auth.ScopeOpsRead)
			rec := serveWithAuth(h, tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			p := problemDetail(t, rec)
			assert.Equal(t, models.ProblemTypeUnauthorized, p.Type)
			assert.Equal(t, tt.detail, p.Detail)
			assert.Equal(t, "/v1/ops/status", p.Instance)
			assert.Empty(t, *subject)
		})
	}
}

func TestRequireScope_MissingScope(t *testing.T) {
	tokens := testTokens(time.Now())
	token, err := tokens.Issue("ops", []string{auth.ScopeOpsRead}, time.Hour)
	require.NoError(t, err)

	h, _ := guarded(tokens, auth.ScopeCacheWrite)
	rec := serveWithAuth(h, "Bearer "+token)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	p := problemDetail(t, rec)
	assert.Equal(t, models.ProblemTypeForbidden, p.Type)
	assert.Contains(t, p.Detail, auth.ScopeCacheWrite)
}

func TestRequireScope_NotConfigured(t *testing.T) {
	for name, tokens := range map[string]*auth.TokenService{
		"nil service": nil,
		"empty key":   auth.NewTokenService(auth.TokenConfig{}),
	} {
		t.Run(name, func(t *testing.T) {
			h, _ := guarded(tokens, auth.ScopeOpsRead)
			rec := serveWithAuth(h, "Bearer anything")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}

func TestGetOperator_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Nil(t, middleware.GetOperator(req.Context()))
	assert.Empty(t, middleware.GetOperatorSubject(req.Context()))
}
