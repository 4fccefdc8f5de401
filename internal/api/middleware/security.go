package middleware

import (
	"net/http"

	"github.com/windspot/windspot/internal/api/models"
)

// SecurityHeaders adds the response headers expected of a JSON-only API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects requests a load balancer reports as plain HTTP via
// X-Forwarded-Proto. Requests without the header pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
				problem := models.NewProblem(models.ProblemTypeTLSRequired, "TLS required",
					http.StatusForbidden, GetRequestID(r.Context()))
				problem.Detail = "This endpoint requires HTTPS"
				writeProblem(w, r, problem)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
