package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/windspot/windspot/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// RequestLimit per window. Zero or less disables limiting.
	RequestLimit int

	WindowLength time.Duration
}

// OpsRateLimit applies to operator endpoints (30 req/min per operator).
var OpsRateLimit = RateLimitConfig{
	RequestLimit: 30,
	WindowLength: time.Minute,
}

// PerMinute is a convenience for a one-minute window.
func PerMinute(limit int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: limit, WindowLength: time.Minute}
}

// RateLimitByIP limits by client IP, honouring X-Forwarded-For and X-Real-IP.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limiter(cfg, httprate.KeyByRealIP)
}

// RateLimitByOperator limits by operator token subject, falling back to the
// client IP when no operator is in the context.
func RateLimitByOperator(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limiter(cfg, keyByOperatorOrIP)
}

func limiter(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	if cfg.RequestLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.WindowLength
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		cfg.RequestLimit,
		window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(limitExceeded(window)),
	)
}

func keyByOperatorOrIP(r *http.Request) (string, error) {
	if subject := GetOperatorSubject(r.Context()); subject != "" {
		return "operator:" + subject, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes a 429 problem. httprate does not expose the reset
// time, so Retry-After is the full window.
func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", retryAfter)
		writeProblem(w, r, models.NewTooManyRequests(GetRequestID(r.Context()),
			"Rate limit exceeded. Please try again later."))
	}
}
