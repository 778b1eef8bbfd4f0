package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/skybrief/skybrief/internal/api/models"
)

// RateLimitConfig holds configuration for a rate limiter.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// Limits groups the limiters of the API by cost.
type Limits struct {
	// Standard applies to decode, extract and station lookups.
	Standard RateLimitConfig

	// Expensive applies to route briefings, which fan out to many fetches.
	Expensive RateLimitConfig

	// Admin applies to operator endpoints.
	Admin RateLimitConfig
}

// LimitsPerMinute derives the API limits from one per-minute budget.
// Briefings get a quarter of it and admin calls a fixed ten.
func LimitsPerMinute(perMinute int) Limits {
	return Limits{
		Standard:  RateLimitConfig{RequestLimit: perMinute, WindowLength: time.Minute},
		Expensive: RateLimitConfig{RequestLimit: max(1, perMinute/4), WindowLength: time.Minute},
		Admin:     RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute},
	}
}

// RateLimitByIP limits requests per client IP. Run chi's RealIP first when
// behind a proxy.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

// RateLimitByOperator limits requests per authenticated operator, falling
// back to the client IP.
func RateLimitByOperator(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByOperatorOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

func keyByOperatorOrIP(r *http.Request) (string, error) {
	if operator := GetOperator(r.Context()); operator != "" {
		return "operator:" + operator, nil
	}
	return httprate.KeyByRealIP(r)
}

func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
