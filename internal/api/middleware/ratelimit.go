package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/sundose/sundose/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// Rate limit tiers.
var (
	// ReadRateLimit applies to reads, which the companion polls.
	ReadRateLimit = RateLimitConfig{RequestLimit: 120, WindowLength: time.Minute}

	// WriteRateLimit applies to state changes.
	WriteRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// FetchRateLimit applies to endpoints that reach the forecast provider.
	FetchRateLimit = RateLimitConfig{RequestLimit: 6, WindowLength: time.Minute}
)

// ClientIDHeader identifies the companion device making the request.
const ClientIDHeader = "X-Client-Id"

// RateLimit limits requests per client, keyed by X-Client-Id and falling
// back to the client IP.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByClient),
		httprate.WithLimitHandler(rateLimitExceeded(cfg)),
	)
}

func keyByClient(r *http.Request) (string, error) {
	if id := r.Header.Get(ClientIDHeader); id != "" {
		return "client:" + id, nil
	}
	return httprate.KeyByRealIP(r)
}

func rateLimitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))

	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, try again later")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
