package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter provides fixed-window request limiting backed by Redis, so
// the limit holds across replicas of the exchange endpoints.
type RateLimiter struct {
	client    *redis.Client
	namespace string
	logger    *zap.Logger
}

// NewRateLimiter creates a limiter.
func NewRateLimiter(client *redis.Client, namespace string, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{client: client, namespace: namespace, logger: logger}
}

// Limit returns middleware allowing at most limit requests per window for
// each key produced by keyFn. Redis outages fail open: authentication
// availability beats throttling.
func (l *RateLimiter) Limit(name string, limit int, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:ratelimit:%s:%s", l.namespace, name, keyFn(r))

			count, err := l.client.Incr(r.Context(), key).Result()
			if err != nil {
				l.logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				l.client.Expire(r.Context(), key, window)
			}
			if count > int64(limit) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded","code":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
