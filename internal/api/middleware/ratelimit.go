package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/metrics"
	"github.com/eldtechnologies/peerlink/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiter implements per-endpoint rate limiting backed by Redis.
// With no Redis configured it is a pass-through.
type RateLimiter struct {
	redis  *store.RedisStore
	limits map[string]RateLimit
	logger zerolog.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redis,
		logger: logger,
		limits: map[string]RateLimit{
			"GET /ws":             {30, time.Minute, ipKey},
			"POST /messages":      {60, time.Minute, userKey},
			"GET /conversations/": {120, time.Minute, userKey},
			"POST /messages/":     {240, time.Minute, userKey},
			"GET /presence":       {60, time.Minute, userKey},
		},
	}
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		endpoint, limit, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		subject := limit.KeyFunc(r)
		count, err := rl.redis.IncrRateLimit(r.Context(), endpoint, subject, limit.Window)
		if err != nil {
			// Redis trouble must not take the API down.
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit.Requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) > limit.Requests {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// match finds the limit for the request, longest pattern first.
func (rl *RateLimiter) match(r *http.Request) (string, RateLimit, bool) {
	var bestKey string
	var best RateLimit
	for pattern, limit := range rl.limits {
		parts := strings.SplitN(pattern, " ", 2)
		if r.Method != parts[0] {
			continue
		}
		if r.URL.Path == parts[1] || (strings.HasSuffix(parts[1], "/") && strings.HasPrefix(r.URL.Path, parts[1])) {
			if len(parts[1]) > len(bestKey) {
				bestKey = pattern
				best = limit
			}
		}
	}
	return bestKey, best, bestKey != ""
}

func ipKey(r *http.Request) string {
	ip := r.RemoteAddr
	if i := strings.LastIndex(ip, ":"); i > 0 {
		ip = ip[:i]
	}
	return fmt.Sprintf("ip:%s", ip)
}

func userKey(r *http.Request) string {
	if userID := GetUserFromContext(r.Context()); userID != "" {
		return fmt.Sprintf("user:%s", userID)
	}
	return ipKey(r)
}
