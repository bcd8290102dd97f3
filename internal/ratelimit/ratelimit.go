// Package ratelimit throttles attempt-heavy endpoints with a Redis fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"medai-auth/internal/observability/metrics"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts per key in fixed windows. A nil client or a Redis
// error lets the request through.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{client: client, limit: limit, window: window, prefix: "rl:auth:"}
}

// NewClient dials Redis from a redis:// URL and checks it answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Allow records one attempt for key. When the window is exhausted it returns
// false and how long until the window resets.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.client == nil {
		return true, 0, nil
	}
	k := l.prefix + key
	cnt, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return true, 0, err
	}
	if cnt == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return true, 0, err
		}
	}
	if cnt <= int64(l.limit) {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		// a key without expiry would block forever; give it one
		_ = l.client.Expire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return false, ttl, nil
}

// RejectFunc writes the response for a throttled request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// Middleware throttles route per client address. clientIP resolves the
// caller, honoring proxy headers as the deployment requires.
func (l *Limiter) Middleware(route string, clientIP func(*http.Request) string, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter, err := l.Allow(r.Context(), route+":"+clientIP(r))
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request", "route", route, "error", err)
			}
			if !ok {
				metrics.RateLimitRejectionsTotal.WithLabelValues(route).Inc()
				reject(w, r, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
