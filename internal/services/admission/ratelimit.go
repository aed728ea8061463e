// Package admission gates AI response attempts before any completion
// call: a per-tenant sliding-window rate limiter and a monthly quota.
package admission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateDecision is the result of a rate limit check.
type RateDecision struct {
	Limited bool
	// Message is the customer-facing text posted when Limited is true.
	Message string
}

// RateLimiter admits or rejects attempts against a sliding window.
type RateLimiter interface {
	// Allow checks the window and, only when the attempt is admitted,
	// records it. Rejected attempts consume no budget.
	Allow(ctx context.Context, tenantID, kind string) (*RateDecision, error)
}

// rateLimitedMessage is the fixed customer-facing rejection text.
const rateLimitedMessage = "We're receiving a lot of messages right now. Please wait a moment before sending more."

// redisRateLimiter implements a sliding window over a redis sorted set,
// one member per admitted attempt scored by its unix timestamp.
type redisRateLimiter struct {
	client *redis.Client
	window time.Duration
	max    int64
}

// NewRateLimiter creates a redis-backed sliding window rate limiter.
func NewRateLimiter(client *redis.Client, window time.Duration, max int64) RateLimiter {
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
	}
}

// Allow checks the window and records admitted attempts.
func (l *redisRateLimiter) Allow(ctx context.Context, tenantID, kind string) (*RateDecision, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", kind, tenantID)
	now := time.Now()
	windowStart := now.Add(-l.window)

	// Drop entries that have slid out of the window, then count.
	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if countCmd.Val() >= l.max {
		return &RateDecision{Limited: true, Message: rateLimitedMessage}, nil
	}

	// Admitted: record this attempt. Only accepted work consumes budget.
	member := strconv.FormatInt(now.UnixNano(), 10)
	pipe = l.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record rate limit attempt: %w", err)
	}

	return &RateDecision{Limited: false}, nil
}
