package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// usageKeyTTL keeps last month's counter around briefly for reporting.
const usageKeyTTL = 45 * 24 * time.Hour

// UsageTracker tracks AI responses consumed per tenant per billing period.
type UsageTracker interface {
	// CurrentUsage returns the number of AI responses recorded this period.
	CurrentUsage(ctx context.Context, tenantID string) (int64, error)

	// Record counts one delivered AI response against the period.
	Record(ctx context.Context, tenantID string) error
}

// redisUsageTracker keeps a counter per tenant per calendar month.
type redisUsageTracker struct {
	client *redis.Client
}

// NewUsageTracker creates a redis-backed usage tracker.
func NewUsageTracker(client *redis.Client) UsageTracker {
	return &redisUsageTracker{client: client}
}

// CurrentUsage returns the counter for the current billing period.
func (t *redisUsageTracker) CurrentUsage(ctx context.Context, tenantID string) (int64, error) {
	val, err := t.client.Get(ctx, t.key(tenantID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return val, nil
}

// Record increments the counter for the current billing period.
func (t *redisUsageTracker) Record(ctx context.Context, tenantID string) error {
	key := t.key(tenantID)
	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, usageKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// key builds the per-tenant per-month counter key.
func (t *redisUsageTracker) key(tenantID string) string {
	return fmt.Sprintf("usage:ai:%s:%s", tenantID, time.Now().UTC().Format("2006-01"))
}
