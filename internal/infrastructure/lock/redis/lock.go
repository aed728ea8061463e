// Package redis provides the Redis-backed lease lock implementation.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/core/lock"
)

const keyPrefix = "lock:"

// releaseScript deletes the key only when it still holds our token, so
// a lease that expired and was re-acquired by someone else is untouched.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// retryInterval is how often a blocked acquirer re-attempts SETNX.
const retryInterval = 50 * time.Millisecond

// Manager implements lock.Manager on top of Redis SET NX.
type Manager struct {
	client *redis.Client
}

// NewManager creates a new Redis lease manager.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// Acquire takes a lease on the resource, polling until wait elapses.
func (m *Manager) Acquire(ctx context.Context, resource string, ttl, wait time.Duration) (*lock.Lease, error) {
	key := keyPrefix + resource
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", resource, err)
		}
		if ok {
			return &lock.Lease{Resource: resource, Token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, domainerrors.NewLockContentionError(resource)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release frees the lease if it is still held by its token.
func (m *Manager) Release(ctx context.Context, lease *lock.Lease) error {
	if lease == nil {
		return nil
	}
	key := keyPrefix + lease.Resource
	if err := m.client.Eval(ctx, releaseScript, []string{key}, lease.Token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lease.Resource, err)
	}
	return nil
}
