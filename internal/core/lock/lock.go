// Package lock defines the lease lock interface used for short-lived
// mutual exclusion on conversation writes.
package lock

import (
	"context"
	"time"
)

// Lease is a held lock on a resource. The token proves ownership so a
// late release cannot free somebody else's lease.
type Lease struct {
	Resource string
	Token    string
}

// Manager acquires and releases time-boxed leases.
type Manager interface {
	// Acquire takes a lease on the resource, waiting up to wait for a
	// competing holder to release it. The lease self-expires after ttl
	// even if never released. Returns a LOCK_CONTENTION domain error
	// when the wait elapses.
	Acquire(ctx context.Context, resource string, ttl, wait time.Duration) (*Lease, error)

	// Release frees the lease. Releasing an expired or already-released
	// lease is a no-op.
	Release(ctx context.Context, lease *Lease) error
}
