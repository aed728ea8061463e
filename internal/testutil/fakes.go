package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/brightdesk/support-service/internal/core/lock"
	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/notify"
	"github.com/brightdesk/support-service/internal/services/orchestrator"
	"github.com/brightdesk/support-service/internal/services/platform"
)

// FakePlatform serves a fixed tenant configuration.
type FakePlatform struct {
	Config *platform.TenantConfig
	Err    error
}

// NewFakePlatform creates a platform fake with a reasonable tenant.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Config: &platform.TenantConfig{
			TenantID: "tenant-1",
			Plan:     models.TenantPlan{Name: "pro", MonthlyAILimit: 1000},
			AI: models.TenantAIConfig{
				TenantID:     "tenant-1",
				Persona:      "friendly",
				SystemPrompt: "Answer questions about Acme widgets.",
				Model:        "gpt-4o-mini",
			},
			Agents: []models.AgentProfile{
				{ID: "agent-1", Name: "Dana", AutoGreeting: "Hi, I'm Dana. How can I help?"},
				{ID: "agent-2", Name: "Lee"},
			},
		},
	}
}

// GetTenantConfig returns the fixed configuration.
func (f *FakePlatform) GetTenantConfig(ctx context.Context, tenantID string) (*platform.TenantConfig, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Config, nil
}

// GetPlan adapts the fake to the admission controller's plan lookup.
func (f *FakePlatform) GetPlan(ctx context.Context, tenantID string) (*models.TenantPlan, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &f.Config.Plan, nil
}

// FakeNotifier records notifications instead of delivering them.
type FakeNotifier struct {
	mu    sync.Mutex
	Calls []NotifyCall
}

// NotifyCall is one recorded notification.
type NotifyCall struct {
	TenantID     string
	UserIDs      []string
	Notification *notify.Notification
}

// Notify records the call.
func (f *FakeNotifier) Notify(ctx context.Context, tenantID string, userIDs []string, n *notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, NotifyCall{TenantID: tenantID, UserIDs: userIDs, Notification: n})
	return nil
}

// Close is a no-op.
func (f *FakeNotifier) Close() error { return nil }

// Count returns the number of recorded notifications.
func (f *FakeNotifier) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// FakeLocks is an in-memory lease manager with real mutual exclusion.
type FakeLocks struct {
	mu   sync.Mutex
	held map[string]string
}

// NewFakeLocks creates an in-memory lease manager.
func NewFakeLocks() *FakeLocks {
	return &FakeLocks{held: make(map[string]string)}
}

// Acquire takes the lease or fails with LOCK_CONTENTION after wait.
func (f *FakeLocks) Acquire(ctx context.Context, resource string, ttl, wait time.Duration) (*lock.Lease, error) {
	deadline := time.Now().Add(wait)
	token := time.Now().Format(time.RFC3339Nano)

	for {
		f.mu.Lock()
		if _, taken := f.held[resource]; !taken {
			f.held[resource] = token
			f.mu.Unlock()
			return &lock.Lease{Resource: resource, Token: token}, nil
		}
		f.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, domainerrors.NewLockContentionError(resource)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Release frees the lease when its token still matches.
func (f *FakeLocks) Release(ctx context.Context, lease *lock.Lease) error {
	if lease == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[lease.Resource] == lease.Token {
		delete(f.held, lease.Resource)
	}
	return nil
}

// FakeQuota is a settable quota guard.
type FakeQuota struct {
	Exceeded bool
	Err      error
}

// UsageExceeded returns the configured state.
func (f *FakeQuota) UsageExceeded(ctx context.Context, tenantID string) (bool, error) {
	return f.Exceeded, f.Err
}

// FakeResponder serves a scripted sequence of outcomes and records the
// requests it saw.
type FakeResponder struct {
	mu       sync.Mutex
	Outcomes []*orchestrator.Outcome
	Requests []*orchestrator.Request
	next     int
}

// Generate pops the next scripted outcome; the last one repeats.
func (f *FakeResponder) Generate(ctx context.Context, req *orchestrator.Request) *orchestrator.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)
	if f.next >= len(f.Outcomes) {
		return f.Outcomes[len(f.Outcomes)-1]
	}
	out := f.Outcomes[f.next]
	f.next++
	return out
}

// CallCount returns the number of Generate calls.
func (f *FakeResponder) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}
