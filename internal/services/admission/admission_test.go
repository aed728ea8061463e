// Package admission_test provides unit tests for admission control.
package admission_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/admission"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

// fakePlans serves a fixed plan.
type fakePlans struct {
	plan *models.TenantPlan
	err  error
}

func (f *fakePlans) GetPlan(ctx context.Context, tenantID string) (*models.TenantPlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

func TestRateLimiter_AdmitsUntilWindowFull(t *testing.T) {
	client := setupRedis(t)
	limiter := admission.NewRateLimiter(client, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "tenant-1", admission.RateLimitKindAIResponse)
		require.NoError(t, err)
		assert.False(t, decision.Limited, "attempt %d should be admitted", i+1)
	}

	decision, err := limiter.Allow(ctx, "tenant-1", admission.RateLimitKindAIResponse)
	require.NoError(t, err)
	assert.True(t, decision.Limited)
	assert.Equal(t,
		"We're receiving a lot of messages right now. Please wait a moment before sending more.",
		decision.Message)
}

func TestRateLimiter_TenantsAreIsolated(t *testing.T) {
	client := setupRedis(t)
	limiter := admission.NewRateLimiter(client, time.Minute, 1)
	ctx := context.Background()

	decision, err := limiter.Allow(ctx, "tenant-1", admission.RateLimitKindAIResponse)
	require.NoError(t, err)
	require.False(t, decision.Limited)

	decision, err = limiter.Allow(ctx, "tenant-2", admission.RateLimitKindAIResponse)
	require.NoError(t, err)
	assert.False(t, decision.Limited, "one tenant's burst must not limit another")
}

func TestRateLimiter_RejectionsConsumeNoBudget(t *testing.T) {
	client := setupRedis(t)
	limiter := admission.NewRateLimiter(client, 80*time.Millisecond, 1)
	ctx := context.Background()

	decision, err := limiter.Allow(ctx, "tenant-1", admission.RateLimitKindAIResponse)
	require.NoError(t, err)
	require.False(t, decision.Limited)

	// Rejected attempts must not extend the window.
	for i := 0; i < 3; i++ {
		decision, err = limiter.Allow(ctx, "tenant-1", admission.RateLimitKindAIResponse)
		require.NoError(t, err)
		require.True(t, decision.Limited)
	}

	time.Sleep(120 * time.Millisecond)

	decision, err = limiter.Allow(ctx, "tenant-1", admission.RateLimitKindAIResponse)
	require.NoError(t, err)
	assert.False(t, decision.Limited, "window slides past the single admitted attempt")
}

func TestUsageTracker_RecordAndRead(t *testing.T) {
	client := setupRedis(t)
	tracker := admission.NewUsageTracker(client)
	ctx := context.Background()

	used, err := tracker.CurrentUsage(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.Record(ctx, "tenant-1"))
	}

	used, err = tracker.CurrentUsage(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), used)

	used, err = tracker.CurrentUsage(ctx, "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), used, "usage is per tenant")
}

func TestController_AllowsUnderBothLimits(t *testing.T) {
	client := setupRedis(t)
	ctrl := admission.NewController(
		admission.NewRateLimiter(client, time.Minute, 10),
		admission.NewUsageTracker(client),
		&fakePlans{plan: &models.TenantPlan{Name: "pro", MonthlyAILimit: 100}},
	)

	decision, err := ctrl.Admit(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestController_DeniesWhenRateLimited(t *testing.T) {
	client := setupRedis(t)
	ctrl := admission.NewController(
		admission.NewRateLimiter(client, time.Minute, 1),
		admission.NewUsageTracker(client),
		&fakePlans{plan: &models.TenantPlan{Name: "pro", MonthlyAILimit: 100}},
	)
	ctx := context.Background()

	decision, err := ctrl.Admit(ctx, "tenant-1")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = ctrl.Admit(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, admission.DeniedRateLimited, decision.Denial)
	assert.Equal(t, models.HandoffReasonRateLimited, decision.HandoffReason)
	assert.NotEmpty(t, decision.CustomerMessage)
}

func TestController_DeniesWhenQuotaExhausted(t *testing.T) {
	client := setupRedis(t)
	tracker := admission.NewUsageTracker(client)
	ctrl := admission.NewController(
		admission.NewRateLimiter(client, time.Minute, 100),
		tracker,
		&fakePlans{plan: &models.TenantPlan{Name: "starter", MonthlyAILimit: 2}},
	)
	ctx := context.Background()

	require.NoError(t, ctrl.RecordResponse(ctx, "tenant-1"))
	require.NoError(t, ctrl.RecordResponse(ctx, "tenant-1"))

	decision, err := ctrl.Admit(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, admission.DeniedQuotaExceeded, decision.Denial)
	assert.Equal(t, models.HandoffReasonUsageLimit, decision.HandoffReason)
	assert.Equal(t,
		"AI support is currently unavailable for this account. A member of our support team will help you shortly.",
		decision.CustomerMessage)
}

func TestController_UsageExceededAtBoundary(t *testing.T) {
	client := setupRedis(t)
	tracker := admission.NewUsageTracker(client)
	ctrl := admission.NewController(
		admission.NewRateLimiter(client, time.Minute, 100),
		tracker,
		&fakePlans{plan: &models.TenantPlan{Name: "starter", MonthlyAILimit: 2}},
	)
	ctx := context.Background()

	exceeded, err := ctrl.UsageExceeded(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, exceeded)

	require.NoError(t, tracker.Record(ctx, "tenant-1"))
	exceeded, err = ctrl.UsageExceeded(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, exceeded, "one below the limit is still allowed")

	require.NoError(t, tracker.Record(ctx, "tenant-1"))
	exceeded, err = ctrl.UsageExceeded(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, exceeded, "the limit itself is exhausted")
}

func TestController_ZeroAllowancePlan(t *testing.T) {
	client := setupRedis(t)
	ctrl := admission.NewController(
		admission.NewRateLimiter(client, time.Minute, 100),
		admission.NewUsageTracker(client),
		&fakePlans{plan: &models.TenantPlan{Name: "free", MonthlyAILimit: 0}},
	)

	decision, err := ctrl.Admit(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, admission.DeniedQuotaExceeded, decision.Denial)
}
