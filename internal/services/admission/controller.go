package admission

import (
	"context"
	"fmt"

	"github.com/brightdesk/support-service/internal/domain/models"
)

// RateLimitKindAIResponse is the rate limit bucket for AI generation.
const RateLimitKindAIResponse = "ai_response"

// quotaExceededMessage is the fixed customer-facing rejection text.
const quotaExceededMessage = "AI support is currently unavailable for this account. A member of our support team will help you shortly."

// DenialKind classifies why an attempt was refused.
type DenialKind string

const (
	// DeniedRateLimited means the sliding window is full.
	DeniedRateLimited DenialKind = "rate_limited"
	// DeniedQuotaExceeded means the monthly allowance is exhausted.
	DeniedQuotaExceeded DenialKind = "quota_exceeded"
)

// Decision is the outcome of the admission check.
type Decision struct {
	Allowed bool
	Denial  DenialKind
	// CustomerMessage is the fixed text posted to the customer on denial.
	CustomerMessage string
	// HandoffReason is recorded on the conversation on denial.
	HandoffReason string
}

// Controller runs both admission gates before an orchestration attempt.
// Both checks happen before the conversation's processing flag is set,
// so a denial never leaves a conversation stuck in processing.
type Controller struct {
	limiter RateLimiter
	usage   UsageTracker
	plans   PlanReader
}

// PlanReader supplies the tenant's plan limits.
type PlanReader interface {
	GetPlan(ctx context.Context, tenantID string) (*models.TenantPlan, error)
}

// NewController creates an admission controller.
func NewController(limiter RateLimiter, usage UsageTracker, plans PlanReader) *Controller {
	return &Controller{
		limiter: limiter,
		usage:   usage,
		plans:   plans,
	}
}

// Admit evaluates the rate limiter then the monthly quota.
func (c *Controller) Admit(ctx context.Context, tenantID string) (*Decision, error) {
	rate, err := c.limiter.Allow(ctx, tenantID, RateLimitKindAIResponse)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if rate.Limited {
		return &Decision{
			Allowed:         false,
			Denial:          DeniedRateLimited,
			CustomerMessage: rate.Message,
			HandoffReason:   models.HandoffReasonRateLimited,
		}, nil
	}

	exceeded, err := c.UsageExceeded(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if exceeded {
		return &Decision{
			Allowed:         false,
			Denial:          DeniedQuotaExceeded,
			CustomerMessage: quotaExceededMessage,
			HandoffReason:   models.HandoffReasonUsageLimit,
		}, nil
	}

	return &Decision{Allowed: true}, nil
}

// UsageExceeded reports whether the tenant has used up its monthly AI
// allowance. Also consulted by the handback-to-AI transition guard.
// Best-effort advisory: the limit may change between check and commit.
func (c *Controller) UsageExceeded(ctx context.Context, tenantID string) (bool, error) {
	plan, err := c.plans.GetPlan(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load tenant plan: %w", err)
	}

	used, err := c.usage.CurrentUsage(ctx, tenantID)
	if err != nil {
		return false, err
	}

	return used >= plan.MonthlyAILimit, nil
}

// RecordResponse counts one delivered AI response.
func (c *Controller) RecordResponse(ctx context.Context, tenantID string) error {
	return c.usage.Record(ctx, tenantID)
}
