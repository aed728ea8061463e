// Package models contains domain models for the support chat service.
package models

import "time"

// ConversationStatus represents who currently owns a conversation.
type ConversationStatus string

const (
	// StatusAIHandling means the AI agent owns the conversation.
	StatusAIHandling ConversationStatus = "ai_handling"
	// StatusAvailable means the conversation is queued for a human agent.
	StatusAvailable ConversationStatus = "available"
	// StatusSupportHandling means a human agent owns the conversation.
	StatusSupportHandling ConversationStatus = "support_staff_handling"
	// StatusResolved means the conversation has been marked resolved.
	// A new customer message reopens it into ai_handling.
	StatusResolved ConversationStatus = "resolved"
)

// IsValid reports whether s is one of the four known statuses.
func (s ConversationStatus) IsValid() bool {
	switch s {
	case StatusAIHandling, StatusAvailable, StatusSupportHandling, StatusResolved:
		return true
	}
	return false
}

// Handoff reasons recorded on the conversation when ownership moves
// from the AI to the human queue.
const (
	HandoffReasonCustomerRequest  = "customer requested a human agent"
	HandoffReasonEscalation       = "AI escalated the conversation"
	HandoffReasonRateLimited      = "rate limited"
	HandoffReasonUsageLimit       = "usage limit reached"
	HandoffReasonGenerationFailed = "AI generation failed after multiple attempts"
)

// Conversation is the single serialization point for one (tenant, customer)
// support thread. It is created on first customer contact and never deleted.
type Conversation struct {
	ID         string             `json:"id" bson:"_id"`
	TenantID   string             `json:"tenantId" bson:"tenantId"`
	CustomerID string             `json:"customerId" bson:"customerId"`
	Status     ConversationStatus `json:"status" bson:"status"`

	// AIProcessing is true while an orchestration attempt is in flight.
	// It may only be true when Status is ai_handling.
	AIProcessing          bool       `json:"aiProcessing" bson:"aiProcessing"`
	AIProcessingStartedAt *time.Time `json:"aiProcessingStartedAt,omitempty" bson:"aiProcessingStartedAt,omitempty"`

	// PendingJobID is the handle of the currently scheduled debounce job,
	// or empty when no job is pending. Cleared as the first action inside
	// the job body.
	PendingJobID string `json:"pendingJobId,omitempty" bson:"pendingJobId,omitempty"`

	// AgentIDs is the set of human agents participating in the conversation.
	AgentIDs []string `json:"agentIds,omitempty" bson:"agentIds,omitempty"`

	HandoffReason string `json:"handoffReason,omitempty" bson:"handoffReason,omitempty"`

	// ExternalThreadID is an opaque handle into the completion provider's
	// stateful conversation, when the provider uses one. The local message
	// log remains the source of truth for history; this is only a cache.
	ExternalThreadID string `json:"externalThreadId,omitempty" bson:"externalThreadId,omitempty"`

	MessageCount          int64      `json:"messageCount" bson:"messageCount"`
	LastCustomerMessageAt *time.Time `json:"lastCustomerMessageAt,omitempty" bson:"lastCustomerMessageAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// NewConversation creates a conversation in its initial ai_handling state.
func NewConversation(id, tenantID, customerID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:         id,
		TenantID:   tenantID,
		CustomerID: customerID,
		Status:     StatusAIHandling,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasAgent reports whether the given agent is already a participant.
func (c *Conversation) HasAgent(agentID string) bool {
	for _, id := range c.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}
