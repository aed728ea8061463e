// Package models contains domain models for the support chat service.
package models

import "time"

// MessageRole represents the sender of a message.
type MessageRole string

const (
	// RoleCustomer is a message written by the customer.
	RoleCustomer MessageRole = "customer"
	// RoleAI is a reply generated by the AI agent.
	RoleAI MessageRole = "ai"
	// RoleAgent is a message written by a human support agent.
	RoleAgent MessageRole = "agent"
	// RoleSystem is an audit-trail message emitted by the state machine.
	RoleSystem MessageRole = "system"
)

// SystemEventType is the sub-type of a system message.
type SystemEventType string

const (
	SystemEventHandoff       SystemEventType = "handoff"
	SystemEventAgentJoined   SystemEventType = "agent_joined"
	SystemEventAgentLeft     SystemEventType = "agent_left"
	SystemEventIssueResolved SystemEventType = "issue_resolved"
)

// AIMetadata holds generation metadata attached to AI replies.
type AIMetadata struct {
	Model        string `json:"model,omitempty" bson:"model,omitempty"`
	TokensInput  int    `json:"tokensInput,omitempty" bson:"tokensInput,omitempty"`
	TokensOutput int    `json:"tokensOutput,omitempty" bson:"tokensOutput,omitempty"`
	LatencyMs    int64  `json:"latencyMs,omitempty" bson:"latencyMs,omitempty"`
	RunID        string `json:"runId,omitempty" bson:"runId,omitempty"`
}

// Message is one entry in a conversation's message log. Messages are
// immutable once created, except for the two read-receipt timestamps,
// which are stamped exactly once each.
type Message struct {
	ID             string      `json:"id" bson:"_id"`
	TenantID       string      `json:"tenantId" bson:"tenantId"`
	ConversationID string      `json:"conversationId" bson:"conversationId"`
	Role           MessageRole `json:"role" bson:"role"`
	Content        string      `json:"content" bson:"content"`

	SenderID   string `json:"senderId,omitempty" bson:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty" bson:"senderName,omitempty"`

	// SystemEvent is set only when Role is system.
	SystemEvent SystemEventType `json:"systemEvent,omitempty" bson:"systemEvent,omitempty"`

	// Metadata is set only when Role is ai.
	Metadata *AIMetadata `json:"metadata,omitempty" bson:"metadata,omitempty"`

	AttachmentURL string `json:"attachmentUrl,omitempty" bson:"attachmentUrl,omitempty"`

	ReadByAgentAt    *time.Time `json:"readByAgentAt,omitempty" bson:"readByAgentAt,omitempty"`
	ReadByCustomerAt *time.Time `json:"readByCustomerAt,omitempty" bson:"readByCustomerAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// NewCustomerMessage creates a message sent by the customer.
func NewCustomerMessage(id, tenantID, conversationID, customerID, content, attachmentURL string) *Message {
	return &Message{
		ID:             id,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Role:           RoleCustomer,
		Content:        content,
		SenderID:       customerID,
		AttachmentURL:  attachmentURL,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewAIMessage creates an AI reply with generation metadata.
func NewAIMessage(id, tenantID, conversationID, content string, meta *AIMetadata) *Message {
	return &Message{
		ID:             id,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Role:           RoleAI,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewAgentMessage creates a message written by a human agent.
func NewAgentMessage(id, tenantID, conversationID, agentID, agentName, content string) *Message {
	return &Message{
		ID:             id,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Role:           RoleAgent,
		Content:        content,
		SenderID:       agentID,
		SenderName:     agentName,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewSystemMessage creates an audit-trail message for a state transition.
func NewSystemMessage(id, tenantID, conversationID string, event SystemEventType, content string) *Message {
	return &Message{
		ID:             id,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Role:           RoleSystem,
		SystemEvent:    event,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// ChatHistoryEntry is a single entry in the history sent to the
// completion provider.
type ChatHistoryEntry struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToChatHistoryEntry converts a message to a history entry.
func (m *Message) ToChatHistoryEntry() ChatHistoryEntry {
	return ChatHistoryEntry{
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}
