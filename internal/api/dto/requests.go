// Package dto defines request and response bodies for the API.
package dto

// SendCustomerMessageRequest is the body for a customer message.
type SendCustomerMessageRequest struct {
	Content       string `json:"content" binding:"required"`
	AttachmentURL string `json:"attachmentUrl,omitempty"`
}

// SendAgentMessageRequest is the body for a human agent message.
type SendAgentMessageRequest struct {
	AgentID string `json:"agentId" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// MarkReadRequest selects which read receipt to stamp.
type MarkReadRequest struct {
	Side string `json:"side" binding:"required,oneof=agent customer"`
}

// AgentActionRequest identifies the agent performing a conversation
// action (accept, handback, resolve).
type AgentActionRequest struct {
	AgentID string `json:"agentId" binding:"required"`
}
