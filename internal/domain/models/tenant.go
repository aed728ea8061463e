// Package models contains domain models for the support chat service.
package models

// TenantAIConfig holds the per-tenant AI configuration used to build
// the model-facing instruction set.
type TenantAIConfig struct {
	TenantID string `json:"tenantId"`

	// Persona is the tone template name (e.g. "friendly", "formal").
	Persona string `json:"persona,omitempty"`

	// SystemPrompt is the tenant-authored system instruction block.
	SystemPrompt string `json:"systemPrompt,omitempty"`

	// KnowledgeContext is company-specific context appended to the
	// instruction set.
	KnowledgeContext string `json:"knowledgeContext,omitempty"`

	// EscalationPhrases are tenant-configured trigger phrases matched
	// against the model output, in addition to the built-in defaults.
	EscalationPhrases []string `json:"escalationPhrases,omitempty"`

	Model          string `json:"model,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
	ResponseLength string `json:"responseLength,omitempty"`
}

// TenantPlan holds the subscription plan limits for a tenant.
type TenantPlan struct {
	Name string `json:"name"`

	// MonthlyAILimit is the number of AI responses included per billing
	// period. Zero means the tenant has no AI allowance.
	MonthlyAILimit int64 `json:"monthlyAiLimit"`
}

// AgentProfile describes a human support agent acting on conversations.
type AgentProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// AutoGreeting, when set, is posted as the agent's first message
	// right after their join message.
	AutoGreeting string `json:"autoGreeting,omitempty"`
}
