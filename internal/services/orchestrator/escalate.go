package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/completion"
)

// escalationToolNames are the tool identifiers treated as a structured
// escalation request from the model.
var escalationToolNames = map[string]bool{
	"escalate":          true,
	"escalate_to_human": true,
	"request_human":     true,
	"handoff_to_agent":  true,
}

// defaultEscalationPhrases are matched against the model output in
// addition to the tenant-configured trigger phrases.
var defaultEscalationPhrases = []string{
	"escalate",
	"human agent",
	"transfer you",
	"connect you with a member of our team",
}

// EscalationDetector watches the model output for escalation intent,
// either a structured tool call or trigger phrases in the text itself.
type EscalationDetector struct {
	phrases []string
}

// NewEscalationDetector builds a detector for the tenant's configuration.
func NewEscalationDetector(ai *models.TenantAIConfig) *EscalationDetector {
	phrases := make([]string, 0, len(defaultEscalationPhrases)+len(ai.EscalationPhrases))
	for _, p := range defaultEscalationPhrases {
		phrases = append(phrases, strings.ToLower(p))
	}
	for _, p := range ai.EscalationPhrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return &EscalationDetector{phrases: phrases}
}

// MatchToolCall reports whether the tool call is an escalation request
// and extracts its reason.
func (d *EscalationDetector) MatchToolCall(call *completion.ToolCall) (string, bool) {
	if !escalationToolNames[strings.ToLower(call.Name)] {
		return "", false
	}

	var args struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err == nil && args.Reason != "" {
		return args.Reason, true
	}

	// request_human is the tool the model reaches for when the customer
	// asks for a person; without an explicit reason, the ask itself is
	// the reason.
	if strings.EqualFold(call.Name, "request_human") {
		return models.HandoffReasonCustomerRequest, true
	}
	return models.HandoffReasonEscalation, true
}

// MatchText reports whether the accumulated output text contains an
// escalation trigger phrase. Matching is case-insensitive.
func (d *EscalationDetector) MatchText(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range d.phrases {
		if strings.Contains(lower, phrase) {
			return models.HandoffReasonEscalation, true
		}
	}
	return "", false
}
