package orchestrator

import (
	"strings"

	"github.com/brightdesk/support-service/internal/domain/models"
)

// personaTemplates map the tenant's persona setting to a tone preamble.
var personaTemplates = map[string]string{
	"friendly": "You are a warm, friendly customer support assistant. Use a conversational tone, be empathetic, and keep the customer at ease.",
	"formal":   "You are a professional customer support assistant. Use precise, courteous language and a formal register.",
	"concise":  "You are an efficient customer support assistant. Answer directly and avoid filler.",
}

const defaultPersonaTemplate = "You are a helpful customer support assistant. Be polite, clear, and focused on resolving the customer's issue."

// responseLengthHints map the tenant's response length setting to an
// instruction appended to the prompt.
var responseLengthHints = map[string]string{
	"short":  "Keep replies to one or two sentences.",
	"medium": "Keep replies to a short paragraph.",
	"long":   "Reply thoroughly, using several paragraphs when the question warrants it.",
}

// ComposeInstructions builds the model-facing instruction set from the
// tenant AI configuration. Order is fixed: persona tone template, then
// the tenant system prompt, then the tenant knowledge context.
func ComposeInstructions(ai *models.TenantAIConfig) string {
	var b strings.Builder

	persona := personaTemplates[strings.ToLower(ai.Persona)]
	if persona == "" {
		persona = defaultPersonaTemplate
	}
	b.WriteString(persona)

	if hint := responseLengthHints[strings.ToLower(ai.ResponseLength)]; hint != "" {
		b.WriteString(" ")
		b.WriteString(hint)
	}

	if ai.SystemPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(ai.SystemPrompt))
	}

	if ai.KnowledgeContext != "" {
		b.WriteString("\n\nCompany knowledge:\n")
		b.WriteString(strings.TrimSpace(ai.KnowledgeContext))
	}

	b.WriteString("\n\nIf the customer asks for a human agent, or you cannot help, call the escalate tool or state clearly that you will transfer them to a human agent.")

	return b.String()
}
