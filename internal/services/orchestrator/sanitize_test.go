package orchestrator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightdesk/support-service/internal/services/orchestrator"
)

func TestSanitize_CleanTextPassesThrough(t *testing.T) {
	clean, stripped := orchestrator.Sanitize("Your refund was issued today. It should arrive within 3 days.")
	assert.False(t, stripped)
	assert.Equal(t, "Your refund was issued today. It should arrive within 3 days.", clean)
}

func TestSanitize_EmptyInput(t *testing.T) {
	clean, stripped := orchestrator.Sanitize("")
	assert.False(t, stripped)
	assert.Empty(t, clean)
}

func TestSanitize_StripsRetrievalJargon(t *testing.T) {
	clean, stripped := orchestrator.Sanitize(
		"The vector store search returned no results. Your order ships on Monday.")
	assert.True(t, stripped)
	assert.Equal(t, "Your order ships on Monday.", clean)
}

func TestSanitize_StripsCaseInsensitively(t *testing.T) {
	clean, stripped := orchestrator.Sanitize(
		"No Files Found in the knowledge base. We can still help by email.")
	assert.True(t, stripped)
	assert.Equal(t, "We can still help by email.", clean)
}

func TestSanitize_StripsStackFrames(t *testing.T) {
	clean, stripped := orchestrator.Sanitize(
		"Something went wrong.\n    at handler (server.js:42)\nPlease try again.")
	assert.True(t, stripped)
	assert.NotContains(t, clean, "server.js")
	assert.Contains(t, clean, "Please try again.")
}

func TestSanitize_StripsLeakedTimestamps(t *testing.T) {
	clean, stripped := orchestrator.Sanitize(
		"Request failed at 2026-08-23T10:00:00Z with an upstream error. Our team is on it.")
	assert.True(t, stripped)
	assert.Equal(t, "Our team is on it.", clean)
}

func TestSanitize_AllNoiseYieldsEmpty(t *testing.T) {
	clean, stripped := orchestrator.Sanitize(
		"retrieval failed. tool output was empty. file_search found nothing.")
	assert.True(t, stripped)
	assert.Empty(t, clean)
}
