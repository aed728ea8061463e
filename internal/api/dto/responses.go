package dto

import (
	"time"

	"github.com/brightdesk/support-service/internal/domain/models"
)

// SendMessageResponse is returned after a message is recorded.
type SendMessageResponse struct {
	Message      *models.Message      `json:"message"`
	Conversation *models.Conversation `json:"conversation"`
}

// MessagesResponse is a page of conversation messages, newest first.
type MessagesResponse struct {
	Messages []*models.Message `json:"messages"`
	Total    int64             `json:"total"`
	Limit    int64             `json:"limit"`
}

// ConversationResponse wraps a single conversation.
type ConversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
}

// ReadReceiptResponse is returned after stamping a read receipt. ReadAt
// is the stored timestamp, which may predate this request when the
// receipt was already stamped.
type ReadReceiptResponse struct {
	MessageID string    `json:"messageId"`
	Side      string    `json:"side"`
	ReadAt    time.Time `json:"readAt"`
}
