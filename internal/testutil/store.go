// Package testutil provides in-memory fakes shared by unit tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/services/store"
)

// MemStore is an in-memory ConversationStore. Conditional writes are
// applied under one mutex, which mirrors the atomicity the document
// store gives a single UpdateOne.
type MemStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	inserted      []string

	// FailInsertMessage makes the next message insert fail, for testing
	// audit-trail error handling.
	FailInsertMessage bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

// GetConversation returns the conversation or a NOT_FOUND error.
func (s *MemStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, domainerrors.NewNotFoundError("conversation", id)
	}
	copied := *conv
	return &copied, nil
}

// FindByCustomer returns the conversation for a (tenant, customer) pair.
func (s *MemStore) FindByCustomer(ctx context.Context, tenantID, customerID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.TenantID == tenantID && conv.CustomerID == customerID {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, nil
}

// CreateConversation inserts a new conversation. A second insert for
// the same (tenant, customer) pair fails like the unique index would.
func (s *MemStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.conversations {
		if existing.TenantID == conv.TenantID && existing.CustomerID == conv.CustomerID {
			return domainerrors.NewConflictError("conversation already exists", conv.ID)
		}
	}
	copied := *conv
	s.conversations[conv.ID] = &copied
	return nil
}

// PatchConversation applies a partial update unconditionally.
func (s *MemStore) PatchConversation(ctx context.Context, id string, fields store.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return domainerrors.NewNotFoundError("conversation", id)
	}
	applyFields(conv, fields)
	return nil
}

// PatchConversationIf applies a partial update only when cond holds.
func (s *MemStore) PatchConversationIf(ctx context.Context, id string, cond store.Fields, fields store.Fields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return false, nil
	}
	for key, want := range cond {
		if !fieldMatches(conv, key, want) {
			return false, nil
		}
	}
	applyFields(conv, fields)
	return true, nil
}

// InsertMessage appends a message to the log.
func (s *MemStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsertMessage {
		s.FailInsertMessage = false
		return domainerrors.NewInternalError("insert failed", nil)
	}

	copied := *msg
	s.messages[msg.ID] = &copied
	s.inserted = append(s.inserted, msg.ID)
	return nil
}

// GetMessage returns a message or a NOT_FOUND error.
func (s *MemStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, domainerrors.NewNotFoundError("message", id)
	}
	copied := *msg
	return &copied, nil
}

// ListRecentMessages returns up to limit messages, newest first.
func (s *MemStore) ListRecentMessages(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Message
	// Walk in insertion order so equal timestamps keep a stable order.
	for i := len(s.inserted) - 1; i >= 0; i-- {
		msg := s.messages[s.inserted[i]]
		if msg.ConversationID != conversationID {
			continue
		}
		copied := *msg
		out = append(out, &copied)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountMessages counts messages in the conversation.
func (s *MemStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

// StampReadReceipt sets the receipt timestamp if unset and returns the
// stored value.
func (s *MemStore) StampReadReceipt(ctx context.Context, messageID string, side store.ReceiptSide, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return time.Time{}, domainerrors.NewNotFoundError("message", messageID)
	}

	if side == store.ReceiptByCustomer {
		if msg.ReadByCustomerAt == nil {
			msg.ReadByCustomerAt = &at
		}
		return *msg.ReadByCustomerAt, nil
	}
	if msg.ReadByAgentAt == nil {
		msg.ReadByAgentAt = &at
	}
	return *msg.ReadByAgentAt, nil
}

// MessagesFor returns the messages for a conversation in insertion order.
func (s *MemStore) MessagesFor(conversationID string) []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Message
	for _, id := range s.inserted {
		msg := s.messages[id]
		if msg.ConversationID == conversationID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out
}

// applyFields mutates the conversation per the bson field names the
// production store uses.
func applyFields(conv *models.Conversation, fields store.Fields) {
	for key, value := range fields {
		switch key {
		case "status":
			conv.Status = value.(models.ConversationStatus)
		case "aiProcessing":
			conv.AIProcessing = value.(bool)
		case "aiProcessingStartedAt":
			conv.AIProcessingStartedAt = timePtr(value)
		case "pendingJobId":
			conv.PendingJobID = value.(string)
		case "agentIds":
			conv.AgentIDs = value.([]string)
		case "handoffReason":
			conv.HandoffReason = value.(string)
		case "externalThreadId":
			conv.ExternalThreadID = value.(string)
		case "messageCount":
			if inc, ok := value.(store.Inc); ok {
				conv.MessageCount += int64(inc)
			} else {
				conv.MessageCount = value.(int64)
			}
		case "lastCustomerMessageAt":
			conv.LastCustomerMessageAt = timePtr(value)
		case "updatedAt":
			conv.UpdatedAt = value.(time.Time)
		}
	}
}

// fieldMatches evaluates one condition key against the conversation.
func fieldMatches(conv *models.Conversation, key string, want interface{}) bool {
	switch key {
	case "status":
		return conv.Status == want.(models.ConversationStatus)
	case "aiProcessing":
		return conv.AIProcessing == want.(bool)
	case "pendingJobId":
		return conv.PendingJobID == want.(string)
	}
	return false
}

// timePtr converts a Fields value to a *time.Time.
func timePtr(value interface{}) *time.Time {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}
