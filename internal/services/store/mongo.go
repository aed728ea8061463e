package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/brightdesk/support-service/internal/core/docdb"
	domainerrors "github.com/brightdesk/support-service/internal/domain/errors"
	"github.com/brightdesk/support-service/internal/domain/models"
)

// mongoStore implements ConversationStore on top of the document db.
type mongoStore struct {
	db docdb.Client
}

// NewMongoStore creates a document-db-backed conversation store.
func NewMongoStore(db docdb.Client) ConversationStore {
	return &mongoStore{db: db}
}

// GetConversation returns the conversation or a NOT_FOUND error.
func (s *mongoStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	result := s.db.Conversations().FindOne(ctx, bson.M{"_id": id})
	if err := result.Decode(&conv); err != nil {
		if result.Err() != nil {
			return nil, domainerrors.NewNotFoundError("conversation", id)
		}
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &conv, nil
}

// FindByCustomer returns the conversation for a (tenant, customer) pair.
func (s *mongoStore) FindByCustomer(ctx context.Context, tenantID, customerID string) (*models.Conversation, error) {
	var conv models.Conversation
	result := s.db.Conversations().FindOne(ctx, bson.M{
		"tenantId":   tenantID,
		"customerId": customerID,
	})
	if err := result.Decode(&conv); err != nil {
		if result.Err() != nil {
			return nil, nil // no conversation yet
		}
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &conv, nil
}

// CreateConversation inserts a new conversation.
func (s *mongoStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if _, err := s.db.Conversations().InsertOne(ctx, conv); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// PatchConversation applies a partial update unconditionally.
func (s *mongoStore) PatchConversation(ctx context.Context, id string, fields Fields) error {
	result, err := s.db.Conversations().UpdateOne(ctx,
		bson.M{"_id": id},
		fields.toUpdate(),
	)
	if err != nil {
		return fmt.Errorf("failed to patch conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return domainerrors.NewNotFoundError("conversation", id)
	}
	return nil
}

// PatchConversationIf applies a partial update only when cond still holds.
func (s *mongoStore) PatchConversationIf(ctx context.Context, id string, cond Fields, fields Fields) (bool, error) {
	filter := cond.toBSON()
	filter["_id"] = id

	result, err := s.db.Conversations().UpdateOne(ctx,
		filter,
		fields.toUpdate(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to patch conversation: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// InsertMessage appends a message to the log.
func (s *mongoStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message ID is required")
	}
	if _, err := s.db.Messages().InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessage returns a message or a NOT_FOUND error.
func (s *mongoStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	result := s.db.Messages().FindOne(ctx, bson.M{"_id": id})
	if err := result.Decode(&msg); err != nil {
		if result.Err() != nil {
			return nil, domainerrors.NewNotFoundError("message", id)
		}
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &msg, nil
}

// ListRecentMessages returns up to limit messages, newest first.
func (s *mongoStore) ListRecentMessages(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error) {
	opts := &docdb.FindOptions{
		Limit: limit,
		Sort:  bson.M{"createdAt": -1},
	}

	cursor, err := s.db.Messages().Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// CountMessages counts messages in the conversation.
func (s *mongoStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	return s.db.Messages().CountDocuments(ctx, bson.M{"conversationId": conversationID})
}

// StampReadReceipt sets the receipt timestamp if unset and returns the
// stored value. The conditional filter makes a second stamp a no-op.
func (s *mongoStore) StampReadReceipt(ctx context.Context, messageID string, side ReceiptSide, at time.Time) (time.Time, error) {
	field := side.field()

	_, err := s.db.Messages().UpdateOne(ctx,
		bson.M{"_id": messageID, field: nil},
		bson.M{"$set": bson.M{field: at}},
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stamp read receipt: %w", err)
	}

	// Read back the stored value: either ours or the earlier stamp.
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return time.Time{}, err
	}

	var stored *time.Time
	if side == ReceiptByCustomer {
		stored = msg.ReadByCustomerAt
	} else {
		stored = msg.ReadByAgentAt
	}
	if stored == nil {
		return time.Time{}, fmt.Errorf("read receipt missing after stamp")
	}
	return *stored, nil
}
