// Package store provides the narrow persistence API the conversation
// core uses. All conversation mutations flow through this package so
// the state machine can rely on conditional writes.
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/brightdesk/support-service/internal/domain/models"
)

// Fields is a partial update applied to a conversation document.
type Fields map[string]interface{}

// Inc marks a numeric field for an atomic increment instead of an
// overwrite, so interleaved writers never lose counts.
type Inc int64

// ConversationStore is the storage collaborator of the conversation core.
// Reads are assumed strongly consistent after writes within a tenant.
type ConversationStore interface {
	// GetConversation returns the conversation or a NOT_FOUND error.
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)

	// FindByCustomer returns the conversation for a (tenant, customer)
	// pair, or nil when none exists yet.
	FindByCustomer(ctx context.Context, tenantID, customerID string) (*models.Conversation, error)

	// CreateConversation inserts a new conversation.
	CreateConversation(ctx context.Context, conv *models.Conversation) error

	// PatchConversation applies a partial update unconditionally.
	PatchConversation(ctx context.Context, id string, fields Fields) error

	// PatchConversationIf applies a partial update only when cond still
	// holds, and reports whether it matched. This is the conditional
	// write primitive behind the processing flag and pending-job handle.
	PatchConversationIf(ctx context.Context, id string, cond Fields, fields Fields) (bool, error)

	// InsertMessage appends a message to the log.
	InsertMessage(ctx context.Context, msg *models.Message) error

	// GetMessage returns a message or a NOT_FOUND error.
	GetMessage(ctx context.Context, id string) (*models.Message, error)

	// ListRecentMessages returns up to limit messages for the
	// conversation, newest first.
	ListRecentMessages(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error)

	// CountMessages counts messages matching the conversation.
	CountMessages(ctx context.Context, conversationID string) (int64, error)

	// StampReadReceipt sets the given receipt timestamp if it is not
	// already set, and returns the stored value either way. Stamping an
	// already-stamped receipt is a no-op.
	StampReadReceipt(ctx context.Context, messageID string, side ReceiptSide, at time.Time) (time.Time, error)
}

// ReceiptSide selects which read receipt to stamp.
type ReceiptSide string

const (
	// ReceiptByAgent is the agent-side read receipt.
	ReceiptByAgent ReceiptSide = "agent"
	// ReceiptByCustomer is the customer-side read receipt.
	ReceiptByCustomer ReceiptSide = "customer"
)

// field returns the bson field name for the receipt side.
func (s ReceiptSide) field() string {
	if s == ReceiptByCustomer {
		return "readByCustomerAt"
	}
	return "readByAgentAt"
}

// toBSON converts Fields into a bson document.
func (f Fields) toBSON() bson.M {
	out := bson.M{}
	for k, v := range f {
		out[k] = v
	}
	return out
}

// toUpdate converts Fields into an update document, routing Inc values
// through $inc and everything else through $set.
func (f Fields) toUpdate() bson.M {
	set := bson.M{}
	inc := bson.M{}
	for k, v := range f {
		if n, ok := v.(Inc); ok {
			inc[k] = int64(n)
			continue
		}
		set[k] = v
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	return update
}
