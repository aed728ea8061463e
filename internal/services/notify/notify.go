// Package notify defines the outbound notification sender used to alert
// human agents about handoffs.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notification is a push notification for human agents.
type Notification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	DeepLink string `json:"deepLink,omitempty"`
}

// Sender delivers notifications to a set of users. Delivery is
// best-effort; the conversation pipeline never blocks on it.
type Sender interface {
	Notify(ctx context.Context, tenantID string, userIDs []string, n *Notification) error
	Close() error
}

// LogSender is a development fallback that only logs notifications.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a log-only notification sender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Notify logs the notification instead of delivering it.
func (s *LogSender) Notify(ctx context.Context, tenantID string, userIDs []string, n *Notification) error {
	s.logger.Info().
		Str("tenant_id", tenantID).
		Strs("user_ids", userIDs).
		Str("title", n.Title).
		Msg("notification (log sender)")
	return nil
}

// Close is a no-op for the log sender.
func (s *LogSender) Close() error {
	return nil
}
