// Package rabbitmq provides the RabbitMQ-backed notification publisher.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/brightdesk/support-service/internal/services/notify"
)

// routingKey is the topic key agent notification consumers bind to.
const routingKey = "support.agent.notification"

// Envelope is the versioned event published for each notification.
type Envelope struct {
	ID         string               `json:"id"`
	Version    string               `json:"version"`
	OccurredAt time.Time            `json:"occurredAt"`
	TenantID   string               `json:"tenantId"`
	UserIDs    []string             `json:"userIds"`
	Payload    *notify.Notification `json:"payload"`
}

// Publisher implements notify.Sender over a RabbitMQ topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   zerolog.Logger
}

// Config holds the publisher configuration.
type Config struct {
	URL      string
	Exchange string
	Logger   zerolog.Logger
}

// NewPublisher connects to RabbitMQ and declares the notification exchange.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("exchange is required")
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		exchange: cfg.Exchange,
		logger:   cfg.Logger,
	}, nil
}

// Notify publishes a persistent notification envelope.
func (p *Publisher) Notify(ctx context.Context, tenantID string, userIDs []string, n *notify.Notification) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	env := &Envelope{
		ID:         uuid.NewString(),
		Version:    "v1",
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID,
		UserIDs:    userIDs,
		Payload:    n,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, routingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.Debug().
		Str("tenant_id", tenantID).
		Str("routing_key", routingKey).
		Msg("notification published")
	return nil
}

// Close closes the broker connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
