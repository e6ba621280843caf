package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"account-server/shared/interfaces"
	"account-server/shared/models"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// SecurityEventsExchangeName is the fanout exchange account security events go to.
const SecurityEventsExchangeName = "account_security_events"

// amqpChannel is the part of *amqp091.Channel the publisher needs.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

var _ interfaces.SecurityEventPublisher = (*RabbitMQSecurityEventPublisher)(nil)

// RabbitMQSecurityEventPublisher publishes security events as JSON to a durable fanout exchange.
type RabbitMQSecurityEventPublisher struct {
	ch       amqpChannel
	exchange string
	logger   *zap.Logger
}

// NewRabbitMQSecurityEventPublisher opens a channel on conn and declares the exchange.
// Reconnects are the caller's concern.
func NewRabbitMQSecurityEventPublisher(conn *amqp091.Connection, logger *zap.Logger) (*RabbitMQSecurityEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return newSecurityEventPublisher(ch, SecurityEventsExchangeName, logger)
}

func newSecurityEventPublisher(ch amqpChannel, exchange string, logger *zap.Logger) (*RabbitMQSecurityEventPublisher, error) {
	err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchange, err)
	}

	log := logger.Named("SecurityEventPublisher")
	log.Info("Security event exchange declared", zap.String("exchange", exchange))
	return &RabbitMQSecurityEventPublisher{ch: ch, exchange: exchange, logger: log}, nil
}

// PublishSecurityEvent sends one event. OccurredAt is filled in when zero.
func (p *RabbitMQSecurityEventPublisher) PublishSecurityEvent(ctx context.Context, event models.SecurityEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal security event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Type:         string(event.Type),
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish security event",
			zap.String("type", string(event.Type)),
			zap.String("userID", event.UserID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish security event: %w", err)
	}

	p.logger.Debug("Security event published", zap.String("type", string(event.Type)), zap.String("userID", event.UserID.String()))
	return nil
}

// Close closes the channel.
func (p *RabbitMQSecurityEventPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

var _ interfaces.SecurityEventPublisher = (*LogSecurityEventPublisher)(nil)

// LogSecurityEventPublisher writes events to the log. It is used when no broker is configured.
type LogSecurityEventPublisher struct {
	logger *zap.Logger
}

// NewLogSecurityEventPublisher creates a publisher that only logs.
func NewLogSecurityEventPublisher(logger *zap.Logger) *LogSecurityEventPublisher {
	return &LogSecurityEventPublisher{logger: logger.Named("SecurityEvents")}
}

func (p *LogSecurityEventPublisher) PublishSecurityEvent(_ context.Context, event models.SecurityEvent) error {
	p.logger.Warn("Security event",
		zap.String("type", string(event.Type)),
		zap.String("userID", event.UserID.String()),
		zap.String("clientIP", event.ClientIP),
		zap.String("detail", event.Detail),
	)
	return nil
}
