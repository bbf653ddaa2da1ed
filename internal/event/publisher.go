package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyClientRegistered  = "client.registered"
	routingKeyClientUpdated     = "client.updated"
	routingKeyLoanCreated       = "loan.created"
	routingKeyLoanDisbursed     = "loan.disbursed"
	routingKeyRepaymentRecorded = "loan.repayment.recorded"
	publisherAppID              = "microfinance-loans"
)

type ClientEventPayload struct {
	ClientID     int64     `json:"clientId"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	IsDelinquent bool      `json:"isDelinquent"`
	Active       bool      `json:"active"`
	LoanID       *int64    `json:"loanId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type ClientRegisteredEvent struct {
	EventID   string             `json:"eventId"`
	Timestamp time.Time          `json:"timestamp"`
	Payload   ClientEventPayload `json:"payload"`
}

type ClientUpdatedEvent struct {
	EventID   string             `json:"eventId"`
	Timestamp time.Time          `json:"timestamp"`
	Payload   ClientEventPayload `json:"payload"`
}

type LoanEventPayload struct {
	LoanID         int64  `json:"loanId"`
	ClientID       int64  `json:"clientId"`
	Principal      string `json:"principal"`
	TotalRepayable string `json:"totalRepayable"`
	TermInMonths   int    `json:"termInMonths"`
	MaturityDate   string `json:"maturityDate"`
}

type LoanCreatedEvent struct {
	EventID   string           `json:"eventId"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   LoanEventPayload `json:"payload"`
}

type LoanDisbursedEvent struct {
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	LoanID    int64     `json:"loanId"`
	Amount    string    `json:"amount"`
	Reference string    `json:"reference"`
}

type RepaymentRecordedEvent struct {
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	LoanID    int64     `json:"loanId"`
	Amount    string    `json:"amount"`
	Reference string    `json:"reference"`
	PaidOff   bool      `json:"paidOff"`
}

type EventPublisher interface {
	PublishClientRegistered(ctx context.Context, event ClientRegisteredEvent) error
	PublishClientUpdated(ctx context.Context, event ClientUpdatedEvent) error
	PublishLoanCreated(ctx context.Context, event LoanCreatedEvent) error
	PublishLoanDisbursed(ctx context.Context, event LoanDisbursedEvent) error
	PublishRepaymentRecorded(ctx context.Context, event RepaymentRecordedEvent) error
}

func NewEventID() string {
	return uuid.NewString()
}

type RabbitMQEventPublisher struct {
	conn         *amqp.Connection
	exchangeName string
	logger       *slog.Logger
}

var _ EventPublisher = (*RabbitMQEventPublisher)(nil)

func NewRabbitMQEventPublisher(conn *amqp.Connection, exchangeName string, logger *slog.Logger) (*RabbitMQEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection cannot be nil")
	}
	if exchangeName == "" {
		return nil, fmt.Errorf("RabbitMQ exchange name cannot be empty")
	}

	tempCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open temporary channel for exchange declaration: %w", err)
	}
	defer tempCh.Close()

	err = tempCh.ExchangeDeclare(
		exchangeName,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	logger.Info("Ensured RabbitMQ exchange exists", "exchange", exchangeName, "type", amqp.ExchangeTopic)

	return &RabbitMQEventPublisher{
		conn:         conn,
		exchangeName: exchangeName,
		logger:       logger.With("component", "RabbitMQEventPublisher", "exchange", exchangeName),
	}, nil
}

func (p *RabbitMQEventPublisher) PublishClientRegistered(ctx context.Context, event ClientRegisteredEvent) error {
	return p.publish(ctx, routingKeyClientRegistered, event)
}

func (p *RabbitMQEventPublisher) PublishClientUpdated(ctx context.Context, event ClientUpdatedEvent) error {
	return p.publish(ctx, routingKeyClientUpdated, event)
}

func (p *RabbitMQEventPublisher) PublishLoanCreated(ctx context.Context, event LoanCreatedEvent) error {
	return p.publish(ctx, routingKeyLoanCreated, event)
}

func (p *RabbitMQEventPublisher) PublishLoanDisbursed(ctx context.Context, event LoanDisbursedEvent) error {
	return p.publish(ctx, routingKeyLoanDisbursed, event)
}

func (p *RabbitMQEventPublisher) PublishRepaymentRecorded(ctx context.Context, event RepaymentRecordedEvent) error {
	return p.publish(ctx, routingKeyRepaymentRecorded, event)
}

func (p *RabbitMQEventPublisher) publish(ctx context.Context, routingKey string, payload interface{}) error {
	logCtx := p.logger.With(slog.String("routingKey", routingKey))

	channel, err := p.conn.Channel()
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to open RabbitMQ channel", slog.Any("error", err))
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	body, err := json.Marshal(payload)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to marshal event payload to JSON", slog.Any("error", err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	logCtx.DebugContext(ctx, "Publishing message", "bodySize", len(body))

	err = channel.PublishWithContext(
		ctx,
		p.exchangeName,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    uuid.NewString(),
			Body:         body,
			AppId:        publisherAppID,
		},
	)

	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to publish message to RabbitMQ", slog.Any("error", err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	logCtx.InfoContext(ctx, "Successfully published message")
	return nil
}

// NoopPublisher is used when the broker is disabled in configuration.
type NoopPublisher struct{}

var _ EventPublisher = (*NoopPublisher)(nil)

func (NoopPublisher) PublishClientRegistered(ctx context.Context, event ClientRegisteredEvent) error {
	return nil
}

func (NoopPublisher) PublishClientUpdated(ctx context.Context, event ClientUpdatedEvent) error {
	return nil
}

func (NoopPublisher) PublishLoanCreated(ctx context.Context, event LoanCreatedEvent) error {
	return nil
}

func (NoopPublisher) PublishLoanDisbursed(ctx context.Context, event LoanDisbursedEvent) error {
	return nil
}

func (NoopPublisher) PublishRepaymentRecorded(ctx context.Context, event RepaymentRecordedEvent) error {
	return nil
}
