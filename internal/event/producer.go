package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/Christian112b/InonicApp/pkg/kafka"
	"github.com/Christian112b/InonicApp/pkg/logger"
)

// Kafka topic constants for checkout outcome events.
const (
	TopicCheckoutCompleted = "storefront.checkout.completed"
	TopicCheckoutFailed    = "storefront.checkout.failed"
)

// Aggregate type constant.
const AggregateTypePayment = "payment"

// Source identifier for events originating from the storefront.
const SourceStorefront = "storefront"

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	PaymentID   string `json:"payment_id"`
	UserID      string `json:"user_id,omitempty"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	CouponID    int64  `json:"coupon_id,omitempty"`
	AddressID   int64  `json:"address_id,omitempty"`
	Items       int    `json:"items"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	UserID        string `json:"user_id,omitempty"`
	Method        string `json:"method"`
	AmountMinor   int64  `json:"amount_minor"`
	Stage         string `json:"stage"`
	FailureReason string `json:"failure_reason"`
}

// Publisher emits checkout outcome events.
type Publisher interface {
	PublishCheckoutCompleted(ctx context.Context, data CheckoutCompletedData) error
	PublishCheckoutFailed(ctx context.Context, data CheckoutFailedData) error
}

// Producer publishes checkout events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the storefront.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutCompleted publishes a checkout.completed event keyed by the
// payment id.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, data CheckoutCompletedData) error {
	event, err := pkgkafka.NewEvent(TopicCheckoutCompleted, data.PaymentID, AggregateTypePayment, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create checkout.completed event: %w", err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	if err := p.kafka.Publish(ctx, TopicCheckoutCompleted, event); err != nil {
		return fmt.Errorf("publish checkout.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.completed event",
		slog.String("payment_id", data.PaymentID),
		slog.String("method", data.Method),
	)
	return nil
}

// PublishCheckoutFailed publishes a checkout.failed event keyed by the user.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, data CheckoutFailedData) error {
	event, err := pkgkafka.NewEvent(TopicCheckoutFailed, data.UserID, AggregateTypePayment, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create checkout.failed event: %w", err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	if err := p.kafka.Publish(ctx, TopicCheckoutFailed, event); err != nil {
		return fmt.Errorf("publish checkout.failed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.failed event",
		slog.String("stage", data.Stage),
		slog.String("failure_reason", data.FailureReason),
	)
	return nil
}

// Nop drops every event. It stands in when no brokers are configured.
type Nop struct{}

func (Nop) PublishCheckoutCompleted(context.Context, CheckoutCompletedData) error { return nil }

func (Nop) PublishCheckoutFailed(context.Context, CheckoutFailedData) error { return nil }
