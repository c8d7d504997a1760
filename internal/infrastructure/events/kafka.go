package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"trip-provider/internal/domain"
)

const (
	DefaultTopic        = "trip.orders"
	EventOrderConfirmed = "order.confirmed"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type orderConfirmed struct {
	EventType   string    `json:"eventType"`
	OrderID     string    `json:"orderId"`
	ProductType string    `json:"productType"`
	Currency    string    `json:"currency"`
	Total       string    `json:"total"`
	Fees        string    `json:"fees"`
	VoucherCode string    `json:"voucherCode"`
	InvoiceID   string    `json:"invoiceId"`
	PaymentID   string    `json:"paymentId"`
	ItineraryID string    `json:"itineraryId,omitempty"`
	Items       []string  `json:"items,omitempty"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// KafkaPublisher announces confirmed orders. Messages are keyed by order id
// so every event for one order lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	log    *zap.Logger
}

// NewKafkaPublisher returns a publisher backed by an async kafka.Writer:
// OrderConfirmed only enqueues, and delivery failures are logged when the
// batch completes.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		Async:                  true,
		AllowAutoTopicCreation: true,
	}
	p := NewPublisher(w, log)
	w.Completion = p.completed
	return p
}

func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.log.Warn("order event delivery failed", zap.String("order_id", string(m.Key)), zap.Error(err))
	}
}

func NewPublisher(w MessageWriter, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) OrderConfirmed(ctx context.Context, o *domain.Order) error {
	payload, err := json.Marshal(orderConfirmed{
		EventType:   EventOrderConfirmed,
		OrderID:     o.ID,
		ProductType: string(o.ProductType),
		Currency:    o.Currency,
		Total:       o.Total.String(),
		Fees:        o.Fees.String(),
		VoucherCode: o.VoucherCode,
		InvoiceID:   o.InvoiceID,
		PaymentID:   o.PaymentID,
		ItineraryID: o.ItineraryID,
		Items:       domain.SplitRefs(o.SelectedRefs),
		ConfirmedAt: o.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(o.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderConfirmed)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order %s: %w", o.ID, err)
	}
	p.log.Debug("order event published", zap.String("order_id", o.ID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every event. It is used when no brokers are configured.
type Noop struct{}

func (Noop) OrderConfirmed(context.Context, *domain.Order) error { return nil }

func (Noop) Close() error { return nil }
