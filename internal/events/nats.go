package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes order lifecycle events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// Compile-time check that NATSPublisher implements Publisher.
var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a publisher over an established NATS connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// PublishOrderPlaced publishes an order-placed event.
func (p *NATSPublisher) PublishOrderPlaced(ctx context.Context, event OrderPlaced) error {
	return p.publish(SubjectOrderPlaced, event)
}

// PublishPaymentConfirmed publishes a payment-confirmed event.
func (p *NATSPublisher) PublishPaymentConfirmed(ctx context.Context, event PaymentConfirmed) error {
	return p.publish(SubjectPaymentConfirmed, event)
}

func (p *NATSPublisher) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", subject, err)
	}
	return nil
}
