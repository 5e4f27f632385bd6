package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification subjects. The email worker subscribes to these; nothing
// else in the order lifecycle publishes. Fulfillment transitions are
// deliberately silent: only order placement and payment confirmation
// notify the customer.
const (
	SubjectOrderPlaced      = "orders.placed"
	SubjectPaymentConfirmed = "orders.payment_confirmed"
)

// LineItem is the event representation of an order line.
type LineItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int32     `json:"quantity"`
}

// OrderPlaced is published after an order is durably persisted. Delivery
// is best-effort: a publish failure never rolls back the order.
type OrderPlaced struct {
	EventID       string     `json:"event_id"`
	OrderID       uuid.UUID  `json:"order_id"`
	UserID        uuid.UUID  `json:"user_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Items         []LineItem `json:"items"`
	TotalCents    int64      `json:"total_cents"`
	PaymentMethod string     `json:"payment_method"`
	PlacedAt      time.Time  `json:"placed_at"`
}

// PaymentConfirmed is published after a payment-status change to paid has
// committed. Repeated confirmations of an already-paid order do not
// publish again.
type PaymentConfirmed struct {
	EventID         string    `json:"event_id"`
	OrderID         uuid.UUID `json:"order_id"`
	UserID          uuid.UUID `json:"user_id"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	TotalCents      int64     `json:"total_cents"`
	PaymentMethod   string    `json:"payment_method"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// Publisher emits order lifecycle events for the notification collaborator.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlaced) error
	PublishPaymentConfirmed(ctx context.Context, event PaymentConfirmed) error
}

// NewEventID returns a unique identifier for correlating an event across
// logs and the worker.
func NewEventID() string {
	return uuid.New().String()
}
