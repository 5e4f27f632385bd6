package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/waveforge/storefront/internal/email"
	"github.com/waveforge/storefront/internal/events"
	"github.com/waveforge/storefront/internal/telemetry"
)

// Mailer is the slice of the email service the worker needs.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, data email.OrderConfirmationEmail) error
	SendPaymentReceipt(ctx context.Context, data email.PaymentReceiptEmail) error
}

var _ Mailer = (*email.Service)(nil)

// Config holds notification worker configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// Queue is the NATS queue group. Workers in the same group share the
	// subscription, so each event is delivered to exactly one of them.
	Queue string

	// SendTimeout bounds a single email delivery
	SendTimeout time.Duration
}

// Worker consumes order lifecycle events and sends customer notifications.
// Delivery is best-effort: a failed send is logged and counted, never
// retried against the order state.
type Worker struct {
	config  Config
	conn    *nats.Conn
	mailer  Mailer
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger

	subs []*nats.Subscription
}

// NewWorker creates a new notification worker
func NewWorker(conn *nats.Conn, mailer Mailer, metrics *telemetry.BusinessMetrics, config Config, logger *slog.Logger) *Worker {
	// Set defaults
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.Queue == "" {
		config.Queue = "storefront-notifications"
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = 30 * time.Second
	}

	return &Worker{
		config:  config,
		conn:    conn,
		mailer:  mailer,
		metrics: metrics,
		logger:  logger,
	}
}

// Start subscribes to the lifecycle subjects and blocks until the context
// is cancelled, then drains the subscriptions so in-flight messages finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("notification worker starting",
		"worker_id", w.config.WorkerID,
		"queue", w.config.Queue,
	)

	handlers := map[string]func(context.Context, []byte) error{
		events.SubjectOrderPlaced:      w.handleOrderPlaced,
		events.SubjectPaymentConfirmed: w.handlePaymentConfirmed,
	}

	for subject, handler := range handlers {
		subject, handler := subject, handler
		sub, err := w.conn.QueueSubscribe(subject, w.config.Queue, func(msg *nats.Msg) {
			msgCtx, cancel := context.WithTimeout(context.Background(), w.config.SendTimeout)
			defer cancel()

			if err := handler(msgCtx, msg.Data); err != nil {
				w.logger.Error("failed to process event",
					"subject", subject,
					"worker_id", w.config.WorkerID,
					"error", err,
				)
			}
		})
		if err != nil {
			w.drain()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		w.subs = append(w.subs, sub)
	}

	<-ctx.Done()
	w.logger.Info("notification worker shutting down", "worker_id", w.config.WorkerID)
	w.drain()
	return ctx.Err()
}

func (w *Worker) drain() {
	for _, sub := range w.subs {
		if err := sub.Drain(); err != nil {
			w.logger.Warn("failed to drain subscription", "subject", sub.Subject, "error", err)
		}
	}
	w.subs = nil
}

func (w *Worker) handleOrderPlaced(ctx context.Context, data []byte) error {
	var event events.OrderPlaced
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal order placed event: %w", err)
	}
	if event.CustomerEmail == "" {
		w.logger.Warn("order placed event has no customer email", "order_id", event.OrderID)
		return nil
	}

	items := make([]email.TemplateLineItem, len(event.Items))
	for i, item := range event.Items {
		items[i] = email.TemplateLineItem{
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}

	err := w.mailer.SendOrderConfirmation(ctx, email.OrderConfirmationEmail{
		Email:         event.CustomerEmail,
		CustomerName:  event.CustomerName,
		OrderID:       event.OrderID.String(),
		OrderDate:     event.PlacedAt,
		Items:         items,
		TotalCents:    event.TotalCents,
		PaymentMethod: event.PaymentMethod,
	})
	w.recordSend("order_confirmation", err)
	if err != nil {
		return fmt.Errorf("failed to send order confirmation for order %s: %w", event.OrderID, err)
	}

	w.logger.Info("sent order confirmation", "order_id", event.OrderID)
	return nil
}

func (w *Worker) handlePaymentConfirmed(ctx context.Context, data []byte) error {
	var event events.PaymentConfirmed
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal payment confirmed event: %w", err)
	}
	if event.CustomerEmail == "" {
		w.logger.Warn("payment confirmed event has no customer email", "order_id", event.OrderID)
		return nil
	}

	err := w.mailer.SendPaymentReceipt(ctx, email.PaymentReceiptEmail{
		Email:           event.CustomerEmail,
		CustomerName:    event.CustomerName,
		OrderID:         event.OrderID.String(),
		TotalCents:      event.TotalCents,
		PaymentMethod:   event.PaymentMethod,
		PaymentIntentID: event.PaymentIntentID,
		ConfirmedAt:     event.ConfirmedAt,
	})
	w.recordSend("payment_receipt", err)
	if err != nil {
		return fmt.Errorf("failed to send payment receipt for order %s: %w", event.OrderID, err)
	}

	w.logger.Info("sent payment receipt", "order_id", event.OrderID)
	return nil
}

func (w *Worker) recordSend(template string, err error) {
	if w.metrics == nil {
		return
	}
	if err != nil {
		w.metrics.EmailsFailed.WithLabelValues(template).Inc()
		return
	}
	w.metrics.EmailsSent.WithLabelValues(template).Inc()
}
