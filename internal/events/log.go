package events

import (
	"context"
	"log/slog"
)

// LogPublisher logs events instead of publishing them. Used when no NATS
// URL is configured (single-process development setups).
type LogPublisher struct {
	logger *slog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishOrderPlaced(ctx context.Context, event OrderPlaced) error {
	p.logger.Info("event bus disabled, dropping event",
		"subject", SubjectOrderPlaced,
		"event_id", event.EventID,
		"order_id", event.OrderID,
	)
	return nil
}

func (p *LogPublisher) PublishPaymentConfirmed(ctx context.Context, event PaymentConfirmed) error {
	p.logger.Info("event bus disabled, dropping event",
		"subject", SubjectPaymentConfirmed,
		"event_id", event.EventID,
		"order_id", event.OrderID,
	)
	return nil
}
