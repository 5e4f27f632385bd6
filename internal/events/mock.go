package events

import (
	"context"
	"sync"
)

// MockPublisher is a test implementation of Publisher. It records every
// event and optionally delegates to configurable functions to simulate
// publish failures.
type MockPublisher struct {
	mu sync.Mutex

	PlacedEvents    []OrderPlaced
	ConfirmedEvents []PaymentConfirmed

	PublishOrderPlacedFunc      func(ctx context.Context, event OrderPlaced) error
	PublishPaymentConfirmedFunc func(ctx context.Context, event PaymentConfirmed) error
}

var _ Publisher = (*MockPublisher)(nil)

// NewMockPublisher creates a mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishOrderPlaced(ctx context.Context, event OrderPlaced) error {
	m.mu.Lock()
	m.PlacedEvents = append(m.PlacedEvents, event)
	m.mu.Unlock()

	if m.PublishOrderPlacedFunc != nil {
		return m.PublishOrderPlacedFunc(ctx, event)
	}
	return nil
}

func (m *MockPublisher) PublishPaymentConfirmed(ctx context.Context, event PaymentConfirmed) error {
	m.mu.Lock()
	m.ConfirmedEvents = append(m.ConfirmedEvents, event)
	m.mu.Unlock()

	if m.PublishPaymentConfirmedFunc != nil {
		return m.PublishPaymentConfirmedFunc(ctx, event)
	}
	return nil
}
