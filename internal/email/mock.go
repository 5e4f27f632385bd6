package email

import (
	"context"
	"fmt"
	"sync"
)

// MockSender is a test implementation of Sender. It records every sent
// email and can be configured to fail.
type MockSender struct {
	mu   sync.Mutex
	Sent []*Email

	// SendFunc, when set, overrides the default behavior.
	SendFunc func(ctx context.Context, email *Email) (string, error)
}

var _ Sender = (*MockSender)(nil)

// NewMockSender creates a mock sender for testing.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send records the email and returns a synthetic message ID.
func (m *MockSender) Send(ctx context.Context, email *Email) (string, error) {
	m.mu.Lock()
	m.Sent = append(m.Sent, email)
	n := len(m.Sent)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, email)
	}
	return fmt.Sprintf("mock-%d", n), nil
}

// SentCount returns how many emails have been sent.
func (m *MockSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
