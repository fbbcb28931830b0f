package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"account-ledger/pkg/events"
)

// Publisher is a mock events.Publisher that records what it receives.
// Set PublishFunc to inject failures or delays.
type Publisher struct {
	PublishFunc func(ctx context.Context, event events.TransactionApplied) error
	CloseFunc   func() error
	SinkName    string

	mu     sync.Mutex
	events []events.TransactionApplied

	publishCalls int64
	closeCalls   int64
}

// Publish implements events.Publisher. Events are recorded only when
// PublishFunc is unset or returns nil.
func (m *Publisher) Publish(ctx context.Context, event events.TransactionApplied) error {
	atomic.AddInt64(&m.publishCalls, 1)
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, event); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// Name implements events.Publisher.
func (m *Publisher) Name() string {
	if m.SinkName == "" {
		return "mock"
	}
	return m.SinkName
}

// Close implements events.Publisher.
func (m *Publisher) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Events returns a copy of the delivered events in delivery order.
func (m *Publisher) Events() []events.TransactionApplied {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]events.TransactionApplied, len(m.events))
	copy(out, m.events)
	return out
}

// PublishCalls returns the number of Publish calls.
func (m *Publisher) PublishCalls() int64 { return atomic.LoadInt64(&m.publishCalls) }

// CloseCalls returns the number of Close calls.
func (m *Publisher) CloseCalls() int64 { return atomic.LoadInt64(&m.closeCalls) }

var _ events.Publisher = (*Publisher)(nil)
