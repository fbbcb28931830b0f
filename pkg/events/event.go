// Package events publishes a TransactionApplied event for every transaction
// the ledger core records. Publishing is asynchronous and never fails the
// transaction that produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"account-ledger/pkg/ledger"
	"account-ledger/pkg/logging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Errors returned by dispatchers and publishers.
var (
	// ErrQueueFull is returned when the event queue stayed full for MaxWaitTime
	ErrQueueFull = errors.New("events: queue full, event dropped")

	// ErrDispatcherClosed is returned when dispatching to a closed dispatcher
	ErrDispatcherClosed = errors.New("events: dispatcher is closed")

	// ErrFlushTimeout is returned when Flush times out before the queue drains
	ErrFlushTimeout = errors.New("events: flush timeout exceeded")

	// ErrCircuitOpen is returned when a sink's circuit breaker rejects a publish
	ErrCircuitOpen = errors.New("events: circuit breaker open")

	// ErrTimeout is returned when a publish exceeds its deadline
	ErrTimeout = errors.New("events: publish timeout")

	// ErrPublisherClosed is returned by sinks after Close
	ErrPublisherClosed = errors.New("events: publisher closed")
)

// TransactionApplied is emitted once per recorded transaction.
type TransactionApplied struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	AccountOpened bool            `json:"account_opened"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewTransactionApplied builds the event for tx, with the balance it left on account.
func NewTransactionApplied(tx ledger.Transaction, account ledger.Account, opened bool) TransactionApplied {
	return TransactionApplied{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Amount:        tx.Amount,
		Balance:       account.Balance,
		AccountOpened: opened,
		OccurredAt:    tx.CreatedAt,
	}
}

// Encode returns the JSON wire form shared by all sinks.
func (e TransactionApplied) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses the JSON wire form.
func Decode(data []byte) (TransactionApplied, error) {
	var e TransactionApplied
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher delivers events to a sink.
type Publisher interface {
	// Publish delivers one event. Implementations must honor ctx cancellation.
	Publish(ctx context.Context, event TransactionApplied) error

	// Name identifies the sink in logs and metrics.
	Name() string

	// Close flushes and releases the sink.
	Close() error
}

// LogPublisher writes events to a logger. It is the default sink.
type LogPublisher struct {
	logger *logging.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses the global one.
func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.L().Named("events")
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event at info level.
func (p *LogPublisher) Publish(ctx context.Context, event TransactionApplied) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Info("transaction event",
		zap.String("transaction_id", event.TransactionID),
		zap.String("account_id", event.AccountID),
		zap.Stringer("amount", event.Amount),
		zap.Stringer("balance", event.Balance),
		zap.Bool("account_opened", event.AccountOpened),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

// Name returns "log".
func (p *LogPublisher) Name() string { return "log" }

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }

var _ Publisher = (*LogPublisher)(nil)
