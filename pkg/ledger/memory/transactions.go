package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"account-ledger/pkg/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store errors (local to the memory implementations)
var (
	// ErrStoreClosed is returned by any call after Close
	ErrStoreClosed = errors.New("memory: store closed")

	// ErrCapacityExceeded is returned when a configured size limit is reached
	ErrCapacityExceeded = errors.New("memory: capacity exceeded")

	// ErrDuplicateID is returned when the id generator repeats itself
	ErrDuplicateID = errors.New("memory: duplicate transaction id")
)

// StoreStats holds store statistics.
type StoreStats struct {
	Size     int // Current number of records
	Capacity int // Effective capacity (-1 = unlimited)
}

// TransactionLedger is an in-memory, append-only ledger.TransactionLedger.
type TransactionLedger struct {
	// log holds transactions in insertion order
	log []ledger.Transaction

	// index maps transaction id to its position in log
	index map[string]int

	mu     sync.RWMutex
	config TransactionLedgerConfig
	closed bool
}

// TransactionLedgerConfig holds configuration for the transaction ledger.
type TransactionLedgerConfig struct {
	// Name is the ledger identifier used in logs and metrics
	Name string

	// MaxTransactions caps the log length (0 = unlimited)
	MaxTransactions int

	// NewID generates transaction ids (default: random UUID v4)
	NewID func() string

	// Clock returns the creation timestamp (default: time.Now)
	Clock func() time.Time
}

// NewTransactionLedger creates an empty ledger.
func NewTransactionLedger(config TransactionLedgerConfig) *TransactionLedger {
	if config.Name == "" {
		config.Name = "transactions"
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &TransactionLedger{
		log:    make([]ledger.Transaction, 0),
		index:  make(map[string]int),
		config: config,
	}
}

// Append records a transaction at the end of the log.
func (l *TransactionLedger) Append(ctx context.Context, accountID string, amount decimal.Decimal) (ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ledger.Transaction{}, ErrStoreClosed
	}
	if l.config.MaxTransactions > 0 && len(l.log) >= l.config.MaxTransactions {
		return ledger.Transaction{}, ErrCapacityExceeded
	}

	tx := ledger.Transaction{
		ID:        l.config.NewID(),
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: l.config.Clock(),
	}
	if _, dup := l.index[tx.ID]; dup {
		return ledger.Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
	}

	l.index[tx.ID] = len(l.log)
	l.log = append(l.log, tx)

	return tx, nil
}

// Get returns a transaction by id.
func (l *TransactionLedger) Get(ctx context.Context, transactionID string) (ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Transaction{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ledger.Transaction{}, ErrStoreClosed
	}
	pos, exists := l.index[transactionID]
	if !exists {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return l.log[pos], nil
}

// List returns a snapshot of the log in creation order. Appends made after
// the call are not reflected in the returned slice.
func (l *TransactionLedger) List(ctx context.Context) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrStoreClosed
	}
	out := make([]ledger.Transaction, len(l.log))
	copy(out, l.log)
	return out, nil
}

// Ping fails once the ledger is closed.
func (l *TransactionLedger) Ping(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrStoreClosed
	}
	return nil
}

// Name returns the ledger name.
func (l *TransactionLedger) Name() string {
	return l.config.Name
}

// Close drops the log. Further calls fail with ErrStoreClosed.
func (l *TransactionLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.log = nil
	l.index = nil
	l.closed = true
	return nil
}

// Len returns the number of recorded transactions.
func (l *TransactionLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.log)
}

// Stats returns current ledger statistics.
func (l *TransactionLedger) Stats() StoreStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := StoreStats{
		Size:     len(l.log),
		Capacity: l.config.MaxTransactions,
	}
	if stats.Capacity == 0 {
		stats.Capacity = -1
	}
	return stats
}

var _ ledger.TransactionLedger = (*TransactionLedger)(nil)
