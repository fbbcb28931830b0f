package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountStore holds account records keyed by id.
type AccountStore interface {
	// Create stores a new account with balance = initial.
	// Returns ErrDuplicateAccount if the id is already present.
	Create(ctx context.Context, accountID string, initial decimal.Decimal) (Account, error)

	// Get returns a copy of the account or ErrAccountNotFound.
	Get(ctx context.Context, accountID string) (Account, error)

	// Update replaces the stored record for account.ID.
	// Returns ErrAccountNotFound if no record exists.
	Update(ctx context.Context, account Account) (Account, error)

	// Name identifies the store in logs and metrics.
	Name() string

	// Close releases any resources held by the store.
	Close() error
}

// TransactionLedger is an append-only, ordered log of transactions.
type TransactionLedger interface {
	// Append records a new transaction with a fresh id and timestamp.
	Append(ctx context.Context, accountID string, amount decimal.Decimal) (Transaction, error)

	// Get returns the transaction or ErrTransactionNotFound.
	Get(ctx context.Context, transactionID string) (Transaction, error)

	// List returns all transactions in creation order.
	List(ctx context.Context) ([]Transaction, error)

	// Name identifies the ledger in logs and metrics.
	Name() string

	// Close releases any resources held by the ledger.
	Close() error
}

// Observer is notified after a transaction has been applied and recorded.
// Implementations must not block; the core calls them while holding the
// account lock.
type Observer interface {
	TransactionApplied(ctx context.Context, tx Transaction, account Account, opened bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, tx Transaction, account Account, opened bool)

// TransactionApplied calls f.
func (f ObserverFunc) TransactionApplied(ctx context.Context, tx Transaction, account Account, opened bool) {
	f(ctx, tx, account, opened)
}

type noopObserver struct{}

func (noopObserver) TransactionApplied(context.Context, Transaction, Account, bool) {}
