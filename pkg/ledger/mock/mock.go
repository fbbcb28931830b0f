package mock

import (
	"context"
	"sync/atomic"

	"account-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// AccountStore is a mock ledger.AccountStore for testing.
// Set the function hooks to customize behavior; unset hooks return zero values.
type AccountStore struct {
	CreateFunc func(ctx context.Context, accountID string, initial decimal.Decimal) (ledger.Account, error)
	GetFunc    func(ctx context.Context, accountID string) (ledger.Account, error)
	UpdateFunc func(ctx context.Context, account ledger.Account) (ledger.Account, error)
	PingFunc   func(ctx context.Context) error

	createCalls int64
	getCalls    int64
	updateCalls int64
}

// Create implements ledger.AccountStore.
func (m *AccountStore) Create(ctx context.Context, accountID string, initial decimal.Decimal) (ledger.Account, error) {
	atomic.AddInt64(&m.createCalls, 1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, accountID, initial)
	}
	return ledger.Account{ID: accountID, Balance: initial}, nil
}

// Get implements ledger.AccountStore.
func (m *AccountStore) Get(ctx context.Context, accountID string) (ledger.Account, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, accountID)
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

// Update implements ledger.AccountStore.
func (m *AccountStore) Update(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	atomic.AddInt64(&m.updateCalls, 1)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, account)
	}
	return account, nil
}

// Ping reports health through PingFunc when set.
func (m *AccountStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Name implements ledger.AccountStore.
func (m *AccountStore) Name() string { return "mock-accounts" }

// Close implements ledger.AccountStore.
func (m *AccountStore) Close() error { return nil }

// CreateCalls returns the number of Create calls.
func (m *AccountStore) CreateCalls() int64 { return atomic.LoadInt64(&m.createCalls) }

// GetCalls returns the number of Get calls.
func (m *AccountStore) GetCalls() int64 { return atomic.LoadInt64(&m.getCalls) }

// UpdateCalls returns the number of Update calls.
func (m *AccountStore) UpdateCalls() int64 { return atomic.LoadInt64(&m.updateCalls) }

// TransactionLedger is a mock ledger.TransactionLedger for testing.
type TransactionLedger struct {
	AppendFunc func(ctx context.Context, accountID string, amount decimal.Decimal) (ledger.Transaction, error)
	GetFunc    func(ctx context.Context, transactionID string) (ledger.Transaction, error)
	ListFunc   func(ctx context.Context) ([]ledger.Transaction, error)

	appendCalls int64
	getCalls    int64
	listCalls   int64
}

// Append implements ledger.TransactionLedger.
func (m *TransactionLedger) Append(ctx context.Context, accountID string, amount decimal.Decimal) (ledger.Transaction, error) {
	atomic.AddInt64(&m.appendCalls, 1)
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, accountID, amount)
	}
	return ledger.Transaction{AccountID: accountID, Amount: amount}, nil
}

// Get implements ledger.TransactionLedger.
func (m *TransactionLedger) Get(ctx context.Context, transactionID string) (ledger.Transaction, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, transactionID)
	}
	return ledger.Transaction{}, ledger.ErrTransactionNotFound
}

// List implements ledger.TransactionLedger.
func (m *TransactionLedger) List(ctx context.Context) ([]ledger.Transaction, error) {
	atomic.AddInt64(&m.listCalls, 1)
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

// Name implements ledger.TransactionLedger.
func (m *TransactionLedger) Name() string { return "mock-transactions" }

// Close implements ledger.TransactionLedger.
func (m *TransactionLedger) Close() error { return nil }

// AppendCalls returns the number of Append calls.
func (m *TransactionLedger) AppendCalls() int64 { return atomic.LoadInt64(&m.appendCalls) }

// GetCalls returns the number of Get calls.
func (m *TransactionLedger) GetCalls() int64 { return atomic.LoadInt64(&m.getCalls) }

// ListCalls returns the number of List calls.
func (m *TransactionLedger) ListCalls() int64 { return atomic.LoadInt64(&m.listCalls) }

var (
	_ ledger.AccountStore      = (*AccountStore)(nil)
	_ ledger.TransactionLedger = (*TransactionLedger)(nil)
)
