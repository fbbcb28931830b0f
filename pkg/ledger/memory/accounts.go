package memory

import (
	"context"
	"sync"
	"time"

	"account-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// AccountStore is an in-memory ledger.AccountStore.
// All state lives in the process and is lost on restart.
type AccountStore struct {
	// accounts maps account id to the stored record
	accounts map[string]ledger.Account

	// mu protects concurrent access to accounts
	mu sync.RWMutex

	config AccountStoreConfig
	closed bool
}

// AccountStoreConfig holds configuration for the account store.
type AccountStoreConfig struct {
	// Name is the store identifier used in logs and metrics
	Name string

	// MaxAccounts caps the number of accounts (0 = unlimited)
	MaxAccounts int

	// Clock returns the creation timestamp (default: time.Now)
	Clock func() time.Time
}

// NewAccountStore creates an empty account store.
func NewAccountStore(config AccountStoreConfig) *AccountStore {
	if config.Name == "" {
		config.Name = "accounts"
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &AccountStore{
		accounts: make(map[string]ledger.Account),
		config:   config,
	}
}

// Create stores a new account with balance = initial.
func (s *AccountStore) Create(ctx context.Context, accountID string, initial decimal.Decimal) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.Account{}, ErrStoreClosed
	}
	if _, exists := s.accounts[accountID]; exists {
		return ledger.Account{}, ledger.ErrDuplicateAccount
	}
	if s.config.MaxAccounts > 0 && len(s.accounts) >= s.config.MaxAccounts {
		return ledger.Account{}, ErrCapacityExceeded
	}

	account := ledger.Account{
		ID:        accountID,
		Balance:   initial,
		CreatedAt: s.config.Clock(),
	}
	s.accounts[accountID] = account

	return account, nil
}

// Get returns a copy of the account.
func (s *AccountStore) Get(ctx context.Context, accountID string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ledger.Account{}, ErrStoreClosed
	}
	account, exists := s.accounts[accountID]
	if !exists {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

// Update replaces the balance of an existing account. The stored creation
// timestamp is kept regardless of what the caller passes.
func (s *AccountStore) Update(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.Account{}, ErrStoreClosed
	}
	current, exists := s.accounts[account.ID]
	if !exists {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}

	current.Balance = account.Balance
	s.accounts[account.ID] = current

	return current, nil
}

// Ping fails once the store is closed.
func (s *AccountStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Name returns the store name.
func (s *AccountStore) Name() string {
	return s.config.Name
}

// Close drops all accounts. Further calls fail with ErrStoreClosed.
func (s *AccountStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = nil
	s.closed = true
	return nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Stats returns current store statistics.
func (s *AccountStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		Size:     len(s.accounts),
		Capacity: s.config.MaxAccounts,
	}
	if stats.Capacity == 0 {
		stats.Capacity = -1 // Unlimited
	}
	return stats
}

var _ ledger.AccountStore = (*AccountStore)(nil)
