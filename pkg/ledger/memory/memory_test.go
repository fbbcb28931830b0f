package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"account-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

func TestAccountStore_CreateGet(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store := NewAccountStore(AccountStoreConfig{
		Clock: func() time.Time { return created },
	})
	ctx := context.Background()

	account, err := store.Create(ctx, "a1", decimal.NewFromInt(7))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if account.ID != "a1" || !account.Balance.Equal(decimal.NewFromInt(7)) || !account.CreatedAt.Equal(created) {
		t.Errorf("Create() = %+v", account)
	}

	got, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != account.ID || !got.Balance.Equal(account.Balance) || !got.CreatedAt.Equal(account.CreatedAt) {
		t.Errorf("Get() = %+v, want %+v", got, account)
	}

	if _, err := store.Create(ctx, "a1", decimal.Zero); !errors.Is(err, ledger.ErrDuplicateAccount) {
		t.Errorf("duplicate Create() err = %v, want ErrDuplicateAccount", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrAccountNotFound", err)
	}
	if store.Name() != "accounts" {
		t.Errorf("Name() = %q, want accounts", store.Name())
	}
}

func TestAccountStore_Update(t *testing.T) {
	store := NewAccountStore(AccountStoreConfig{})
	ctx := context.Background()

	original, _ := store.Create(ctx, "a1", decimal.NewFromInt(1))

	updated, err := store.Update(ctx, ledger.Account{ID: "a1", Balance: decimal.NewFromInt(9)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.Balance.Equal(decimal.NewFromInt(9)) {
		t.Errorf("balance = %s, want 9", updated.Balance)
	}
	if !updated.CreatedAt.Equal(original.CreatedAt) {
		t.Error("Update() must keep the creation timestamp")
	}

	if _, err := store.Update(ctx, ledger.Account{ID: "missing"}); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Update(missing) err = %v, want ErrAccountNotFound", err)
	}
}

func TestAccountStore_ReturnsCopies(t *testing.T) {
	store := NewAccountStore(AccountStoreConfig{})
	ctx := context.Background()

	account, _ := store.Create(ctx, "a1", decimal.NewFromInt(1))
	account.Balance = decimal.NewFromInt(1000)

	got, _ := store.Get(ctx, "a1")
	if !got.Balance.Equal(decimal.NewFromInt(1)) {
		t.Errorf("mutating a returned account changed the store: %s", got.Balance)
	}
}

func TestAccountStore_Capacity(t *testing.T) {
	store := NewAccountStore(AccountStoreConfig{MaxAccounts: 2})
	ctx := context.Background()

	store.Create(ctx, "a", decimal.Zero)
	store.Create(ctx, "b", decimal.Zero)
	if _, err := store.Create(ctx, "c", decimal.Zero); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}

	stats := store.Stats()
	if stats.Size != 2 || stats.Capacity != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
	if s := NewAccountStore(AccountStoreConfig{}).Stats(); s.Capacity != -1 {
		t.Errorf("unlimited capacity = %d, want -1", s.Capacity)
	}
}

func TestAccountStore_Closed(t *testing.T) {
	store := NewAccountStore(AccountStoreConfig{})
	ctx := context.Background()
	store.Create(ctx, "a", decimal.Zero)

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get() after close err = %v", err)
	}
	if _, err := store.Create(ctx, "b", decimal.Zero); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Create() after close err = %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Ping() after close err = %v", err)
	}
}

func TestAccountStore_ContextCanceled(t *testing.T) {
	store := NewAccountStore(AccountStoreConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Create(ctx, "a", decimal.Zero); !errors.Is(err, context.Canceled) {
		t.Errorf("Create() err = %v, want context.Canceled", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestTransactionLedger_AppendGetList(t *testing.T) {
	n := 0
	l := NewTransactionLedger(TransactionLedgerConfig{
		NewID: func() string {
			n++
			return fmt.Sprintf("tx-%d", n)
		},
	})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		tx, err := l.Append(ctx, "acc", decimal.NewFromInt(int64(i)))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if tx.ID != fmt.Sprintf("tx-%d", i) || tx.CreatedAt.IsZero() {
			t.Errorf("Append() = %+v", tx)
		}
	}

	got, err := l.Get(ctx, "tx-2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Amount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Get() amount = %s, want 2", got.Amount)
	}

	if _, err := l.Get(ctx, "nope"); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Errorf("Get(nope) err = %v, want ErrTransactionNotFound", err)
	}

	list, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for i, tx := range list {
		if tx.ID != fmt.Sprintf("tx-%d", i+1) {
			t.Errorf("List()[%d] = %s, out of order", i, tx.ID)
		}
	}
}

func TestTransactionLedger_ListIsSnapshot(t *testing.T) {
	l := NewTransactionLedger(TransactionLedgerConfig{})
	ctx := context.Background()

	l.Append(ctx, "acc", decimal.NewFromInt(1))
	snapshot, _ := l.List(ctx)

	l.Append(ctx, "acc", decimal.NewFromInt(2))
	snapshot[0].AccountID = "tampered"

	if len(snapshot) != 1 {
		t.Errorf("snapshot grew to %d", len(snapshot))
	}
	fresh, _ := l.List(ctx)
	if len(fresh) != 2 || fresh[0].AccountID != "acc" {
		t.Errorf("List() = %+v", fresh)
	}
}

func TestTransactionLedger_DuplicateID(t *testing.T) {
	l := NewTransactionLedger(TransactionLedgerConfig{
		NewID: func() string { return "same" },
	})
	ctx := context.Background()

	if _, err := l.Append(ctx, "acc", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := l.Append(ctx, "acc", decimal.NewFromInt(1)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestTransactionLedger_CapacityAndClose(t *testing.T) {
	l := NewTransactionLedger(TransactionLedgerConfig{Name: "txlog", MaxTransactions: 1})
	ctx := context.Background()

	l.Append(ctx, "acc", decimal.NewFromInt(1))
	if _, err := l.Append(ctx, "acc", decimal.NewFromInt(1)); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
	if l.Name() != "txlog" {
		t.Errorf("Name() = %q", l.Name())
	}
	if s := l.Stats(); s.Size != 1 || s.Capacity != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	l.Close()
	if _, err := l.List(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("List() after close err = %v", err)
	}
	if _, err := l.Append(ctx, "acc", decimal.NewFromInt(1)); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Append() after close err = %v", err)
	}
}

func TestTransactionLedger_ConcurrentAppend(t *testing.T) {
	l := NewTransactionLedger(TransactionLedgerConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Append(ctx, "acc", decimal.NewFromInt(1)); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}()
	}
	wg.Wait()

	list, _ := l.List(ctx)
	if len(list) != 100 {
		t.Fatalf("len(List()) = %d, want 100", len(list))
	}
	seen := make(map[string]bool, len(list))
	for _, tx := range list {
		if seen[tx.ID] {
			t.Errorf("duplicate id %s", tx.ID)
		}
		seen[tx.ID] = true
	}
}
