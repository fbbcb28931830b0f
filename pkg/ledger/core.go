package ledger

import (
	"context"
	"time"

	"account-ledger/pkg/logging"
	"account-ledger/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CoreConfig configures the ledger core.
type CoreConfig struct {
	// StrictOpening rejects implicit account creation with a negative amount.
	// When false (the default) a debit against an unknown account opens it
	// with a negative balance.
	StrictOpening bool

	// Observer is notified after every applied transaction (optional).
	Observer Observer

	// Metrics collector (optional)
	Metrics metrics.MetricsCollector

	// Logger (optional, falls back to the global logger)
	Logger *logging.Logger
}

// Core applies transactions to account balances. It is the only component
// that mutates an account balance.
type Core struct {
	accounts AccountStore
	ledger   TransactionLedger
	locks    *accountLocks
	config   CoreConfig
	observer Observer
	metrics  metrics.MetricsCollector
	logger   *logging.Logger
}

// NewCore wires the core to its stores.
func NewCore(accounts AccountStore, ledger TransactionLedger, config CoreConfig) *Core {
	c := &Core{
		accounts: accounts,
		ledger:   ledger,
		locks:    newAccountLocks(),
		config:   config,
		observer: config.Observer,
		metrics:  config.Metrics,
		logger:   config.Logger,
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if c.metrics == nil {
		c.metrics = metrics.NoOpCollector{}
	}
	if c.logger == nil {
		c.logger = logging.L().Named("ledger")
	}
	return c
}

// Apply applies a signed amount to accountID and records the transaction.
//
// An unknown account is created with balance = amount. For a known account a
// debit larger than the balance fails with ErrInsufficientFunds and leaves
// both stores untouched. Store failures are returned as KindInternal; a
// failure after the balance update does not roll the update back.
func (c *Core) Apply(ctx context.Context, accountID string, amount decimal.Decimal) (Transaction, error) {
	const op = "ledger.apply"
	start := time.Now()

	if accountID == "" {
		return Transaction{}, Validation(op, ErrInvalidAccountID, "account_id is empty")
	}
	if !ValidAmount(amount) {
		return Transaction{}, Validation(op, ErrInvalidAmount, "amount is out of range")
	}

	unlock := c.locks.lock(accountID)
	defer unlock()

	account, opened, err := c.settle(ctx, accountID, amount)
	if err != nil {
		c.recordApply(err, start)
		c.logger.Debug("transaction not applied",
			zap.String("account_id", accountID),
			zap.Stringer("amount", amount),
			zap.String("reason", ClassifyError(err)),
			zap.Error(err),
		)
		return Transaction{}, err
	}

	// The balance is committed; recording it must not depend on the caller
	// still waiting.
	ctx = context.WithoutCancel(ctx)

	tx, err := c.timedAppend(ctx, accountID, amount)
	if err != nil {
		err = E(KindInternal, op, err)
		c.recordApply(err, start)
		c.logger.Error("balance updated but transaction append failed",
			zap.String("account_id", accountID),
			zap.Stringer("amount", amount),
			zap.Error(err),
		)
		return Transaction{}, err
	}

	c.observer.TransactionApplied(ctx, tx, account, opened)
	c.recordApply(nil, start)

	c.logger.Info("transaction applied",
		zap.String("transaction_id", tx.ID),
		zap.String("account_id", accountID),
		zap.Stringer("amount", amount),
		zap.Stringer("balance", account.Balance),
		zap.Bool("account_opened", opened),
	)

	return tx, nil
}

// settle performs the balance half of Apply. Caller holds the account lock.
func (c *Core) settle(ctx context.Context, accountID string, amount decimal.Decimal) (Account, bool, error) {
	const op = "ledger.apply"

	account, err := c.timedGet(ctx, accountID)
	switch {
	case err == nil:
	case IsNotFound(err):
		if c.config.StrictOpening && amount.IsNegative() {
			return Account{}, false, E(KindInsufficientFunds, op, ErrInsufficientFunds)
		}
		account, err = c.timedCreate(ctx, accountID, amount)
		if err != nil {
			return Account{}, false, E(KindInternal, op, err)
		}
		c.metrics.RecordAccountOpened(true)
		return account, true, nil
	default:
		return Account{}, false, E(KindInternal, op, err)
	}

	if !account.CanWithdraw(amount) {
		return Account{}, false, E(KindInsufficientFunds, op, ErrInsufficientFunds)
	}

	account.Balance = account.Balance.Add(amount)
	account, err = c.timedUpdate(ctx, account)
	if err != nil {
		return Account{}, false, E(KindInternal, op, err)
	}
	return account, false, nil
}

// CreateAccount explicitly opens an account with an initial balance.
func (c *Core) CreateAccount(ctx context.Context, accountID string, amount decimal.Decimal) (Account, error) {
	const op = "ledger.create_account"

	if accountID == "" {
		return Account{}, Validation(op, ErrInvalidAccountID, "account_id is empty")
	}
	if !ValidAmount(amount) {
		return Account{}, Validation(op, ErrInvalidAmount, "amount is out of range")
	}

	unlock := c.locks.lock(accountID)
	defer unlock()

	account, err := c.timedCreate(ctx, accountID, amount)
	if err != nil {
		if IsConflict(err) {
			return Account{}, E(KindConflict, op, err)
		}
		return Account{}, E(KindInternal, op, err)
	}
	c.metrics.RecordAccountOpened(false)

	c.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.Stringer("balance", account.Balance),
	)
	return account, nil
}

// Account returns the current state of an account.
func (c *Core) Account(ctx context.Context, accountID string) (Account, error) {
	const op = "ledger.account"

	account, err := c.timedGet(ctx, accountID)
	if err != nil {
		if IsNotFound(err) {
			return Account{}, E(KindNotFound, op, err)
		}
		return Account{}, E(KindInternal, op, err)
	}
	return account, nil
}

// Transaction returns a recorded transaction.
func (c *Core) Transaction(ctx context.Context, transactionID string) (Transaction, error) {
	const op = "ledger.transaction"

	tx, err := c.ledger.Get(ctx, transactionID)
	if err != nil {
		if IsNotFound(err) {
			return Transaction{}, E(KindNotFound, op, err)
		}
		return Transaction{}, E(KindInternal, op, err)
	}
	return tx, nil
}

// Transactions returns every transaction in creation order.
func (c *Core) Transactions(ctx context.Context) ([]Transaction, error) {
	txs, err := c.ledger.List(ctx)
	if err != nil {
		return nil, E(KindInternal, "ledger.transactions", err)
	}
	return txs, nil
}

// Ping reports whether the stores can serve requests.
func (c *Core) Ping(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}

	for _, s := range []interface{}{c.accounts, c.ledger} {
		if p, ok := s.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return E(KindInternal, "ledger.ping", err)
			}
		}
	}
	return ctx.Err()
}

func (c *Core) recordApply(err error, start time.Time) {
	outcome := metrics.OutcomeApplied
	switch KindOf(err) {
	case KindNone:
	case KindInsufficientFunds, KindValidation:
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeFailed
	}
	c.metrics.RecordApply(outcome, time.Since(start))
}

func (c *Core) timedGet(ctx context.Context, accountID string) (Account, error) {
	start := time.Now()
	account, err := c.accounts.Get(ctx, accountID)
	c.metrics.RecordStoreOp(c.accounts.Name(), "get", err == nil || IsNotFound(err), time.Since(start))
	return account, err
}

func (c *Core) timedCreate(ctx context.Context, accountID string, amount decimal.Decimal) (Account, error) {
	start := time.Now()
	account, err := c.accounts.Create(ctx, accountID, amount)
	c.metrics.RecordStoreOp(c.accounts.Name(), "create", err == nil, time.Since(start))
	return account, err
}

func (c *Core) timedUpdate(ctx context.Context, account Account) (Account, error) {
	start := time.Now()
	account, err := c.accounts.Update(ctx, account)
	c.metrics.RecordStoreOp(c.accounts.Name(), "update", err == nil, time.Since(start))
	return account, err
}

func (c *Core) timedAppend(ctx context.Context, accountID string, amount decimal.Decimal) (Transaction, error) {
	start := time.Now()
	tx, err := c.ledger.Append(ctx, accountID, amount)
	c.metrics.RecordStoreOp(c.ledger.Name(), "append", err == nil, time.Since(start))
	return tx, err
}
