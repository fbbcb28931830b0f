package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers; the browser client does arithmetic on them.
	decimal.MarshalJSONWithoutQuotes = true
}

// Amount bounds. Decimal addition rescales to the smaller exponent, so both
// ends of the exponent range must be capped.
const (
	// MaxAmountScale bounds the exponent in both directions (1e-18 .. 1e18 steps)
	MaxAmountScale = 18

	// MaxAmountDigits bounds the number of significant digits
	MaxAmountDigits = 38
)

// ValidAmount reports whether amount is within MaxAmountScale and MaxAmountDigits.
func ValidAmount(amount decimal.Decimal) bool {
	exp := amount.Exponent()
	if exp < -MaxAmountScale || exp > MaxAmountScale {
		return false
	}
	return amount.NumDigits() <= MaxAmountDigits
}

// Account is a balance-bearing entity identified by an opaque id.
// Values returned by stores are copies; mutate them and hand them back via Update.
type Account struct {
	ID        string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// CanWithdraw reports whether applying amount leaves the account solvent.
// Credits and zero amounts always pass.
func (a Account) CanWithdraw(amount decimal.Decimal) bool {
	if !amount.IsNegative() {
		return true
	}
	return !a.Balance.LessThan(amount.Abs())
}

// Transaction is an immutable record of a balance change applied to one account.
type Transaction struct {
	ID        string          `json:"transaction_id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsCredit reports whether the transaction added funds.
func (t Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}
