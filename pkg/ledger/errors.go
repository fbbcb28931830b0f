package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the core and by store implementations.
var (
	// ErrAccountNotFound is returned when no account exists for an id
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrTransactionNotFound is returned when no transaction exists for an id
	ErrTransactionNotFound = errors.New("ledger: transaction not found")

	// ErrDuplicateAccount is returned when creating an account whose id is taken
	ErrDuplicateAccount = errors.New("ledger: account already exists")

	// ErrInsufficientFunds is returned when a debit exceeds the available balance
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInvalidAccountID is returned for empty or malformed account ids
	ErrInvalidAccountID = errors.New("ledger: invalid account id")

	// ErrInvalidTransactionID is returned for empty or malformed transaction ids
	ErrInvalidTransactionID = errors.New("ledger: invalid transaction id")

	// ErrInvalidAmount is returned when an amount is not a number or out of range
	ErrInvalidAmount = errors.New("ledger: invalid amount")

	// ErrMissingField is returned when a mandatory request field is absent
	ErrMissingField = errors.New("ledger: mandatory field missing")
)

// Kind classifies an error for the boundary layer.
type Kind uint8

const (
	// KindNone is reported for a nil error.
	KindNone Kind = iota
	// KindInternal covers unexpected store or infrastructure failures.
	KindInternal
	// KindValidation means the request was malformed.
	KindValidation
	// KindNotFound means the referenced account or transaction does not exist.
	KindNotFound
	// KindConflict means the account id is already taken.
	KindConflict
	// KindInsufficientFunds means a debit exceeded the balance.
	KindInsufficientFunds
)

// String returns the wire name of the kind, used as the "code" in error bodies.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientFunds:
		return "insufficient_funds"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation wraps err as a validation failure with a detail message.
func Validation(op string, err error, detail string) error {
	if detail == "" {
		return E(KindValidation, op, err)
	}
	return E(KindValidation, op, fmt.Errorf("%w: %s", err, detail))
}

// KindOf returns the Kind of err. Typed errors win; bare sentinels are mapped
// to their natural kind; anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}

	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateAccount):
		return KindConflict
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInvalidAccountID), errors.Is(err, ErrInvalidTransactionID),
		errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMissingField):
		return KindValidation
	default:
		return KindInternal
	}
}

// IsNotFound reports whether err means an unknown account or transaction.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsInsufficientFunds reports whether err is a rejected debit.
func IsInsufficientFunds(err error) bool {
	return KindOf(err) == KindInsufficientFunds
}

// IsConflict reports whether err is a duplicate account.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsValidation reports whether err is a malformed request.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// ClassifyError returns a metric label for err.
func ClassifyError(err error) string {
	return KindOf(err).String()
}
