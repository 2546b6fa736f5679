package ledger

import "errors"

// Business rejections. They are expected outcomes and must not be retried
// automatically, with the exception of the duplicate guards which callers may
// treat as "already applied".
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrDuplicateTransfer = errors.New("transfer already posted")
	ErrInvalidTransfer   = errors.New("invalid transfer")
	ErrLedgerMismatch    = errors.New("ledger mismatch")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ErrStorageUnavailable marks faults of the underlying store. It is the only
// error class that is safe to retry.
var ErrStorageUnavailable = errors.New("storage unavailable")

// IsRejection reports whether err is a business-rule outcome rather than a
// system fault.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrDuplicateTransfer),
		errors.Is(err, ErrInvalidTransfer),
		errors.Is(err, ErrLedgerMismatch),
		errors.Is(err, ErrInsufficientFunds):
		return true
	}
	return false
}

// IsRetryable reports whether err came from the storage layer.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Reason returns a short, stable label for err, used in metrics and audit
// events.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrDuplicateTransfer):
		return "duplicate_transfer"
	case errors.Is(err, ErrInvalidTransfer):
		return "invalid_transfer"
	case errors.Is(err, ErrLedgerMismatch):
		return "ledger_mismatch"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
