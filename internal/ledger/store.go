package ledger

import (
	"context"

	"github.com/ruralpay/ledger/internal/models"
)

// Store persists accounts and the append-only transfer log.
//
// Implementations return ErrAccountNotFound / ErrAccountExists /
// ErrDuplicateTransfer for the matching conditions and wrap every other
// failure with ErrStorageUnavailable.
type Store interface {
	InsertAccount(ctx context.Context, account models.Account) (models.Account, error)
	LookupAccount(ctx context.Context, id uint64) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// AccountTransfers returns transfers matching filter, newest first.
	AccountTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error)

	// InTx runs fn as one atomic unit that may lock the given accounts. If fn
	// returns an error nothing it did is visible.
	InTx(ctx context.Context, accountIDs []uint64, fn func(tx Tx) error) error
}

// Tx is the mutation surface available inside Store.InTx.
type Tx interface {
	TransferExists(ctx context.Context, id uint64) (bool, error)

	// LockAccount returns the account and holds it until the unit ends.
	// Callers lock accounts in ascending id order.
	LockAccount(ctx context.Context, id uint64) (models.Account, error)

	// ApplyTransfer assigns the transfer's timestamp, increments the debit
	// leg's debits_posted and the credit leg's credits_posted, and appends the
	// row to the log.
	ApplyTransfer(ctx context.Context, transfer models.Transfer) (models.Transfer, error)
}
