package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
)

// AccountRegistry owns account creation and lookup.
type AccountRegistry struct {
	store   ledger.Store
	audit   *audit.AuditLogger
	metrics metrics.MetricsCollector
}

func NewAccountRegistry(store ledger.Store, auditLogger *audit.AuditLogger, collector metrics.MetricsCollector) *AccountRegistry {
	return &AccountRegistry{
		store:   store,
		audit:   auditLogger,
		metrics: collector,
	}
}

// CreateAccount registers a new account with zeroed totals. A second create
// for the same id fails with ledger.ErrAccountExists and changes nothing.
func (r *AccountRegistry) CreateAccount(ctx context.Context, id uint64, ledgerID uint32, code uint16) (models.Account, error) {
	if id == 0 {
		return models.Account{}, fmt.Errorf("%w: id must not be zero", ledger.ErrInvalidAccount)
	}
	if ledgerID == 0 {
		return models.Account{}, fmt.Errorf("%w: ledger must not be zero", ledger.ErrInvalidAccount)
	}

	account, err := r.store.InsertAccount(ctx, models.Account{
		ID:     id,
		Ledger: ledgerID,
		Code:   code,
	})
	if err != nil {
		return models.Account{}, err
	}

	r.audit.LogAccountCreated(account)
	r.metrics.RecordAccountCreated(account.Ledger)
	return account, nil
}

// EnsureAccount creates the account or returns the existing one. An existing
// account on a different ledger is reported as ledger.ErrLedgerMismatch.
func (r *AccountRegistry) EnsureAccount(ctx context.Context, id uint64, ledgerID uint32, code uint16) (models.Account, error) {
	account, err := r.CreateAccount(ctx, id, ledgerID, code)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ledger.ErrAccountExists) {
		return models.Account{}, err
	}

	account, err = r.store.LookupAccount(ctx, id)
	if err != nil {
		return models.Account{}, err
	}
	if account.Ledger != ledgerID {
		return models.Account{}, fmt.Errorf("%w: account %d is on ledger %d, not %d",
			ledger.ErrLedgerMismatch, id, account.Ledger, ledgerID)
	}
	return account, nil
}

func (r *AccountRegistry) GetAccount(ctx context.Context, id uint64) (models.Account, error) {
	return r.store.LookupAccount(ctx, id)
}

// ListAccounts returns every account in creation order.
func (r *AccountRegistry) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return r.store.ListAccounts(ctx)
}
