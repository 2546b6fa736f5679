package services

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"go.uber.org/zap"
)

// TransferPublisher receives every transfer after it has been committed.
type TransferPublisher interface {
	PublishTransfer(ctx context.Context, transfer models.Transfer) error
}

// TransferEngine is the only writer of posted totals.
type TransferEngine struct {
	store         ledger.Store
	bankAccountID uint64
	audit         *audit.AuditLogger
	metrics       metrics.MetricsCollector
	publisher     TransferPublisher
	logger        *logging.Logger
}

// NewTransferEngine builds an engine. bankAccountID is the issuing account,
// exempt from the funds check. publisher may be nil.
func NewTransferEngine(store ledger.Store, bankAccountID uint64, auditLogger *audit.AuditLogger, collector metrics.MetricsCollector, publisher TransferPublisher, logger *logging.Logger) *TransferEngine {
	return &TransferEngine{
		store:         store,
		bankAccountID: bankAccountID,
		audit:         auditLogger,
		metrics:       collector,
		publisher:     publisher,
		logger:        logger.Named("transfer_engine"),
	}
}

// PostTransfer validates req and, if it passes, applies both legs and appends
// the transfer to the log as one unit. Validation runs in this order, first
// failure wins:
//
//  1. id already posted        -> ledger.ErrDuplicateTransfer
//  2. either account missing   -> ledger.ErrAccountNotFound
//  3. debit == credit          -> ledger.ErrInvalidTransfer
//  4. ledgers differ           -> ledger.ErrLedgerMismatch
//  5. amount == 0              -> ledger.ErrInvalidTransfer
//  6. debit would go negative  -> ledger.ErrInsufficientFunds (issuing account exempt)
//
// A rejected request leaves accounts and log untouched.
func (e *TransferEngine) PostTransfer(ctx context.Context, req models.TransferRequest) (models.Transfer, error) {
	start := time.Now()

	transfer, err := e.post(ctx, req)
	if err != nil {
		reason := ledger.Reason(err)
		e.metrics.RecordTransferRejected(reason, time.Since(start))
		if ledger.IsRejection(err) {
			e.audit.LogRejection(req, reason, err)
		} else {
			e.logger.Error("post transfer failed",
				zap.Uint64("transfer_id", req.ID),
				zap.Uint64("debit_account_id", req.DebitAccountID),
				zap.Uint64("credit_account_id", req.CreditAccountID),
				zap.Error(err),
			)
		}
		return models.Transfer{}, err
	}

	e.metrics.RecordTransferPosted(transfer.Ledger, transfer.Amount, time.Since(start))
	e.audit.LogTransfer(transfer)

	if e.publisher != nil {
		if err := e.publisher.PublishTransfer(ctx, transfer); err != nil {
			e.logger.Warn("failed to publish transfer",
				zap.Uint64("transfer_id", transfer.ID),
				zap.Error(err),
			)
		}
	}
	return transfer, nil
}

func (e *TransferEngine) post(ctx context.Context, req models.TransferRequest) (models.Transfer, error) {
	if req.ID == 0 {
		return models.Transfer{}, fmt.Errorf("%w: id must not be zero", ledger.ErrInvalidTransfer)
	}
	if err := ctx.Err(); err != nil {
		return models.Transfer{}, err
	}

	var posted models.Transfer
	err := e.store.InTx(ctx, []uint64{req.DebitAccountID, req.CreditAccountID}, func(tx ledger.Tx) error {
		// Duplicates are checked under the account locks so a retry queued
		// behind its original sees the committed row.
		debit, credit, lockErr := lockPair(ctx, tx, req.DebitAccountID, req.CreditAccountID)
		if lockErr != nil && !errors.Is(lockErr, ledger.ErrAccountNotFound) {
			return lockErr
		}

		exists, err := tx.TransferExists(ctx, req.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %d", ledger.ErrDuplicateTransfer, req.ID)
		}
		if lockErr != nil {
			return lockErr
		}

		if err := e.validate(req, debit, credit); err != nil {
			return err
		}

		posted, err = tx.ApplyTransfer(ctx, models.Transfer{
			ID:              req.ID,
			DebitAccountID:  debit.ID,
			CreditAccountID: credit.ID,
			Amount:          req.Amount,
			Ledger:          debit.Ledger,
			Code:            req.Code,
		})
		return err
	})
	if err != nil {
		return models.Transfer{}, err
	}
	return posted, nil
}

// lockPair locks both accounts in ascending id order so two postings over the
// same pair can never deadlock.
func lockPair(ctx context.Context, tx ledger.Tx, debitID, creditID uint64) (models.Account, models.Account, error) {
	firstLock, secondLock := debitID, creditID
	if firstLock > secondLock {
		firstLock, secondLock = secondLock, firstLock
	}

	first, err := tx.LockAccount(ctx, firstLock)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	if firstLock == secondLock {
		return first, first, nil
	}

	second, err := tx.LockAccount(ctx, secondLock)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}

	if firstLock != debitID {
		first, second = second, first
	}
	return first, second, nil
}

func (e *TransferEngine) validate(req models.TransferRequest, debit, credit models.Account) error {
	if debit.ID == credit.ID {
		return fmt.Errorf("%w: debit and credit account are both %d", ledger.ErrInvalidTransfer, debit.ID)
	}
	if debit.Ledger != credit.Ledger {
		return fmt.Errorf("%w: account %d is on ledger %d, account %d on ledger %d",
			ledger.ErrLedgerMismatch, debit.ID, debit.Ledger, credit.ID, credit.Ledger)
	}
	if req.Ledger != 0 && req.Ledger != debit.Ledger {
		return fmt.Errorf("%w: transfer ledger %d, accounts on ledger %d",
			ledger.ErrLedgerMismatch, req.Ledger, debit.Ledger)
	}
	if req.Amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidTransfer)
	}

	debits, carry := bits.Add64(debit.DebitsPosted, debit.DebitsPending, 0)
	if carry == 0 {
		debits, carry = bits.Add64(debits, req.Amount, 0)
	}
	if debit.ID != e.bankAccountID && (carry != 0 || debits > debit.CreditsPosted) {
		return fmt.Errorf("%w: account %d", ledger.ErrInsufficientFunds, debit.ID)
	}
	if carry != 0 {
		return fmt.Errorf("%w: debits of account %d would overflow", ledger.ErrInvalidTransfer, debit.ID)
	}

	credits, carry := bits.Add64(credit.CreditsPosted, credit.CreditsPending, 0)
	if carry == 0 {
		_, carry = bits.Add64(credits, req.Amount, 0)
	}
	if carry != 0 {
		return fmt.Errorf("%w: credits of account %d would overflow", ledger.ErrInvalidTransfer, credit.ID)
	}
	return nil
}
