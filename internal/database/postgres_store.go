package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/models"
)

const uniqueViolation = "23505"

// transferLogLock is the advisory lock key serializing timestamp assignment
// and commit of transfers.
const transferLogLock int64 = 0x6c6564676572

const accountColumns = `id, debits_pending, debits_posted, credits_pending, credits_posted, ledger, code, timestamp`

const transferColumns = `id, debit_account_id, credit_account_id, amount, ledger, code, timestamp`

// PostgresStore keeps accounts and transfers in postgres. Posting runs in one
// SQL transaction holding row locks on both accounts.
type PostgresStore struct {
	db *sql.DB
}

var _ ledger.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertAccount(ctx context.Context, account models.Account) (models.Account, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, debits_pending, debits_posted, credits_pending, credits_posted, ledger, code, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, nextval('ledger_timestamp_seq'))
		RETURNING timestamp`,
		dec(account.ID), dec(account.DebitsPending), dec(account.DebitsPosted),
		dec(account.CreditsPending), dec(account.CreditsPosted), int64(account.Ledger), int64(account.Code),
	).Scan(&account.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, fmt.Errorf("%w: %d", ledger.ErrAccountExists, account.ID)
		}
		return models.Account{}, storageErr("insert account", err)
	}
	return account, nil
}

func (s *PostgresStore) LookupAccount(ctx context.Context, id uint64) (models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, dec(id))
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, id)
		}
		return models.Account{}, storageErr("lookup account", err)
	}
	return account, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY seq`)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, storageErr("scan account", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list accounts", err)
	}
	return accounts, nil
}

func (s *PostgresStore) AccountTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	var column string
	switch filter.Side {
	case models.SideDebits:
		column = "debit_account_id"
	case models.SideCredits:
		column = "credit_account_id"
	default:
		return nil, fmt.Errorf("unknown transfer side %d", filter.Side)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE `+column+` = $1
		ORDER BY timestamp DESC, id ASC
		LIMIT $2`,
		dec(filter.AccountID), filter.Limit)
	if err != nil {
		return nil, storageErr("query transfers", err)
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.ID, &t.DebitAccountID, &t.CreditAccountID, &t.Amount, &t.Ledger, &t.Code, &t.Timestamp); err != nil {
			return nil, storageErr("scan transfer", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query transfers", err)
	}
	return transfers, nil
}

// InTx runs fn inside one SQL transaction. Accounts are locked lazily by
// LockAccount, so accountIDs is only informational here.
func (s *PostgresStore) InTx(ctx context.Context, accountIDs []uint64, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) TransferExists(ctx context.Context, id uint64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transfers WHERE id = $1)`, dec(id)).Scan(&exists)
	if err != nil {
		return false, storageErr("check transfer", err)
	}
	return exists, nil
}

func (t *postgresTx) LockAccount(ctx context.Context, id uint64) (models.Account, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, dec(id))
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, id)
		}
		return models.Account{}, storageErr("lock account", err)
	}
	return account, nil
}

// ApplyTransfer takes the log lock before drawing a timestamp. The lock is
// held until commit, so transfers become visible in timestamp order.
func (t *postgresTx) ApplyTransfer(ctx context.Context, transfer models.Transfer) (models.Transfer, error) {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, transferLogLock); err != nil {
		return models.Transfer{}, storageErr("lock transfer log", err)
	}
	if err := t.tx.QueryRowContext(ctx, `SELECT nextval('ledger_timestamp_seq')`).Scan(&transfer.Timestamp); err != nil {
		return models.Transfer{}, storageErr("next timestamp", err)
	}

	if err := t.increment(ctx, "debits_posted", transfer.DebitAccountID, transfer.Amount); err != nil {
		return models.Transfer{}, err
	}
	if err := t.increment(ctx, "credits_posted", transfer.CreditAccountID, transfer.Amount); err != nil {
		return models.Transfer{}, err
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		dec(transfer.ID), dec(transfer.DebitAccountID), dec(transfer.CreditAccountID), dec(transfer.Amount),
		int64(transfer.Ledger), int64(transfer.Code), dec(transfer.Timestamp))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Transfer{}, fmt.Errorf("%w: %d", ledger.ErrDuplicateTransfer, transfer.ID)
		}
		return models.Transfer{}, storageErr("insert transfer", err)
	}
	return transfer, nil
}

func (t *postgresTx) increment(ctx context.Context, column string, accountID, amount uint64) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET `+column+` = `+column+` + $1 WHERE id = $2`,
		dec(amount), dec(accountID))
	if err != nil {
		return storageErr("update "+column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("update "+column, err)
	}
	if rowsAffected != 1 {
		return storageErr("update "+column, fmt.Errorf("account %d: %d rows affected", accountID, rowsAffected))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.DebitsPending, &a.DebitsPosted, &a.CreditsPending, &a.CreditsPosted, &a.Ledger, &a.Code, &a.Timestamp)
	return a, err
}

func dec(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// storageErr tags err as a storage fault unless it already carries a ledger
// outcome or comes from the caller's context.
func storageErr(op string, err error) error {
	if ledger.IsRejection(err) || ledger.IsRetryable(err) || isContextErr(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ledger.ErrStorageUnavailable, op, err)
}
