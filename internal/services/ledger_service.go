package services

import (
	"context"
	"fmt"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/models"
	"go.uber.org/zap"
)

// LedgerService is the surface the API layer talks to. It wires the four
// ledger components together and fills in the configured issuing account,
// ledger and code.
type LedgerService struct {
	Accounts  *AccountRegistry
	Transfers *TransferEngine
	Balances  *BalanceProjector
	History   *HistoryAggregator

	cfg    config.LedgerConfig
	logger *logging.Logger
}

func NewLedgerService(accounts *AccountRegistry, transfers *TransferEngine, balances *BalanceProjector, history *HistoryAggregator, cfg config.LedgerConfig, logger *logging.Logger) *LedgerService {
	return &LedgerService{
		Accounts:  accounts,
		Transfers: transfers,
		Balances:  balances,
		History:   history,
		cfg:       cfg,
		logger:    logger.Named("ledger"),
	}
}

// Bootstrap provisions the issuing account. Safe to call on every start.
func (s *LedgerService) Bootstrap(ctx context.Context) error {
	bank, err := s.Accounts.EnsureAccount(ctx, s.cfg.BankAccountID, s.cfg.LedgerID, s.cfg.Code)
	if err != nil {
		return fmt.Errorf("provision bank account %d: %w", s.cfg.BankAccountID, err)
	}
	s.logger.Info("bank account ready",
		zap.Uint64("account_id", bank.ID),
		zap.Uint32("ledger", bank.Ledger),
		zap.Int64("balance", bank.Balance()),
	)
	return nil
}

// OpenAccount creates an account on the configured ledger; id 0 asks for a
// generated one.
func (s *LedgerService) OpenAccount(ctx context.Context, id uint64) (models.Account, error) {
	if id == 0 {
		id = NewID()
	}
	return s.Accounts.CreateAccount(ctx, id, s.cfg.LedgerID, s.cfg.Code)
}

// Deposit mints amount into accountID by debiting the issuing account.
func (s *LedgerService) Deposit(ctx context.Context, transferID, accountID, amount uint64) (models.Transfer, error) {
	return s.post(ctx, transferID, s.cfg.BankAccountID, accountID, amount)
}

// Transfer moves amount from senderID to receiverID.
func (s *LedgerService) Transfer(ctx context.Context, transferID, senderID, receiverID, amount uint64) (models.Transfer, error) {
	return s.post(ctx, transferID, senderID, receiverID, amount)
}

func (s *LedgerService) post(ctx context.Context, transferID, debitID, creditID, amount uint64) (models.Transfer, error) {
	if transferID == 0 {
		transferID = NewID()
	}
	return s.Transfers.PostTransfer(ctx, models.TransferRequest{
		ID:              transferID,
		DebitAccountID:  debitID,
		CreditAccountID: creditID,
		Amount:          amount,
		Ledger:          s.cfg.LedgerID,
		Code:            s.cfg.Code,
	})
}

func (s *LedgerService) GetBalance(ctx context.Context, accountID uint64) (models.Balance, error) {
	return s.Balances.GetBalance(ctx, accountID)
}

func (s *LedgerService) GetHistory(ctx context.Context, accountID uint64, limit int) ([]models.ClassifiedTransfer, error) {
	return s.History.GetHistory(ctx, accountID, limit)
}
