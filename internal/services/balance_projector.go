package services

import (
	"context"
	"errors"

	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/models"
)

type BalanceProjector struct {
	store ledger.Store
}

func NewBalanceProjector(store ledger.Store) *BalanceProjector {
	return &BalanceProjector{store: store}
}

// GetBalance derives the balance from the posted totals. A missing account
// yields a zeroed Balance, not an error; AccountRegistry.GetAccount remains
// the authority on existence.
func (p *BalanceProjector) GetBalance(ctx context.Context, accountID uint64) (models.Balance, error) {
	account, err := p.store.LookupAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return models.Balance{AccountID: accountID}, nil
		}
		return models.Balance{}, err
	}

	return models.Balance{
		AccountID:     account.ID,
		Balance:       account.Balance(),
		CreditsPosted: account.CreditsPosted,
		DebitsPosted:  account.DebitsPosted,
	}, nil
}
