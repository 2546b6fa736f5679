package services

import (
	"context"
	"sort"

	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/models"
	"golang.org/x/sync/errgroup"
)

type HistoryAggregator struct {
	store        ledger.Store
	defaultLimit int
	maxLimit     int
}

func NewHistoryAggregator(store ledger.Store, defaultLimit, maxLimit int) *HistoryAggregator {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &HistoryAggregator{
		store:        store,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// GetHistory returns up to limit transfers touching accountID, newest first,
// equal timestamps ordered by ascending id. A transfer is OUTGOING when the
// account is its debit side and INCOMING otherwise.
//
// The debit side and the credit side are fetched separately and may overlap;
// entries are deduplicated by transfer id before truncation.
func (h *HistoryAggregator) GetHistory(ctx context.Context, accountID uint64, limit int) ([]models.ClassifiedTransfer, error) {
	limit = h.clamp(limit)

	var debits, credits []models.Transfer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		debits, err = h.store.AccountTransfers(gctx, models.TransferFilter{
			AccountID: accountID,
			Side:      models.SideDebits,
			Limit:     limit,
		})
		return err
	})
	g.Go(func() error {
		var err error
		credits, err = h.store.AccountTransfers(gctx, models.TransferFilter{
			AccountID: accountID,
			Side:      models.SideCredits,
			Limit:     limit,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeTransfers(debits, credits)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	history := make([]models.ClassifiedTransfer, 0, len(merged))
	for _, t := range merged {
		history = append(history, classify(accountID, t))
	}
	return history, nil
}

func (h *HistoryAggregator) clamp(limit int) int {
	if limit <= 0 {
		return h.defaultLimit
	}
	if limit > h.maxLimit {
		return h.maxLimit
	}
	return limit
}

func mergeTransfers(sets ...[]models.Transfer) []models.Transfer {
	seen := make(map[uint64]struct{})
	var merged []models.Transfer
	for _, set := range sets {
		for _, t := range set {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			merged = append(merged, t)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp > merged[j].Timestamp
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

func classify(accountID uint64, t models.Transfer) models.ClassifiedTransfer {
	if t.DebitAccountID == accountID {
		return models.ClassifiedTransfer{
			Transfer:       t,
			Direction:      models.DirectionOutgoing,
			CounterpartyID: t.CreditAccountID,
		}
	}
	return models.ClassifiedTransfer{
		Transfer:       t,
		Direction:      models.DirectionIncoming,
		CounterpartyID: t.DebitAccountID,
	}
}
