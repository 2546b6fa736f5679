package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/models"
)

// MemoryStore is a process-local ledger.Store.
//
// Every account carries its own mutex, held for the whole read-validate-apply
// section of a posting, so postings over disjoint accounts run in parallel.
// mu guards the account totals and the transfer log; it is taken exclusively
// only while both legs and the log row are written, so readers always see a
// transfer entirely or not at all.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[uint64]*memoryAccount
	order       []uint64
	transfers   []models.Transfer
	transferIDs map[uint64]struct{}
	clock       uint64
}

type memoryAccount struct {
	lock    sync.Mutex
	account models.Account
}

var _ ledger.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[uint64]*memoryAccount),
		transferIDs: make(map[uint64]struct{}),
	}
}

func (s *MemoryStore) InsertAccount(ctx context.Context, account models.Account) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return models.Account{}, fmt.Errorf("%w: %d", ledger.ErrAccountExists, account.ID)
	}
	s.clock++
	account.Timestamp = s.clock
	s.accounts[account.ID] = &memoryAccount{account: account}
	s.order = append(s.order, account.ID)
	return account, nil
}

func (s *MemoryStore) LookupAccount(ctx context.Context, id uint64) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, id)
	}
	return entry.account, nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]models.Account, 0, len(s.order))
	for _, id := range s.order {
		accounts = append(accounts, s.accounts[id].account)
	}
	return accounts, nil
}

func (s *MemoryStore) AccountTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// The log is appended in timestamp order, so walking it backwards yields
	// newest first.
	transfers := []models.Transfer{}
	for i := len(s.transfers) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(transfers) >= filter.Limit {
			break
		}
		t := s.transfers[i]
		switch filter.Side {
		case models.SideDebits:
			if t.DebitAccountID != filter.AccountID {
				continue
			}
		case models.SideCredits:
			if t.CreditAccountID != filter.AccountID {
				continue
			}
		default:
			return nil, fmt.Errorf("unknown transfer side %d", filter.Side)
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

// InTx locks the existing accounts among accountIDs in ascending id order and
// runs fn. Unknown ids are skipped; LockAccount reports them as not found.
func (s *MemoryStore) InTx(ctx context.Context, accountIDs []uint64, fn func(tx ledger.Tx) error) error {
	ids := append([]uint64(nil), accountIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s.mu.RLock()
	locked := make(map[uint64]*memoryAccount, len(ids))
	entries := make([]*memoryAccount, 0, len(ids))
	for _, id := range ids {
		if _, seen := locked[id]; seen {
			continue
		}
		if entry, ok := s.accounts[id]; ok {
			locked[id] = entry
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	for _, entry := range entries {
		entry.lock.Lock()
	}
	defer func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].lock.Unlock()
		}
	}()

	return fn(&memoryTx{store: s, locked: locked})
}

type memoryTx struct {
	store  *MemoryStore
	locked map[uint64]*memoryAccount
}

func (t *memoryTx) TransferExists(ctx context.Context, id uint64) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	_, ok := t.store.transferIDs[id]
	return ok, nil
}

func (t *memoryTx) LockAccount(ctx context.Context, id uint64) (models.Account, error) {
	entry, ok := t.locked[id]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, id)
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return entry.account, nil
}

// ApplyTransfer is the commit point: once past the cancellation check both
// legs and the log row are written together.
func (t *memoryTx) ApplyTransfer(ctx context.Context, transfer models.Transfer) (models.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return models.Transfer{}, err
	}

	debit, ok := t.locked[transfer.DebitAccountID]
	if !ok {
		return models.Transfer{}, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, transfer.DebitAccountID)
	}
	credit, ok := t.locked[transfer.CreditAccountID]
	if !ok {
		return models.Transfer{}, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, transfer.CreditAccountID)
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.transferIDs[transfer.ID]; dup {
		return models.Transfer{}, fmt.Errorf("%w: %d", ledger.ErrDuplicateTransfer, transfer.ID)
	}

	s.clock++
	transfer.Timestamp = s.clock
	debit.account.DebitsPosted += transfer.Amount
	credit.account.CreditsPosted += transfer.Amount
	s.transfers = append(s.transfers, transfer)
	s.transferIDs[transfer.ID] = struct{}{}
	return transfer, nil
}
