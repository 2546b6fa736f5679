package database

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertAccount(ctx context.Context, account models.Account) (models.Account, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(models.Account), args.Error(1)
}

func (m *MockStore) LookupAccount(ctx context.Context, id uint64) (models.Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Account), args.Error(1)
}

func (m *MockStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Account), args.Error(1)
}

func (m *MockStore) AccountTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Transfer), args.Error(1)
}

func (m *MockStore) InTx(ctx context.Context, accountIDs []uint64, fn func(tx ledger.Tx) error) error {
	args := m.Called(ctx, accountIDs, fn)
	return args.Error(0)
}

type stateRecorder struct {
	metrics.NoOpCollector
	states []metrics.CircuitState
}

func (r *stateRecorder) RecordCircuitState(name string, state metrics.CircuitState) {
	r.states = append(r.states, state)
}

func newTestResilientStore(inner ledger.Store, recorder *stateRecorder) *ResilientStore {
	cfg := config.BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
	}
	return NewResilientStore("test", inner, cfg, recorder, logging.NewNoOpLogger())
}

func TestResilientStore_OpensOnStorageFaults(t *testing.T) {
	inner := new(MockStore)
	recorder := &stateRecorder{}
	store := newTestResilientStore(inner, recorder)
	ctx := context.Background()

	fault := fmt.Errorf("%w: lookup account: connection reset", ledger.ErrStorageUnavailable)
	inner.On("LookupAccount", ctx, uint64(1)).Return(models.Account{}, fault).Twice()

	for i := 0; i < 2; i++ {
		_, err := store.LookupAccount(ctx, 1)
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	}

	// open: the inner store is not called again
	_, err := store.LookupAccount(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	assert.True(t, ledger.IsRetryable(err))

	inner.AssertNumberOfCalls(t, "LookupAccount", 2)
	assert.Equal(t, []metrics.CircuitState{metrics.CircuitOpen}, recorder.states)
}

func TestResilientStore_RejectionsDoNotTrip(t *testing.T) {
	inner := new(MockStore)
	recorder := &stateRecorder{}
	store := newTestResilientStore(inner, recorder)
	ctx := context.Background()

	inner.On("InTx", ctx, []uint64{1, 2}, mock.Anything).
		Return(fmt.Errorf("%w: account 1", ledger.ErrInsufficientFunds)).Times(5)

	for i := 0; i < 5; i++ {
		err := store.InTx(ctx, []uint64{1, 2}, func(tx ledger.Tx) error { return nil })
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	}

	inner.AssertExpectations(t)
	assert.Empty(t, recorder.states)
}

func TestResilientStore_PassesResultsThrough(t *testing.T) {
	inner := new(MockStore)
	store := newTestResilientStore(inner, &stateRecorder{})
	ctx := context.Background()

	accounts := []models.Account{{ID: 999, Ledger: 1, Code: 1}, {ID: 1, Ledger: 1, Code: 1}}
	inner.On("ListAccounts", ctx).Return(accounts, nil)

	got, err := store.ListAccounts(ctx)
	assert.NoError(t, err)
	assert.Equal(t, accounts, got)
	inner.AssertExpectations(t)
}

func TestResilientStore_CallerCancellationDoesNotTrip(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	recorder := &stateRecorder{}
	store := newTestResilientStore(NewPostgresStore(db), recorder)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := store.LookupAccount(cancelled, 1)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ledger.IsRetryable(err))
	}

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	err = store.InTx(expired, []uint64{1, 2}, func(tx ledger.Tx) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ledger.IsRetryable(err))

	sqlMock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("1", "0", "0", "0", "10", int64(1), int64(1), "1"))

	account, err := store.LookupAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), account.CreditsPosted)
	assert.Empty(t, recorder.states)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
