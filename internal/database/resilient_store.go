package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilientStore wraps a ledger.Store with a circuit breaker. Only storage
// faults count as failures; business rejections pass through untouched. While
// the breaker is open calls fail fast with ledger.ErrStorageUnavailable.
type ResilientStore struct {
	store ledger.Store
	cb    *gobreaker.CircuitBreaker
}

var _ ledger.Store = (*ResilientStore)(nil)

func NewResilientStore(name string, store ledger.Store, cfg config.BreakerConfig, collector metrics.MetricsCollector, logger *logging.Logger) *ResilientStore {
	logger = logger.Named("resilience")
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up says nothing about the store's health.
		IsSuccessful: func(err error) bool {
			return err == nil || isContextErr(err) || !ledger.IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("store", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			collector.RecordCircuitState(name, state)
		},
	}

	return &ResilientStore{
		store: store,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (r *ResilientStore) InsertAccount(ctx context.Context, account models.Account) (models.Account, error) {
	return execute(r.cb, func() (models.Account, error) {
		return r.store.InsertAccount(ctx, account)
	})
}

func (r *ResilientStore) LookupAccount(ctx context.Context, id uint64) (models.Account, error) {
	return execute(r.cb, func() (models.Account, error) {
		return r.store.LookupAccount(ctx, id)
	})
}

func (r *ResilientStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return execute(r.cb, func() ([]models.Account, error) {
		return r.store.ListAccounts(ctx)
	})
}

func (r *ResilientStore) AccountTransfers(ctx context.Context, filter models.TransferFilter) ([]models.Transfer, error) {
	return execute(r.cb, func() ([]models.Transfer, error) {
		return r.store.AccountTransfers(ctx, filter)
	})
}

func (r *ResilientStore) InTx(ctx context.Context, accountIDs []uint64, fn func(tx ledger.Tx) error) error {
	_, err := execute(r.cb, func() (struct{}, error) {
		return struct{}{}, r.store.InTx(ctx, accountIDs, fn)
	})
	return err
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ledger.ErrStorageUnavailable, err)
		}
		return zero, err
	}
	return result.(T), nil
}
