package audit

import (
	"errors"
	"testing"

	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedAudit() (*AuditLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return NewAuditLogger(&logging.Logger{Logger: zap.New(core)}), logs
}

func TestAuditLogger_LogTransfer(t *testing.T) {
	a, logs := newObservedAudit()

	a.LogTransfer(models.Transfer{ID: 7, DebitAccountID: 1, CreditAccountID: 2, Amount: 50, Ledger: 1, Timestamp: 3})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "TRANSFER", fields["event_type"])
	assert.Equal(t, "POSTED", fields["status"])
	assert.Equal(t, uint64(7), fields["transaction_id"])
	assert.Equal(t, uint64(50), fields["amount"])
}

func TestAuditLogger_LogRejection(t *testing.T) {
	a, logs := newObservedAudit()

	a.LogRejection(models.TransferRequest{ID: 9, DebitAccountID: 2, CreditAccountID: 1, Amount: 1000},
		"insufficient_funds", errors.New("insufficient funds"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "REJECTED", fields["status"])
	assert.Equal(t, uint64(2), fields["account_id"])
}

func TestAuditLogger_LogAccountCreated(t *testing.T) {
	a, logs := newObservedAudit()

	a.LogAccountCreated(models.Account{ID: 999, Ledger: 1, Code: 1})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ACCOUNT_CREATED", logs.All()[0].ContextMap()["event_type"])
}
