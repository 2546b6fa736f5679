package audit

import (
	"time"

	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/models"
	"go.uber.org/zap"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID uint64    `json:"transaction_id"`
	AccountID     uint64    `json:"account_id"`
	Amount        uint64    `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details"`
}

type AuditLogger struct {
	logger *logging.Logger
}

func NewAuditLogger(logger *logging.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("audit")}
}

func (a *AuditLogger) LogTransfer(transfer models.Transfer) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "TRANSFER",
		TransactionID: transfer.ID,
		AccountID:     transfer.DebitAccountID,
		Amount:        transfer.Amount,
		Status:        "POSTED",
		Details: map[string]uint64{
			"credit_account": transfer.CreditAccountID,
			"ledger":         uint64(transfer.Ledger),
			"timestamp":      transfer.Timestamp,
		},
	})
}

func (a *AuditLogger) LogRejection(req models.TransferRequest, reason string, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "TRANSFER",
		TransactionID: req.ID,
		AccountID:     req.DebitAccountID,
		Amount:        req.Amount,
		Status:        "REJECTED",
		Details: map[string]any{
			"credit_account": req.CreditAccountID,
			"reason":         reason,
			"error":          err.Error(),
		},
	})
}

func (a *AuditLogger) LogAccountCreated(account models.Account) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "ACCOUNT_CREATED",
		AccountID: account.ID,
		Status:    "SUCCESS",
		Details: map[string]uint64{
			"ledger": uint64(account.Ledger),
			"code":   uint64(account.Code),
		},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	a.logger.Info("AUDIT",
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.Uint64("transaction_id", event.TransactionID),
		zap.Uint64("account_id", event.AccountID),
		zap.Uint64("amount", event.Amount),
		zap.String("status", event.Status),
		zap.Any("details", event.Details),
	)
}
