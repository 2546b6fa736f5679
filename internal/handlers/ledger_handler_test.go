package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(t *testing.T, store ledger.Store) http.Handler {
	t.Helper()
	logger := logging.NewNoOpLogger()
	auditLogger := audit.NewAuditLogger(logger)
	collector := metrics.NoOpCollector{}
	cfg := config.LedgerConfig{BankAccountID: 999, LedgerID: 1, Code: 1, HistoryDefaultLimit: 10, HistoryMaxLimit: 100}

	service := services.NewLedgerService(
		services.NewAccountRegistry(store, auditLogger, collector),
		services.NewTransferEngine(store, cfg.BankAccountID, auditLogger, collector, nil, logger),
		services.NewBalanceProjector(store),
		services.NewHistoryAggregator(store, cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit),
		cfg,
		logger,
	)
	if _, ok := store.(*database.MemoryStore); ok {
		require.NoError(t, service.Bootstrap(context.Background()))
	}

	r := chi.NewRouter()
	r.Route("/api/v1", NewLedgerHandler(service, logger).Routes)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	}
	return w.Code, payload
}

func TestLedgerHandler_Flow(t *testing.T) {
	router := newTestRouter(t, database.NewMemoryStore())

	code, body := do(t, router, http.MethodPost, "/api/v1/accounts", `{"id":"1"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "1", body["id"])
	assert.Equal(t, "0", body["credits_posted"])

	code, _ = do(t, router, http.MethodPost, "/api/v1/accounts", `{"id":"2"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body = do(t, router, http.MethodPost, "/api/v1/deposits", `{"accountId":"1","amount":500}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "999", body["debit_account_id"])
	assert.Equal(t, "500", body["amount"])

	code, _ = do(t, router, http.MethodPost, "/api/v1/transfers", `{"transferId":"77","senderId":"1","receiverId":"2","amount":200}`)
	require.Equal(t, http.StatusCreated, code)

	code, body = do(t, router, http.MethodPost, "/api/v1/transfers", `{"transferId":"77","senderId":"1","receiverId":"2","amount":200}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "transfer already posted")
	assert.Equal(t, "duplicate_transfer", body["reason"])

	code, body = do(t, router, http.MethodPost, "/api/v1/transfers", `{"senderId":"2","receiverId":"1","amount":1000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"], "insufficient funds")
	assert.Equal(t, "insufficient_funds", body["reason"])

	code, body = do(t, router, http.MethodGet, "/api/v1/accounts/1/balance", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "300", body["balance"])
	assert.Equal(t, "500", body["credits_posted"])
	assert.Equal(t, "200", body["debits_posted"])

	code, body = do(t, router, http.MethodGet, "/api/v1/accounts/999/balance", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "-500", body["balance"])

	code, body = do(t, router, http.MethodGet, "/api/v1/accounts/1/history?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1", body["accountId"])
	assert.Equal(t, float64(2), body["count"])
	history := body["history"].([]any)
	first := history[0].(map[string]any)
	assert.Equal(t, string(models.DirectionOutgoing), first["direction"])
	assert.Equal(t, "2", first["counterparty_id"])
	assert.Equal(t, "77", first["id"])

	code, body = do(t, router, http.MethodGet, "/api/v1/accounts", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["count"])
}

func TestLedgerHandler_CreateAccount(t *testing.T) {
	router := newTestRouter(t, database.NewMemoryStore())

	t.Run("generated id", func(t *testing.T) {
		code, body := do(t, router, http.MethodPost, "/api/v1/accounts", "")
		assert.Equal(t, http.StatusCreated, code)
		assert.NotEqual(t, "0", body["id"])
	})

	t.Run("duplicate", func(t *testing.T) {
		code, body := do(t, router, http.MethodPost, "/api/v1/accounts", `{"id":"999"}`)
		assert.Equal(t, http.StatusConflict, code)
		assert.Contains(t, body["error"], "account already exists")
	})

	t.Run("unknown field", func(t *testing.T) {
		code, _ := do(t, router, http.MethodPost, "/api/v1/accounts", `{"id":"5","name":"Ada"}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("trailing object", func(t *testing.T) {
		code, _ := do(t, router, http.MethodPost, "/api/v1/accounts", `{"id":"5"}{"id":"6"}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestLedgerHandler_BadRequests(t *testing.T) {
	router := newTestRouter(t, database.NewMemoryStore())
	code, _ := do(t, router, http.MethodPost, "/api/v1/accounts", `{"id":"1"}`)
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"transfer to self", http.MethodPost, "/api/v1/transfers", `{"senderId":"1","receiverId":"1","amount":5}`, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/api/v1/deposits", `{"accountId":"1","amount":0}`, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/api/v1/deposits", `{"accountId":"1","amount":-5}`, http.StatusBadRequest},
		{"missing account id", http.MethodPost, "/api/v1/deposits", `{"amount":5}`, http.StatusBadRequest},
		{"deposit to unknown account", http.MethodPost, "/api/v1/deposits", `{"accountId":"404","amount":5}`, http.StatusNotFound},
		{"non numeric account", http.MethodGet, "/api/v1/accounts/abc", "", http.StatusBadRequest},
		{"zero account", http.MethodGet, "/api/v1/accounts/0/balance", "", http.StatusBadRequest},
		{"unknown account", http.MethodGet, "/api/v1/accounts/404", "", http.StatusNotFound},
		{"bad limit", http.MethodGet, "/api/v1/accounts/1/history?limit=abc", "", http.StatusBadRequest},
		{"negative limit", http.MethodGet, "/api/v1/accounts/1/history?limit=-1", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestLedgerHandler_UnknownAccountBalanceIsZero(t *testing.T) {
	router := newTestRouter(t, database.NewMemoryStore())

	code, body := do(t, router, http.MethodGet, "/api/v1/accounts/404/balance", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "404", body["account_id"])
	assert.Equal(t, "0", body["balance"])
}

type unavailableStore struct {
	ledger.Store
}

func (unavailableStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return nil, fmt.Errorf("%w: list accounts: connection refused", ledger.ErrStorageUnavailable)
}

func (unavailableStore) LookupAccount(ctx context.Context, id uint64) (models.Account, error) {
	return models.Account{}, fmt.Errorf("boom")
}

func TestLedgerHandler_SystemErrors(t *testing.T) {
	router := newTestRouter(t, unavailableStore{})

	code, body := do(t, router, http.MethodGet, "/api/v1/accounts", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Service temporarily unavailable", body["error"])
	assert.Equal(t, "storage_unavailable", body["reason"])

	code, body = do(t, router, http.MethodGet, "/api/v1/accounts/1", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, "internal", body["reason"])
}

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestLedgerHandler_WriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewLedgerHandler(nil, &logging.Logger{Logger: zap.New(core)})

	w := brokenWriter{httptest.NewRecorder()}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.Code)
	entries := logs.FilterMessage("failed to write response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
}
