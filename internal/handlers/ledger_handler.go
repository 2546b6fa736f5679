package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

const maxBodyBytes = 1_048_576 // 1 MB

type LedgerHandler struct {
	service   *services.LedgerService
	validator *services.ValidationHelper
	logger    *logging.Logger
}

func NewLedgerHandler(service *services.LedgerService, logger *logging.Logger) *LedgerHandler {
	return &LedgerHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("handler"),
	}
}

// Routes mounts the ledger endpoints on r
func (h *LedgerHandler) Routes(r chi.Router) {
	r.Post("/accounts", h.CreateAccount)
	r.Get("/accounts", h.ListAccounts)
	r.Get("/accounts/{accountId}", h.GetAccount)
	r.Get("/accounts/{accountId}/balance", h.GetBalance)
	r.Get("/accounts/{accountId}/history", h.GetHistory)
	r.Post("/deposits", h.Deposit)
	r.Post("/transfers", h.Transfer)
}

type createAccountRequest struct {
	ID uint64 `json:"id,string,omitempty"`
}

type depositRequest struct {
	TransferID uint64 `json:"transferId,string,omitempty"`
	AccountID  uint64 `json:"accountId,string" validate:"required"`
	Amount     uint64 `json:"amount" validate:"required,gt=0"`
}

type transferRequest struct {
	TransferID uint64 `json:"transferId,string,omitempty"`
	SenderID   uint64 `json:"senderId,string" validate:"required"`
	ReceiverID uint64 `json:"receiverId,string" validate:"required,nefield=SenderID"`
	Amount     uint64 `json:"amount" validate:"required,gt=0"`
}

type historyQuery struct {
	Limit int `validate:"omitempty,min=1"`
}

// CreateAccount opens a ledger account
// @Summary Create account
// @Tags accounts
// @Accept json
// @Produce json
// @Success 201 {object} models.Account
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	account, err := h.service.OpenAccount(r.Context(), req.ID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// ListAccounts returns all accounts in creation order
// @Summary List accounts
// @Tags accounts
// @Produce json
// @Router /accounts [get]
func (h *LedgerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts.ListAccounts(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetAccount returns one account with its raw totals
// @Summary Get account
// @Tags accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId} [get]
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	account, err := h.service.Accounts.GetAccount(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetBalance returns the derived balance; unknown accounts read as zero
// @Summary Get balance
// @Tags accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Router /accounts/{accountId}/balance [get]
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// GetHistory returns recent transfers classified by direction
// @Summary Get history
// @Tags accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Param limit query int false "Number of entries (default: 10, max: 100)"
// @Router /accounts/{accountId}/history [get]
func (h *LedgerHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	var q historyQuery
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			services.SendErrorResponse(w, "invalid limit", http.StatusBadRequest, nil)
			return
		}
		q.Limit = limit
	}
	if err := h.validator.ValidateStruct(&q); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	history, err := h.service.GetHistory(r.Context(), id, q.Limit)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": strconv.FormatUint(id, 10),
		"history":   history,
		"count":     len(history),
	})
}

// Deposit mints funds into an account from the bank account
// @Summary Deposit
// @Tags transfers
// @Accept json
// @Produce json
// @Success 201 {object} models.Transfer
// @Failure 404 {object} services.ErrorResponse
// @Router /deposits [post]
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transfer, err := h.service.Deposit(r.Context(), req.TransferID, req.AccountID, req.Amount)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, transfer)
}

// Transfer moves funds between two accounts
// @Summary Transfer
// @Tags transfers
// @Accept json
// @Produce json
// @Success 201 {object} models.Transfer
// @Failure 422 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transfer, err := h.service.Transfer(r.Context(), req.TransferID, req.SenderID, req.ReceiverID, req.Amount)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, transfer)
}

func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// writeLedgerError maps ledger outcomes onto HTTP statuses. Storage faults
// get a generic body.
func (h *LedgerHandler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		services.SendLedgerError(w, err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrAccountExists), errors.Is(err, ledger.ErrDuplicateTransfer):
		services.SendLedgerError(w, err.Error(), http.StatusConflict, err)
	case errors.Is(err, ledger.ErrInvalidTransfer), errors.Is(err, ledger.ErrInvalidAccount):
		services.SendLedgerError(w, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrLedgerMismatch), errors.Is(err, ledger.ErrInsufficientFunds):
		services.SendLedgerError(w, err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ledger.ErrStorageUnavailable):
		h.logger.Error("storage unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		services.SendLedgerError(w, "Service temporarily unavailable", http.StatusServiceUnavailable, err)
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		services.SendLedgerError(w, "Internal server error", http.StatusInternalServerError, err)
	}
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil || id == 0 {
		services.SendErrorResponse(w, "invalid accountId", http.StatusBadRequest, nil)
		return 0, false
	}
	return id, true
}

func (h *LedgerHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to write response", zap.Int("status", status), zap.Error(err))
	}
}
