package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ruralpay/ledger/internal/ledger"
)

// ErrorResponse is the JSON body of every failed ledger request
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Reason  string            `json:"reason,omitempty"`  // Stable ledger outcome, e.g. insufficient_funds
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper checks decoded request bodies against their struct tags
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response; field failures in
// validationErr are listed under details
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	resp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		resp.Reason = "validation_failed"
		resp.Details = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			resp.Details[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
		}
	}
	writeErrorResponse(w, statusCode, resp)
}

// SendLedgerError reports a ledger outcome. message is what the client sees;
// the reason code is derived from err.
func SendLedgerError(w http.ResponseWriter, message string, statusCode int, err error) {
	writeErrorResponse(w, statusCode, ErrorResponse{
		Error:  message,
		Reason: ledger.Reason(err),
	})
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
