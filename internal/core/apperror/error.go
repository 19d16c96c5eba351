// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every failure that reaches a cashier or an operator is an AppError.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal       = "INTERNAL_ERROR"
	CodeNetworkFailure = "NETWORK_FAILURE"

	// Validation errors (400/422)
	CodeValidation        = "VALIDATION_ERROR"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"

	// Sequence errors
	CodeSequenceExhausted = "SEQUENCE_EXHAUSTED"

	// Sale exists remotely but carries no invoice number.
	CodeCriticalAssignment = "CRITICAL_ASSIGNMENT_FAILURE"

	// Warnings that need explicit cashier confirmation
	CodeDuplicateSuspected = "DUPLICATE_SUSPECTED"

	// Conflict (409)
	CodeConflict  = "CONFLICT"
	CodeDuplicate = "DUPLICATE_ENTRY"
)

// AppError is the standard error type for the terminal.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (invoice numbers, sale ids, matched sale)
	Details map[string]any `json:"details,omitempty"`

	// Retryable tells the cashier the same action may succeed if simply repeated
	Retryable bool `json:"retryable,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRejected is a ValidationFailure reported by the remote sale procedure.
// The remote message is surfaced verbatim.
func NewRejected(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(productID string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewSequenceExhausted is returned when no free invoice number was found
// within the attempt budget. The cashier should try again.
func NewSequenceExhausted(companyID string, attempts int) *AppError {
	return &AppError{
		Code:       CodeSequenceExhausted,
		Message:    "Could not allocate an invoice number, please try again",
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Details:    map[string]any{"company_id": companyID, "attempts": attempts},
	}
}

// NewNetworkFailure wraps a transport-level failure.
func NewNetworkFailure(op string, err error) *AppError {
	return &AppError{
		Code:       CodeNetworkFailure,
		Message:    "Remote service unreachable",
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

// NewCriticalAssignment reports a sale that exists remotely without its invoice number.
func NewCriticalAssignment(saleID, invoiceNumber string, err error) *AppError {
	return &AppError{
		Code:       CodeCriticalAssignment,
		Message:    "Sale was recorded but its invoice number could not be assigned",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"sale_id": saleID, "invoice_number": invoiceNumber},
		Err:        err,
	}
}

// NewDuplicateSuspected is a warning: the sale looks like a resubmission.
func NewDuplicateSuspected(matchedSaleID, matchedInvoice string) *AppError {
	return &AppError{
		Code:       CodeDuplicateSuspected,
		Message:    "An identical sale was recorded moments ago, confirm to proceed",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"matched_sale_id":        matchedSaleID,
			"matched_invoice_number": matchedInvoice,
		},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsSequenceExhausted checks if error is CodeSequenceExhausted
func IsSequenceExhausted(err error) bool {
	return HasCode(err, CodeSequenceExhausted)
}

// IsCriticalAssignment checks if error is CodeCriticalAssignment
func IsCriticalAssignment(err error) bool {
	return HasCode(err, CodeCriticalAssignment)
}

// IsDuplicateSuspected checks if error is CodeDuplicateSuspected
func IsDuplicateSuspected(err error) bool {
	return HasCode(err, CodeDuplicateSuspected)
}
