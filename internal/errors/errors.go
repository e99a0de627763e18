package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput        ErrorCode = "invalid_input"
	InvalidAmount       ErrorCode = "invalid_amount"
	InvalidOperation    ErrorCode = "invalid_operation"
	InvalidStatus       ErrorCode = "invalid_status"
	AccountNotFound     ErrorCode = "account_not_found"
	TransactionNotFound ErrorCode = "transaction_not_found"
	DuplicateAccount    ErrorCode = "duplicate_account"
	InsufficientBalance ErrorCode = "insufficient_balance"
	AccountLocked       ErrorCode = "account_locked"
	TransferFailed      ErrorCode = "transfer_failed"
	InternalError       ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// HTTPStatus maps the error taxonomy onto response codes: validation problems
// are 400s, missing records 404s, business-rule rejections 422s.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidOperation, InvalidStatus:
		return http.StatusBadRequest
	case AccountNotFound, TransactionNotFound:
		return http.StatusNotFound
	case DuplicateAccount:
		return http.StatusConflict
	case InsufficientBalance, AccountLocked, TransferFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Predefined errors for common cases
var (
	ErrAccountNotFound     = NewAppError(AccountNotFound, "account not found")
	ErrTransactionNotFound = NewAppError(TransactionNotFound, "transaction not found")
	ErrDuplicateAccount    = NewAppError(DuplicateAccount, "account already exists")
	ErrInsufficientBalance = NewAppError(InsufficientBalance, "Insufficient balance")
	ErrAccountLocked       = NewAppError(AccountLocked, "Account is locked")
	ErrInvalidAmount       = NewAppError(InvalidAmount, "amount must be greater than zero")
	ErrSameAccountTransfer = NewAppError(InvalidInput, "source and destination accounts must differ")
	ErrInvalidAccountID    = NewAppError(InvalidInput, "account id is required")

	ErrCannotBeginTransaction = NewAppError(InternalError, "cannot begin transaction on non-database executor")
)
