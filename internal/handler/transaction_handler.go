package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"funds-transfer/internal/domain"
	"funds-transfer/internal/errors"
	"funds-transfer/internal/middleware"
	"funds-transfer/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

type TransferRequest struct {
	FromAccountID string      `json:"fromAccountId"`
	ToAccountID   string      `json:"toAccountId"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Description   string      `json:"description"`
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	amount, err := domain.ParseAmount(req.Amount.String())
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid amount").WithDetails(err.Error()))
		return
	}

	result, err := h.transactionService.Transfer(r.Context(), middleware.Credential(r), &service.TransferRequest{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Currency:      req.Currency,
		Description:   req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["transaction_id"])
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid transaction id"))
		return
	}

	transaction, err := h.transactionService.GetTransaction(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if transaction == nil {
		writeError(w, errors.ErrTransactionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, transaction)
}

func (h *TransactionHandler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["account_id"]

	page, err := queryInt(r, "page", defaultPage)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "page must be a positive integer"))
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "pageSize must be a positive integer"))
		return
	}

	transactions, err := h.transactionService.GetAccountTransactions(accountID, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, transactions)
}

func (h *TransactionHandler) GetFilteredAccountTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["account_id"]
	operation := r.URL.Query().Get("operation")

	// Default window: last month to now.
	end := time.Now().UTC()
	start := end.AddDate(0, -1, 0)

	var err error
	if raw := r.URL.Query().Get("startDate"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidInput, "startDate must be RFC3339"))
			return
		}
	}
	if raw := r.URL.Query().Get("endDate"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidInput, "endDate must be RFC3339"))
			return
		}
	}

	transactions, err := h.transactionService.GetFilteredAccountTransactions(accountID, operation, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, transactions)
}

func (h *TransactionHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["transaction_id"])
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid transaction id"))
		return
	}

	cancelled, err := h.transactionService.CancelTransaction(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !cancelled {
		writeError(w, errors.NewAppError(errors.TransactionNotFound, "transaction could not be cancelled or was not found"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "transaction cancelled",
	})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.NewAppError(errors.InvalidInput, "invalid "+key)
	}
	return v, nil
}
