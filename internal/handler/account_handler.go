package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"funds-transfer/internal/domain"
	"funds-transfer/internal/errors"
	"funds-transfer/internal/service"
)

// AccountHandler exposes the ledger's RPC surface. Operation and status
// tokens are validated into closed enums at this boundary; nothing downstream
// compares raw strings.
type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type CreateAccountRequest struct {
	AccountNumber  string `json:"accountNumber"`
	UserID         string `json:"userId"`
	InitialBalance string `json:"initialBalance"`
	Currency       string `json:"currency"`
	Status         string `json:"status,omitempty"`
}

type UpdateAccountRequest struct {
	UserID   string `json:"userId"`
	Currency string `json:"currency"`
	Status   string `json:"status,omitempty"`
}

type balanceUpdateRequest struct {
	AccountNumber string `json:"accountNumber"`
	Amount        int64  `json:"amount"`
	Operation     string `json:"operation"`
}

type statusUpdateRequest struct {
	AccountNumber string `json:"accountNumber"`
	Status        string `json:"status"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	balance, err := domain.ParseBalance(req.InitialBalance)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid initialBalance format").WithDetails(err.Error()))
		return
	}

	var status domain.AccountStatus
	if req.Status != "" {
		status, err = domain.ParseAccountStatus(req.Status)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidStatus, "invalid account status").WithDetails(err.Error()))
			return
		}
	}

	account, err := h.accountService.CreateAccount(&service.CreateAccountRequest{
		AccountNumber: req.AccountNumber,
		UserID:        req.UserID,
		Balance:       balance,
		Currency:      req.Currency,
		Status:        status,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.ListAccounts()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountNumber := mux.Vars(r)["account_number"]

	account, err := h.accountService.GetAccount(accountNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	accountNumber := mux.Vars(r)["account_number"]

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	var status domain.AccountStatus
	if req.Status != "" {
		var err error
		status, err = domain.ParseAccountStatus(req.Status)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidStatus, "invalid account status").WithDetails(err.Error()))
			return
		}
	}

	account, err := h.accountService.UpdateAccount(accountNumber, &service.UpdateAccountRequest{
		UserID:   req.UserID,
		Currency: req.Currency,
		Status:   status,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountNumber := mux.Vars(r)["account_number"]

	balance, err := h.accountService.GetBalance(accountNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *AccountHandler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	accountNumber := mux.Vars(r)["account_number"]

	var req balanceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}
	if req.AccountNumber != "" && req.AccountNumber != accountNumber {
		writeError(w, errors.NewAppError(errors.InvalidInput, "account number in body does not match path"))
		return
	}

	operation, err := domain.ParseBalanceOperation(req.Operation)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidOperation, "invalid operation").WithDetails(err.Error()))
		return
	}

	result, err := h.accountService.ApplyBalanceChange(accountNumber, req.Amount, operation)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if !result.Success {
		// Business-rule rejection: the structured body carries the specific
		// reason for the orchestrator to surface.
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	accountNumber := mux.Vars(r)["account_number"]

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}
	if req.AccountNumber != "" && req.AccountNumber != accountNumber {
		writeError(w, errors.NewAppError(errors.InvalidInput, "account number in body does not match path"))
		return
	}

	status, err := domain.ParseAccountStatus(req.Status)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidStatus, "invalid account status").WithDetails(err.Error()))
		return
	}

	ok, err := h.accountService.SetStatus(accountNumber, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}
