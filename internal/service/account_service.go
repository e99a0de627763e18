package service

import (
	"log/slog"
	"strings"

	"funds-transfer/internal/domain"
	"funds-transfer/internal/errors"
	"funds-transfer/internal/repository"
)

// AccountService owns account state on the ledger side. Every balance change
// runs inside a database transaction with the row locked, so the non-negative
// balance invariant holds even under concurrent callers.
type AccountService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewAccountService(store *repository.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

// BalanceUpdateResult is the wire contract of the update-balance endpoint.
type BalanceUpdateResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Balance *int64 `json:"balance"`
}

type CreateAccountRequest struct {
	AccountNumber string
	UserID        string
	Balance       int64
	Currency      string
	Status        domain.AccountStatus
}

func (s *AccountService) CreateAccount(req *CreateAccountRequest) (*domain.Account, error) {
	s.logger.Info("Creating account", "account_number", req.AccountNumber, "initial_balance", req.Balance)

	if strings.TrimSpace(req.AccountNumber) == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "account number is required")
	}
	if req.Balance < 0 {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance cannot be negative")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "currency is required")
	}

	status := req.Status
	if status == "" {
		status = domain.StatusActive
	}

	account := &domain.Account{
		AccountNumber: req.AccountNumber,
		UserID:        req.UserID,
		Balance:       req.Balance,
		Currency:      req.Currency,
		Status:        status,
	}

	if err := s.store.Account().CreateAccount(account); err != nil {
		return nil, err
	}

	return account, nil
}

type UpdateAccountRequest struct {
	UserID   string
	Currency string
	// Status empty keeps the current status.
	Status domain.AccountStatus
}

// UpdateAccount overwrites the account's profile fields. The balance is
// deliberately not updatable here: it only moves through ApplyBalanceChange,
// where the non-negative invariant is enforced under a row lock.
func (s *AccountService) UpdateAccount(accountNumber string, req *UpdateAccountRequest) (*domain.Account, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return nil, errors.ErrInvalidAccountID
	}

	var updated *domain.Account
	err := s.store.WithTransaction(func(store *repository.Store) error {
		account, err := store.Account().GetAccountForUpdate(accountNumber)
		if err != nil {
			return err
		}

		if req.UserID != "" {
			account.UserID = req.UserID
		}
		if req.Currency != "" {
			account.Currency = req.Currency
		}
		if req.Status != "" {
			account.Status = req.Status
		}

		if err := store.Account().UpdateAccountDetails(accountNumber, account.UserID, account.Currency, account.Status); err != nil {
			return err
		}

		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account updated", "account_number", accountNumber)
	return updated, nil
}

func (s *AccountService) GetAccount(accountNumber string) (*domain.Account, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return nil, errors.ErrInvalidAccountID
	}
	return s.store.Account().GetAccount(accountNumber)
}

func (s *AccountService) ListAccounts() ([]domain.Account, error) {
	return s.store.Account().ListAccounts()
}

func (s *AccountService) GetBalance(accountNumber string) (int64, error) {
	account, err := s.GetAccount(accountNumber)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// ApplyBalanceChange applies a debit or credit. Business-rule rejections come
// back as an unsuccessful result rather than an error; the delta is applied on
// every successful call, so retries are the caller's responsibility.
func (s *AccountService) ApplyBalanceChange(accountNumber string, amount int64, operation domain.BalanceOperation) (*BalanceUpdateResult, error) {
	if amount <= 0 {
		return nil, errors.ErrInvalidAmount
	}

	var result *BalanceUpdateResult
	err := s.store.WithTransaction(func(store *repository.Store) error {
		account, err := store.Account().GetAccountForUpdate(accountNumber)
		if err != nil {
			return err
		}

		var newBalance int64
		switch operation {
		case domain.OperationDebit:
			if account.Status == domain.StatusLocked {
				result = &BalanceUpdateResult{Success: false, Message: "Account is locked"}
				return nil
			}
			if account.Balance < amount {
				result = &BalanceUpdateResult{Success: false, Message: "Insufficient balance"}
				return nil
			}
			newBalance = account.Balance - amount
		case domain.OperationCredit:
			// Credits are applied regardless of status; see the ledger's
			// policy on crediting non-Active accounts.
			newBalance = account.Balance + amount
		default:
			return errors.NewAppError(errors.InvalidOperation, "invalid operation")
		}

		if err := store.Account().UpdateAccountBalance(accountNumber, newBalance); err != nil {
			return err
		}

		result = &BalanceUpdateResult{
			Success: true,
			Message: "Balance updated successfully",
			Balance: &newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Success {
		s.logger.Warn("Balance change rejected",
			"account_number", accountNumber,
			"operation", operation,
			"reason", result.Message)
	}

	return result, nil
}

// SetStatus transitions the account status. Locking is a compare-and-set from
// Active so a second in-flight transfer cannot steal an already-held lock;
// every other status is an unconditional overwrite.
func (s *AccountService) SetStatus(accountNumber string, status domain.AccountStatus) (bool, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return false, errors.ErrInvalidAccountID
	}

	if status == domain.StatusLocked {
		return s.store.Account().LockIfActive(accountNumber)
	}
	return s.store.Account().SetStatus(accountNumber, status)
}
