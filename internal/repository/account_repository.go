package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"funds-transfer/internal/domain"
	"funds-transfer/internal/errors"
)

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(account *domain.Account) error {
	query := `
		INSERT INTO accounts (account_number, user_id, balance, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now().UTC()
	_, err := r.db.Exec(
		query,
		account.AccountNumber,
		account.UserID,
		account.Balance,
		account.Currency,
		string(account.Status),
		now,
		now,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate account creation attempt", "account_number", account.AccountNumber)
				return errors.ErrDuplicateAccount
			}
		}
		r.logger.Error("Failed to create account", "account_number", account.AccountNumber, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_number", account.AccountNumber)
	return nil
}

func (r *accountRepository) GetAccount(accountNumber string) (*domain.Account, error) {
	query := `
		SELECT account_number, user_id, balance, currency, status, created_at, updated_at
		FROM accounts WHERE account_number = $1
	`

	return r.scanAccount(query, accountNumber)
}

func (r *accountRepository) GetAccountForUpdate(accountNumber string) (*domain.Account, error) {
	query := `
		SELECT account_number, user_id, balance, currency, status, created_at, updated_at
		FROM accounts WHERE account_number = $1 FOR UPDATE
	`

	return r.scanAccount(query, accountNumber)
}

func (r *accountRepository) ListAccounts() ([]domain.Account, error) {
	query := `
		SELECT account_number, user_id, balance, currency, status, created_at, updated_at
		FROM accounts ORDER BY created_at
	`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list accounts", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list accounts").WithDetails(err.Error())
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		var status string
		if err := rows.Scan(
			&account.AccountNumber,
			&account.UserID,
			&account.Balance,
			&account.Currency,
			&status,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan account").WithDetails(err.Error())
		}
		account.Status = domain.AccountStatus(status)
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func (r *accountRepository) scanAccount(query string, accountNumber string) (*domain.Account, error) {
	var account domain.Account
	var status string

	err := r.db.QueryRow(query, accountNumber).Scan(
		&account.AccountNumber,
		&account.UserID,
		&account.Balance,
		&account.Currency,
		&status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Account not found", "account_number", accountNumber)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "account_number", accountNumber, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}

	account.Status = domain.AccountStatus(status)
	return &account, nil
}

func (r *accountRepository) UpdateAccountBalance(accountNumber string, newBalance int64) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE account_number = $3
	`

	result, err := r.db.Exec(query, newBalance, time.Now().UTC(), accountNumber)
	if err != nil {
		r.logger.Error("Failed to update account balance", "account_number", accountNumber, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update account balance").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_number", accountNumber)
		return errors.ErrAccountNotFound
	}

	r.logger.Info("Account balance updated", "account_number", accountNumber, "new_balance", newBalance)
	return nil
}

func (r *accountRepository) UpdateAccountDetails(accountNumber, userID, currency string, status domain.AccountStatus) error {
	query := `
		UPDATE accounts
		SET user_id = $1, currency = $2, status = $3, updated_at = $4
		WHERE account_number = $5
	`

	result, err := r.db.Exec(query, userID, currency, string(status), time.Now().UTC(), accountNumber)
	if err != nil {
		r.logger.Error("Failed to update account details", "account_number", accountNumber, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update account details").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_number", accountNumber)
		return errors.ErrAccountNotFound
	}

	r.logger.Info("Account details updated", "account_number", accountNumber)
	return nil
}

func (r *accountRepository) SetStatus(accountNumber string, status domain.AccountStatus) (bool, error) {
	query := `
		UPDATE accounts
		SET status = $1, updated_at = $2
		WHERE account_number = $3
	`

	result, err := r.db.Exec(query, string(status), time.Now().UTC(), accountNumber)
	if err != nil {
		r.logger.Error("Failed to update account status",
			"account_number", accountNumber, "status", status, "error", err)
		return false, errors.NewAppError(errors.InternalError, "failed to update account status").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		return false, nil
	}

	r.logger.Info("Account status updated", "account_number", accountNumber, "status", status)
	return true, nil
}

func (r *accountRepository) LockIfActive(accountNumber string) (bool, error) {
	// Compare-and-set so two in-flight transfers cannot both win the lock.
	query := `
		UPDATE accounts
		SET status = $1, updated_at = $2
		WHERE account_number = $3 AND status = $4
	`

	result, err := r.db.Exec(query, string(domain.StatusLocked), time.Now().UTC(), accountNumber, string(domain.StatusActive))
	if err != nil {
		r.logger.Error("Failed to lock account", "account_number", accountNumber, "error", err)
		return false, errors.NewAppError(errors.InternalError, "failed to lock account").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("Account not lockable", "account_number", accountNumber)
		return false, nil
	}

	r.logger.Info("Account locked", "account_number", accountNumber)
	return true, nil
}
