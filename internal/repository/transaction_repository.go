package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"funds-transfer/internal/domain"
	"funds-transfer/internal/errors"
)

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

const transactionColumns = `
	id, from_account_id, to_account_id, amount, currency, status, type,
	description, reference, initiated_at, completed_at, failure_reason
`

func (r *transactionRepository) CreateTransaction(tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(
		query,
		tx.ID,
		tx.FromAccountID,
		tx.ToAccountID,
		tx.Amount,
		tx.Currency,
		string(tx.Status),
		string(tx.Type),
		tx.Description,
		tx.Reference,
		tx.InitiatedAt,
		tx.CompletedAt,
		tx.FailureReason,
	)

	if err != nil {
		r.logger.Error("Failed to create transaction",
			"from_account_id", tx.FromAccountID,
			"to_account_id", tx.ToAccountID,
			"amount", tx.Amount,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID)
	return nil
}

func (r *transactionRepository) GetTransactionByID(id uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions WHERE id = $1
	`

	row := r.db.QueryRow(query, id)
	tx, err := r.scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}
	return tx, nil
}

// UpdateOutcome never resurrects a terminal record: the guard clause keeps
// Completed/Failed/Cancelled/Reversed rows immutable at the database level.
func (r *transactionRepository) UpdateOutcome(id uuid.UUID, status domain.TransactionStatus, completedAt *time.Time, failureReason *string) error {
	query := `
		UPDATE transactions
		SET status = $1, completed_at = $2, failure_reason = $3
		WHERE id = $4 AND status NOT IN ('Completed', 'Failed', 'Cancelled', 'Reversed')
	`

	result, err := r.db.Exec(query, string(status), completedAt, failureReason, id)
	if err != nil {
		r.logger.Error("Failed to update transaction outcome",
			"transaction_id", id, "status", status, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update transaction outcome").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("Transaction not updatable", "transaction_id", id, "status", status)
		return errors.ErrTransactionNotFound
	}

	r.logger.Info("Transaction outcome updated", "transaction_id", id, "status", status)
	return nil
}

func (r *transactionRepository) ListByAccount(accountID string, page, pageSize int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY initiated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(query, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		r.logger.Error("Failed to list transactions", "account_id", accountID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	return r.collectTransactions(rows)
}

func (r *transactionRepository) ListByAccountFiltered(accountID string, leg domain.LegFilter, start, end time.Time) ([]domain.Transaction, error) {
	var predicate string
	switch leg {
	case domain.LegDebit:
		predicate = `from_account_id = $1`
	case domain.LegCredit:
		predicate = `to_account_id = $1`
	default:
		predicate = `(from_account_id = $1 OR to_account_id = $1)`
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE ` + predicate + ` AND initiated_at >= $2 AND initiated_at <= $3
		ORDER BY initiated_at DESC
	`

	rows, err := r.db.Query(query, accountID, start, end)
	if err != nil {
		r.logger.Error("Failed to list filtered transactions", "account_id", accountID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list filtered transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	return r.collectTransactions(rows)
}

func (r *transactionRepository) collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan transaction").WithDetails(err.Error())
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *transactionRepository) scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var status, txType string
	var completedAt sql.NullTime
	var failureReason sql.NullString

	err := row.Scan(
		&tx.ID,
		&tx.FromAccountID,
		&tx.ToAccountID,
		&tx.Amount,
		&tx.Currency,
		&status,
		&txType,
		&tx.Description,
		&tx.Reference,
		&tx.InitiatedAt,
		&completedAt,
		&failureReason,
	)
	if err != nil {
		return nil, err
	}

	tx.Status = domain.TransactionStatus(status)
	tx.Type = domain.TransactionType(txType)
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}
	if failureReason.Valid {
		reason := failureReason.String
		tx.FailureReason = &reason
	}

	return &tx, nil
}
