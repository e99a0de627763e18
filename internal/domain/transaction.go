package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionInitiated  TransactionStatus = "Initiated"
	TransactionPending    TransactionStatus = "Pending"
	TransactionProcessing TransactionStatus = "Processing"
	TransactionCompleted  TransactionStatus = "Completed"
	TransactionFailed     TransactionStatus = "Failed"
	TransactionCancelled  TransactionStatus = "Cancelled"
	TransactionReversed   TransactionStatus = "Reversed"
)

// IsTerminal reports whether no further status transition is permitted.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionCompleted, TransactionFailed, TransactionCancelled, TransactionReversed:
		return true
	}
	return false
}

type TransactionType string

const TypeTransfer TransactionType = "Transfer"

type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	FromAccountID string            `json:"from_account_id"`
	ToAccountID   string            `json:"to_account_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        TransactionStatus `json:"status"`
	Type          TransactionType   `json:"type"`
	Description   string            `json:"description"`
	Reference     string            `json:"reference"`
	InitiatedAt   time.Time         `json:"initiated_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
	FailureReason *string           `json:"failure_reason"`
}

// LegFilter selects which side of a transfer a history query matches.
type LegFilter int

const (
	LegBoth LegFilter = iota
	LegDebit
	LegCredit
)

// LegFilterFromOperation maps the query-string operation parameter onto a
// LegFilter: "debit" matches transfers the account funded, "credit" matches
// transfers the account received, anything else matches both directions.
func LegFilterFromOperation(operation string) LegFilter {
	switch BalanceOperation(operation) {
	case OperationDebit:
		return LegDebit
	case OperationCredit:
		return LegCredit
	}
	return LegBoth
}

type TransactionRepository interface {
	CreateTransaction(tx *Transaction) error
	GetTransactionByID(id uuid.UUID) (*Transaction, error)
	// UpdateOutcome moves a transaction to its terminal (or intermediate)
	// status, stamping the completion time and failure reason when present.
	UpdateOutcome(id uuid.UUID, status TransactionStatus, completedAt *time.Time, failureReason *string) error
	ListByAccount(accountID string, page, pageSize int) ([]Transaction, error)
	ListByAccountFiltered(accountID string, leg LegFilter, start, end time.Time) ([]Transaction, error)
}
