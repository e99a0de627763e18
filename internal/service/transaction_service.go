package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"funds-transfer/internal/domain"
	"funds-transfer/internal/errors"
	"funds-transfer/internal/metrics"
)

var tracer = otel.Tracer("funds-transfer/internal/service")

// LedgerGateway is the orchestrator's view of the account ledger. The
// caller's credential is threaded explicitly through every call so identity
// forwarding is visible in the type system rather than recovered from
// ambient context.
type LedgerGateway interface {
	Exists(ctx context.Context, credential, accountNumber string) bool
	CheckSufficientBalance(ctx context.Context, credential, accountNumber string, amount int64) bool
	Debit(ctx context.Context, credential, accountNumber string, amount int64) domain.OperationOutcome
	Credit(ctx context.Context, credential, accountNumber string, amount int64) domain.OperationOutcome
	Lock(ctx context.Context, credential, accountNumber string) bool
	Unlock(ctx context.Context, credential, accountNumber string) bool
}

// Notifier receives completed transfers. Implementations must not block the
// saga.
type Notifier interface {
	NotifyTransferCompleted(tx *domain.Transaction)
}

// TransactionService runs the transfer saga and owns the transaction record
// store. The ledger is the sole writer authority over account state; this
// service mutates accounts only through the LedgerGateway.
type TransactionService struct {
	ledger          LedgerGateway
	transactionRepo domain.TransactionRepository
	notifier        Notifier
	sagaDeadline    time.Duration
	logger          *slog.Logger
}

func NewTransactionService(
	ledger LedgerGateway,
	transactionRepo domain.TransactionRepository,
	notifier Notifier,
	sagaDeadline time.Duration,
	logger *slog.Logger,
) *TransactionService {
	if sagaDeadline <= 0 {
		sagaDeadline = 30 * time.Second
	}
	return &TransactionService{
		ledger:          ledger,
		transactionRepo: transactionRepo,
		notifier:        notifier,
		sagaDeadline:    sagaDeadline,
		logger:          logger,
	}
}

type TransferRequest struct {
	FromAccountID string
	ToAccountID   string
	Amount        int64
	Currency      string
	Description   string
}

// OperationDetails describes one leg of a transfer for the caller's audit
// trail.
type OperationDetails struct {
	AccountNumber string `json:"account_number"`
	OperationType string `json:"operation_type"`
	Amount        int64  `json:"amount"`
	NewBalance    *int64 `json:"new_balance"`
	Status        string `json:"status"`
}

type TransferResult struct {
	Success         bool                `json:"success"`
	Message         string              `json:"message"`
	Transaction     *domain.Transaction `json:"transaction,omitempty"`
	DebitOperation  *OperationDetails   `json:"debit_operation,omitempty"`
	CreditOperation *OperationDetails   `json:"credit_operation,omitempty"`
}

// Transfer runs the saga: validate, check both accounts, advisory balance
// check, persist a Processing record, then debit -> lock -> credit with
// compensation on partial failure. The balance check here is advisory only;
// the authoritative check happens atomically inside the ledger's debit, so
// two concurrent transfers can never drive the source negative. The lock
// guards the window while the credit leg is outstanding.
//
// Failures before the record is persisted return an error and leave no trace;
// failures after it always land the record in a terminal state.
func (s *TransactionService) Transfer(ctx context.Context, credential string, req *TransferRequest) (result *TransferResult, err error) {
	var record *domain.Transaction

	// A panic in any step must become a terminal failure result, never an
	// unrecorded crash.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during transfer saga", "panic", r)
			if record != nil {
				s.markFailed(record, "internal error during transfer")
			}
			metrics.TransfersTotal.WithLabelValues("failed").Inc()
			result = &TransferResult{Success: false, Message: "An unexpected error occurred while processing the transfer"}
			err = nil
		}
	}()

	ctx, span := tracer.Start(ctx, "TransactionService.Transfer", trace.WithAttributes(
		attribute.String("transfer.from_account", req.FromAccountID),
		attribute.String("transfer.to_account", req.ToAccountID),
		attribute.Int64("transfer.amount", req.Amount),
	))
	defer span.End()

	if err := validateTransferRequest(req); err != nil {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	span.AddEvent("checking_accounts")
	if !s.ledger.Exists(ctx, credential, req.FromAccountID) {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, errors.NewAppError(errors.AccountNotFound, "Source account does not exist")
	}
	if !s.ledger.Exists(ctx, credential, req.ToAccountID) {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, errors.NewAppError(errors.AccountNotFound, "Destination account does not exist")
	}

	// Advisory only: the ledger re-checks atomically inside the debit.
	span.AddEvent("checking_balance")
	if !s.ledger.CheckSufficientBalance(ctx, credential, req.FromAccountID, req.Amount) {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, errors.ErrInsufficientBalance
	}

	// Persist the record before the first mutating call so a crash mid-saga
	// leaves a Processing row a recovery sweep can reconcile against ledger
	// truth.
	record = &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        domain.TransactionProcessing,
		Type:          domain.TypeTransfer,
		Description:   req.Description,
		Reference:     newReference(),
		InitiatedAt:   time.Now().UTC(),
	}
	if err := s.transactionRepo.CreateTransaction(record); err != nil {
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("transaction.id", record.ID.String()))

	// From here on the saga must finish or compensate even if the caller
	// goes away, so it detaches from the caller's cancellation and runs on
	// its own deadline.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sagaDeadline)
	defer cancel()

	span.AddEvent("debiting")
	debit := s.ledger.Debit(sctx, credential, req.FromAccountID, req.Amount)
	if !debit.Success {
		// The ledger rejected the debit (insufficient balance re-detected,
		// or a concurrent transfer holds the lock). Nothing was mutated, so
		// there is nothing to compensate.
		s.markFailed(record, debit.Message)
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return &TransferResult{
			Success:        false,
			Message:        debit.Message,
			Transaction:    record,
			DebitOperation: operationDetails(req.FromAccountID, domain.OperationDebit, req.Amount, debit),
		}, nil
	}

	span.AddEvent("locking")
	if !s.ledger.Lock(sctx, credential, req.FromAccountID) {
		// The debit landed but could not be protected. The lock failure says
		// nothing about whether the debit is safe to reverse, so this
		// escalates to manual reconciliation instead of auto-reversing.
		const msg = "Failed to lock source account after debit; manual reconciliation required"
		s.logger.Error("Lock failed after successful debit",
			"account_number", req.FromAccountID, "transaction_id", record.ID)
		s.markFailed(record, msg)
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return &TransferResult{
			Success:        false,
			Message:        msg,
			Transaction:    record,
			DebitOperation: operationDetails(req.FromAccountID, domain.OperationDebit, req.Amount, debit),
		}, nil
	}

	span.AddEvent("crediting")
	credit := s.ledger.Credit(sctx, credential, req.ToAccountID, req.Amount)
	if !credit.Success {
		s.compensateRefund(sctx, credential, req.FromAccountID, req.Amount, record.ID)
		s.compensateUnlock(sctx, credential, req.FromAccountID)
		s.markFailed(record, credit.Message)
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return &TransferResult{
			Success:         false,
			Message:         "Transfer failed: " + credit.Message,
			Transaction:     record,
			DebitOperation:  operationDetails(req.FromAccountID, domain.OperationDebit, req.Amount, debit),
			CreditOperation: operationDetails(req.ToAccountID, domain.OperationCredit, req.Amount, credit),
		}, nil
	}

	span.AddEvent("finalizing")
	if !s.ledger.Unlock(sctx, credential, req.FromAccountID) {
		// Funds have moved; a stuck lock is an operational problem, not a
		// transfer failure.
		s.logger.Error("Failed to unlock source account after completed transfer",
			"account_number", req.FromAccountID, "transaction_id", record.ID)
	}

	completedAt := time.Now().UTC()
	if err := s.transactionRepo.UpdateOutcome(record.ID, domain.TransactionCompleted, &completedAt, nil); err != nil {
		s.logger.Error("Failed to mark transaction completed", "transaction_id", record.ID, "error", err)
	}
	record.Status = domain.TransactionCompleted
	record.CompletedAt = &completedAt

	if s.notifier != nil {
		s.notifier.NotifyTransferCompleted(record)
	}

	metrics.TransfersTotal.WithLabelValues("completed").Inc()
	s.logger.Info("Transfer completed successfully",
		"transaction_id", record.ID,
		"from_account_id", req.FromAccountID,
		"to_account_id", req.ToAccountID,
		"amount", req.Amount)

	return &TransferResult{
		Success:         true,
		Message:         "Transfer completed successfully",
		Transaction:     record,
		DebitOperation:  operationDetails(req.FromAccountID, domain.OperationDebit, req.Amount, debit),
		CreditOperation: operationDetails(req.ToAccountID, domain.OperationCredit, req.Amount, credit),
	}, nil
}

func validateTransferRequest(req *TransferRequest) error {
	if req == nil {
		return errors.NewAppError(errors.InvalidInput, "transfer request is required")
	}
	if strings.TrimSpace(req.FromAccountID) == "" || strings.TrimSpace(req.ToAccountID) == "" {
		return errors.ErrInvalidAccountID
	}
	if req.FromAccountID == req.ToAccountID {
		return errors.ErrSameAccountTransfer
	}
	if req.Amount <= 0 {
		return errors.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Currency) == "" {
		return errors.NewAppError(errors.InvalidInput, "currency is required")
	}
	return nil
}

// compensateRefund re-credits the source after a failed credit leg. Best
// effort: a refund failure is logged for manual reconciliation and never
// masks the original failure.
func (s *TransactionService) compensateRefund(ctx context.Context, credential, accountNumber string, amount int64, transactionID uuid.UUID) {
	refund := s.ledger.Credit(ctx, credential, accountNumber, amount)
	if refund.Success {
		metrics.CompensationsTotal.WithLabelValues("refund", "ok").Inc()
		s.logger.Info("Compensating refund applied",
			"account_number", accountNumber, "amount", amount, "transaction_id", transactionID)
		return
	}
	metrics.CompensationsTotal.WithLabelValues("refund", "failed").Inc()
	s.logger.Error("Compensating refund failed, manual reconciliation required",
		"account_number", accountNumber,
		"amount", amount,
		"transaction_id", transactionID,
		"message", refund.Message)
}

func (s *TransactionService) compensateUnlock(ctx context.Context, credential, accountNumber string) {
	if s.ledger.Unlock(ctx, credential, accountNumber) {
		metrics.CompensationsTotal.WithLabelValues("unlock", "ok").Inc()
		return
	}
	metrics.CompensationsTotal.WithLabelValues("unlock", "failed").Inc()
	s.logger.Error("Failed to unlock account during compensation", "account_number", accountNumber)
}

func (s *TransactionService) markFailed(record *domain.Transaction, reason string) {
	now := time.Now().UTC()
	if err := s.transactionRepo.UpdateOutcome(record.ID, domain.TransactionFailed, &now, &reason); err != nil {
		s.logger.Error("Failed to mark transaction failed", "transaction_id", record.ID, "error", err)
	}
	record.Status = domain.TransactionFailed
	record.CompletedAt = &now
	record.FailureReason = &reason
}

func operationDetails(accountNumber string, op domain.BalanceOperation, amount int64, outcome domain.OperationOutcome) *OperationDetails {
	status := "Completed"
	if !outcome.Success {
		status = "Failed"
	}
	return &OperationDetails{
		AccountNumber: accountNumber,
		OperationType: string(op),
		Amount:        amount,
		NewBalance:    outcome.NewBalance,
		Status:        status,
	}
}

func newReference() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "TRF-" + strings.ToUpper(raw[:12])
}

// GetTransaction returns nil when the record does not exist.
func (s *TransactionService) GetTransaction(id uuid.UUID) (*domain.Transaction, error) {
	return s.transactionRepo.GetTransactionByID(id)
}

func (s *TransactionService) GetAccountTransactions(accountID string, page, pageSize int) ([]domain.Transaction, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.ErrInvalidAccountID
	}
	if page <= 0 || pageSize <= 0 {
		return nil, errors.NewAppError(errors.InvalidInput, "page and page size must be positive")
	}
	return s.transactionRepo.ListByAccount(accountID, page, pageSize)
}

// GetFilteredAccountTransactions returns an account's history over a date
// range. The operation parameter selects the leg: "debit" for transfers the
// account funded, "credit" for transfers it received, anything else for both.
func (s *TransactionService) GetFilteredAccountTransactions(accountID, operation string, start, end time.Time) ([]domain.Transaction, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.ErrInvalidAccountID
	}
	if start.After(end) {
		return nil, errors.NewAppError(errors.InvalidInput, "start date cannot be after end date")
	}
	return s.transactionRepo.ListByAccountFiltered(accountID, domain.LegFilterFromOperation(operation), start, end)
}

// CancelTransaction marks a non-terminal record Cancelled. It reports false
// for a missing or already-terminal record and never reaches back into the
// ledger: cancellation is a bookkeeping operation, not a reversal.
func (s *TransactionService) CancelTransaction(id uuid.UUID) (bool, error) {
	tx, err := s.transactionRepo.GetTransactionByID(id)
	if err != nil {
		return false, err
	}
	if tx == nil || tx.Status.IsTerminal() {
		return false, nil
	}

	now := time.Now().UTC()
	reason := "Cancelled by user/request."
	if err := s.transactionRepo.UpdateOutcome(id, domain.TransactionCancelled, &now, &reason); err != nil {
		if appErr, ok := err.(*errors.AppError); ok && appErr.Code == errors.TransactionNotFound {
			// Lost the race against another terminal transition.
			return false, nil
		}
		return false, err
	}

	s.logger.Info("Transaction cancelled", "transaction_id", id)
	return true, nil
}
