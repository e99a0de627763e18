package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funds-transfer/internal/domain"
	"funds-transfer/internal/errors"
)

// fakeLedger mimics the account ledger's observable behavior: conditional
// debits, unconditional credits, CAS locking.
type fakeLedger struct {
	balances map[string]int64
	statuses map[string]domain.AccountStatus
	calls    []string

	failLock         bool
	failUnlock       bool
	failCreditFor    map[string]bool
	panicOnCredit    bool
	creditFailureMsg string

	// afterDebit runs once the debit has been applied, before returning.
	afterDebit func()
	// creditCtxErr and unlockCtxErr record the context state each later
	// step observed.
	creditCtxErr error
	unlockCtxErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:         make(map[string]int64),
		statuses:         make(map[string]domain.AccountStatus),
		failCreditFor:    make(map[string]bool),
		creditFailureMsg: "Failed to update balance",
	}
}

func (f *fakeLedger) addAccount(number string, balance int64) {
	f.balances[number] = balance
	f.statuses[number] = domain.StatusActive
}

func (f *fakeLedger) Exists(ctx context.Context, credential, accountNumber string) bool {
	f.calls = append(f.calls, "exists:"+accountNumber)
	_, ok := f.balances[accountNumber]
	return ok
}

func (f *fakeLedger) CheckSufficientBalance(ctx context.Context, credential, accountNumber string, amount int64) bool {
	f.calls = append(f.calls, "check-balance:"+accountNumber)
	return f.balances[accountNumber] >= amount
}

func (f *fakeLedger) Debit(ctx context.Context, credential, accountNumber string, amount int64) domain.OperationOutcome {
	f.calls = append(f.calls, "debit:"+accountNumber)
	if f.statuses[accountNumber] == domain.StatusLocked {
		return domain.OperationOutcome{Success: false, Message: "Account is locked"}
	}
	if f.balances[accountNumber] < amount {
		return domain.OperationOutcome{Success: false, Message: "Insufficient balance"}
	}
	f.balances[accountNumber] -= amount
	nb := f.balances[accountNumber]
	if f.afterDebit != nil {
		f.afterDebit()
	}
	return domain.OperationOutcome{Success: true, Message: "Balance updated successfully", NewBalance: &nb}
}

func (f *fakeLedger) Credit(ctx context.Context, credential, accountNumber string, amount int64) domain.OperationOutcome {
	f.calls = append(f.calls, "credit:"+accountNumber)
	f.creditCtxErr = ctx.Err()
	if f.panicOnCredit {
		panic("ledger exploded")
	}
	if f.failCreditFor[accountNumber] {
		return domain.OperationOutcome{Success: false, Message: f.creditFailureMsg}
	}
	f.balances[accountNumber] += amount
	nb := f.balances[accountNumber]
	return domain.OperationOutcome{Success: true, Message: "Balance updated successfully", NewBalance: &nb}
}

func (f *fakeLedger) Lock(ctx context.Context, credential, accountNumber string) bool {
	f.calls = append(f.calls, "lock:"+accountNumber)
	if f.failLock {
		return false
	}
	if f.statuses[accountNumber] != domain.StatusActive {
		return false
	}
	f.statuses[accountNumber] = domain.StatusLocked
	return true
}

func (f *fakeLedger) Unlock(ctx context.Context, credential, accountNumber string) bool {
	f.calls = append(f.calls, "unlock:"+accountNumber)
	f.unlockCtxErr = ctx.Err()
	if f.failUnlock {
		return false
	}
	f.statuses[accountNumber] = domain.StatusActive
	return true
}

type fakeTransactionRepo struct {
	records map[uuid.UUID]*domain.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{records: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *fakeTransactionRepo) CreateTransaction(tx *domain.Transaction) error {
	clone := *tx
	r.records[tx.ID] = &clone
	return nil
}

func (r *fakeTransactionRepo) GetTransactionByID(id uuid.UUID) (*domain.Transaction, error) {
	tx, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	clone := *tx
	return &clone, nil
}

func (r *fakeTransactionRepo) UpdateOutcome(id uuid.UUID, status domain.TransactionStatus, completedAt *time.Time, failureReason *string) error {
	tx, ok := r.records[id]
	if !ok || tx.Status.IsTerminal() {
		return errors.ErrTransactionNotFound
	}
	tx.Status = status
	tx.CompletedAt = completedAt
	tx.FailureReason = failureReason
	return nil
}

func (r *fakeTransactionRepo) ListByAccount(accountID string, page, pageSize int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range r.records {
		if tx.FromAccountID == accountID || tx.ToAccountID == accountID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.After(out[j].InitiatedAt) })
	start := (page - 1) * pageSize
	if start >= len(out) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (r *fakeTransactionRepo) ListByAccountFiltered(accountID string, leg domain.LegFilter, start, end time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range r.records {
		match := false
		switch leg {
		case domain.LegDebit:
			match = tx.FromAccountID == accountID
		case domain.LegCredit:
			match = tx.ToAccountID == accountID
		default:
			match = tx.FromAccountID == accountID || tx.ToAccountID == accountID
		}
		if match && !tx.InitiatedAt.Before(start) && !tx.InitiatedAt.After(end) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.After(out[j].InitiatedAt) })
	return out, nil
}

func newTestService(ledger *fakeLedger, repo *fakeTransactionRepo) *TransactionService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTransactionService(ledger, repo, nil, 10*time.Second, logger)
}

const testCredential = "Bearer test-token"

func validRequest() *TransferRequest {
	return &TransferRequest{
		FromAccountID: "ACC-1",
		ToAccountID:   "ACC-2",
		Amount:        20000,
		Currency:      "USD",
		Description:   "rent",
	}
}

func TestTransferSuccess(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	ledger.addAccount("ACC-2", 10000)
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	result, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Transfer completed successfully", result.Message)

	// source.balance_after = before - amount, destination gains it
	assert.Equal(t, int64(30000), ledger.balances["ACC-1"])
	assert.Equal(t, int64(30000), ledger.balances["ACC-2"])
	assert.Equal(t, domain.StatusActive, ledger.statuses["ACC-1"])

	require.NotNil(t, result.Transaction)
	assert.Equal(t, domain.TransactionCompleted, result.Transaction.Status)
	assert.NotNil(t, result.Transaction.CompletedAt)
	assert.NotEmpty(t, result.Transaction.Reference)

	stored, err := repo.GetTransactionByID(result.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TransactionCompleted, stored.Status)

	require.NotNil(t, result.DebitOperation)
	require.NotNil(t, result.CreditOperation)
	assert.Equal(t, "Completed", result.DebitOperation.Status)
	assert.Equal(t, "Completed", result.CreditOperation.Status)
	assert.Equal(t, int64(30000), *result.DebitOperation.NewBalance)
	assert.Equal(t, int64(30000), *result.CreditOperation.NewBalance)

	assert.Equal(t, []string{
		"exists:ACC-1", "exists:ACC-2", "check-balance:ACC-1",
		"debit:ACC-1", "lock:ACC-1", "credit:ACC-2", "unlock:ACC-1",
	}, ledger.calls)
}

func TestTransferValidationFailuresMakeNoRemoteCalls(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TransferRequest)
	}{
		{"empty source", func(r *TransferRequest) { r.FromAccountID = "" }},
		{"empty destination", func(r *TransferRequest) { r.ToAccountID = " " }},
		{"same account", func(r *TransferRequest) { r.ToAccountID = r.FromAccountID }},
		{"zero amount", func(r *TransferRequest) { r.Amount = 0 }},
		{"negative amount", func(r *TransferRequest) { r.Amount = -100 }},
		{"missing currency", func(r *TransferRequest) { r.Currency = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			ledger.addAccount("ACC-1", 50000)
			ledger.addAccount("ACC-2", 10000)
			repo := newFakeTransactionRepo()
			svc := newTestService(ledger, repo)

			req := validRequest()
			tt.mutate(req)

			result, err := svc.Transfer(context.Background(), testCredential, req)

			assert.Error(t, err)
			assert.Nil(t, result)
			assert.Empty(t, ledger.calls, "no ledger call may be made")
			assert.Empty(t, repo.records, "no transaction record may be created")
		})
	}
}

func TestTransferMissingAccounts(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	_, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.AccountNotFound, appErr.Code)
	assert.Empty(t, repo.records)
	assert.Equal(t, int64(50000), ledger.balances["ACC-1"])
}

func TestTransferInsufficientBalance(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 5000) // 50.00
	ledger.addAccount("ACC-2", 10000)
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	_, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Insufficient balance")
	assert.Empty(t, repo.records, "rejected before any mutation, no record persisted")
	assert.Equal(t, int64(5000), ledger.balances["ACC-1"], "source balance unchanged")
	assert.Equal(t, int64(10000), ledger.balances["ACC-2"])
}

func TestTransferDebitRejectedWhileLocked(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	ledger.addAccount("ACC-2", 10000)
	// A concurrent transfer holds the lock.
	ledger.statuses["ACC-1"] = domain.StatusLocked
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	result, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Equal(t, "Account is locked", result.Message)
	assert.Equal(t, int64(50000), ledger.balances["ACC-1"])
	assert.Equal(t, int64(10000), ledger.balances["ACC-2"])

	require.NotNil(t, result.Transaction)
	assert.Equal(t, domain.TransactionFailed, result.Transaction.Status)
	require.NotNil(t, result.Transaction.FailureReason)
	assert.Equal(t, "Account is locked", *result.Transaction.FailureReason)
}

func TestTransferCreditFailureCompensates(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	ledger.addAccount("ACC-2", 10000)
	ledger.failCreditFor["ACC-2"] = true
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	result, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "Transfer failed")

	// Compensation re-credited the source and released the lock.
	assert.Equal(t, int64(50000), ledger.balances["ACC-1"])
	assert.Equal(t, int64(10000), ledger.balances["ACC-2"])
	assert.Equal(t, domain.StatusActive, ledger.statuses["ACC-1"], "source must end unlocked")

	// Both legs are reported for reconciliation.
	require.NotNil(t, result.DebitOperation)
	require.NotNil(t, result.CreditOperation)
	assert.Equal(t, "Completed", result.DebitOperation.Status)
	assert.Equal(t, "Failed", result.CreditOperation.Status)

	stored, _ := repo.GetTransactionByID(result.Transaction.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TransactionFailed, stored.Status)
}

func TestTransferLockFailureAfterDebitEscalates(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	ledger.addAccount("ACC-2", 10000)
	ledger.failLock = true
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	result, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "manual reconciliation")

	// The debit is deliberately not auto-reversed.
	assert.Equal(t, int64(30000), ledger.balances["ACC-1"])
	assert.Equal(t, int64(10000), ledger.balances["ACC-2"])

	stored, _ := repo.GetTransactionByID(result.Transaction.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TransactionFailed, stored.Status)
}

func TestTransferDetachesFromCallerCancellation(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	ledger.addAccount("ACC-2", 10000)
	ledger.failCreditFor["ACC-2"] = true
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	// The caller hangs up right after the debit lands. Compensation must
	// still run to completion on the saga's own deadline.
	ctx, cancel := context.WithCancel(context.Background())
	ledger.afterDebit = cancel

	result, err := svc.Transfer(ctx, testCredential, validRequest())

	require.NoError(t, err)
	require.False(t, result.Success)

	assert.NoError(t, ledger.creditCtxErr, "credit leg must see a live context")
	assert.NoError(t, ledger.unlockCtxErr, "compensating unlock must see a live context")

	// The refund and unlock both ran despite the cancelled caller.
	assert.Equal(t, int64(50000), ledger.balances["ACC-1"])
	assert.Equal(t, int64(10000), ledger.balances["ACC-2"])
	assert.Equal(t, domain.StatusActive, ledger.statuses["ACC-1"])

	stored, _ := repo.GetTransactionByID(result.Transaction.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TransactionFailed, stored.Status)
}

func TestTransferUnlockFailureDoesNotFailTransfer(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	ledger.addAccount("ACC-2", 10000)
	ledger.failUnlock = true
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	result, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.NoError(t, err)
	require.True(t, result.Success, "a stuck lock after funds moved is operational, not a transfer failure")

	assert.Equal(t, int64(30000), ledger.balances["ACC-1"])
	assert.Equal(t, int64(30000), ledger.balances["ACC-2"])

	stored, _ := repo.GetTransactionByID(result.Transaction.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TransactionCompleted, stored.Status)
}

func TestTransferPanicBecomesFailureResult(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("ACC-1", 50000)
	ledger.addAccount("ACC-2", 10000)
	ledger.panicOnCredit = true
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	result, err := svc.Transfer(context.Background(), testCredential, validRequest())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	// The record must not be stranded in Processing.
	var stored *domain.Transaction
	for _, tx := range repo.records {
		stored = tx
	}
	require.NotNil(t, stored)
	assert.Equal(t, domain.TransactionFailed, stored.Status)
}

func TestCancelTransaction(t *testing.T) {
	ledger := newFakeLedger()
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	id := uuid.New()
	repo.records[id] = &domain.Transaction{
		ID:          id,
		Status:      domain.TransactionProcessing,
		InitiatedAt: time.Now().UTC(),
	}

	cancelled, err := svc.CancelTransaction(id)
	require.NoError(t, err)
	assert.True(t, cancelled)

	stored, _ := repo.GetTransactionByID(id)
	assert.Equal(t, domain.TransactionCancelled, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "Cancelled by user/request.", *stored.FailureReason)

	// Cancel is idempotent in its rejection: the second call is a no-op.
	cancelled, err = svc.CancelTransaction(id)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestCancelTransactionTerminalOrMissing(t *testing.T) {
	ledger := newFakeLedger()
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	completedAt := time.Now().UTC()
	id := uuid.New()
	repo.records[id] = &domain.Transaction{
		ID:          id,
		Status:      domain.TransactionCompleted,
		InitiatedAt: completedAt.Add(-time.Minute),
		CompletedAt: &completedAt,
	}

	cancelled, err := svc.CancelTransaction(id)
	require.NoError(t, err)
	assert.False(t, cancelled)

	stored, _ := repo.GetTransactionByID(id)
	assert.Equal(t, domain.TransactionCompleted, stored.Status, "terminal record unchanged")

	cancelled, err = svc.CancelTransaction(uuid.New())
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestGetAccountTransactionsValidation(t *testing.T) {
	svc := newTestService(newFakeLedger(), newFakeTransactionRepo())

	_, err := svc.GetAccountTransactions("", 1, 20)
	assert.Error(t, err)

	_, err = svc.GetAccountTransactions("ACC-1", 0, 20)
	assert.Error(t, err)

	_, err = svc.GetAccountTransactions("ACC-1", 1, 0)
	assert.Error(t, err)
}

func TestGetFilteredAccountTransactions(t *testing.T) {
	ledger := newFakeLedger()
	repo := newFakeTransactionRepo()
	svc := newTestService(ledger, repo)

	now := time.Now().UTC()
	outgoing := &domain.Transaction{ID: uuid.New(), FromAccountID: "ACC-1", ToAccountID: "ACC-2", Status: domain.TransactionCompleted, InitiatedAt: now.Add(-time.Hour)}
	incoming := &domain.Transaction{ID: uuid.New(), FromAccountID: "ACC-3", ToAccountID: "ACC-1", Status: domain.TransactionCompleted, InitiatedAt: now.Add(-2 * time.Hour)}
	repo.records[outgoing.ID] = outgoing
	repo.records[incoming.ID] = incoming

	start := now.Add(-24 * time.Hour)

	debits, err := svc.GetFilteredAccountTransactions("ACC-1", "debit", start, now)
	require.NoError(t, err)
	require.Len(t, debits, 1)
	assert.Equal(t, outgoing.ID, debits[0].ID)

	credits, err := svc.GetFilteredAccountTransactions("ACC-1", "credit", start, now)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, incoming.ID, credits[0].ID)

	both, err := svc.GetFilteredAccountTransactions("ACC-1", "", start, now)
	require.NoError(t, err)
	assert.Len(t, both, 2)
	// Newest first.
	assert.Equal(t, outgoing.ID, both[0].ID)

	_, err = svc.GetFilteredAccountTransactions("ACC-1", "", now, start)
	assert.Error(t, err, "start after end must be rejected")
}
