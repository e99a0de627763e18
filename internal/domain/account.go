package domain

import (
	"fmt"
	"time"
)

// AccountStatus is the closed set of account states. Values are validated at
// the RPC boundary so downstream code never compares free-form strings.
type AccountStatus string

const (
	StatusActive    AccountStatus = "Active"
	StatusLocked    AccountStatus = "Locked"
	StatusSuspended AccountStatus = "Suspended"
	StatusClosed    AccountStatus = "Closed"
)

func ParseAccountStatus(s string) (AccountStatus, error) {
	switch AccountStatus(s) {
	case StatusActive, StatusLocked, StatusSuspended, StatusClosed:
		return AccountStatus(s), nil
	}
	return "", fmt.Errorf("unknown account status %q", s)
}

// BalanceOperation is the closed set of balance mutations the ledger accepts.
type BalanceOperation string

const (
	OperationDebit  BalanceOperation = "debit"
	OperationCredit BalanceOperation = "credit"
)

func ParseBalanceOperation(s string) (BalanceOperation, error) {
	switch BalanceOperation(s) {
	case OperationDebit, OperationCredit:
		return BalanceOperation(s), nil
	}
	return "", fmt.Errorf("unknown balance operation %q", s)
}

// Account balances are kept in minor currency units, so Balance is never
// fractional and never negative.
type Account struct {
	AccountNumber string        `json:"account_number"`
	UserID        string        `json:"user_id"`
	Balance       int64         `json:"balance"`
	Currency      string        `json:"currency"`
	Status        AccountStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type AccountRepository interface {
	CreateAccount(account *Account) error
	GetAccount(accountNumber string) (*Account, error)
	GetAccountForUpdate(accountNumber string) (*Account, error)
	ListAccounts() ([]Account, error)
	UpdateAccountBalance(accountNumber string, newBalance int64) error
	// UpdateAccountDetails overwrites the profile fields. Balance is not a
	// profile field; it only moves through UpdateAccountBalance.
	UpdateAccountDetails(accountNumber, userID, currency string, status AccountStatus) error
	// SetStatus overwrites the account status unconditionally.
	SetStatus(accountNumber string, status AccountStatus) (bool, error)
	// LockIfActive is a compare-and-set Active -> Locked; it reports false
	// when the account is missing or in any other state.
	LockIfActive(accountNumber string) (bool, error)
}
