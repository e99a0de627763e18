// Package ledgerclient is the orchestrator's RPC adapter to the account
// ledger. It hides the HTTP transport behind typed, blocking calls and
// collapses every transport failure into a decidable outcome: the saga never
// sees a raw transport error, only success/failure plus a message.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"funds-transfer/internal/domain"
)

const genericFailureMessage = "Failed to update balance"

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}
}

type balanceUpdateRequest struct {
	AccountNumber string `json:"accountNumber"`
	Amount        int64  `json:"amount"`
	Operation     string `json:"operation"`
}

type balanceUpdateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Balance *int64 `json:"balance"`
}

type statusUpdateRequest struct {
	AccountNumber string `json:"accountNumber"`
	Status        string `json:"status"`
}

type statusUpdateResponse struct {
	Success bool `json:"success"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// Exists reports true only when the ledger answers 2xx for the account. A 404
// is an explicit absence; any other outcome (timeout, 5xx, refused connection)
// is unknown and treated as fail-safe false, never as "exists".
func (c *Client) Exists(ctx context.Context, credential, accountNumber string) bool {
	resp, _, err := c.do(ctx, credential, http.MethodGet, "/account/"+url.PathEscape(accountNumber), nil)
	if err != nil {
		c.logger.Warn("Account existence check failed", "account_number", accountNumber, "error", err)
		return false
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true
	}
	if resp.StatusCode != http.StatusNotFound {
		c.logger.Warn("Account existence check returned unexpected status",
			"account_number", accountNumber, "status", resp.StatusCode)
	}
	return false
}

// CheckSufficientBalance is advisory only: the ledger re-checks inside the
// debit itself, because this read is not atomic with the later mutation.
func (c *Client) CheckSufficientBalance(ctx context.Context, credential, accountNumber string, amount int64) bool {
	resp, body, err := c.do(ctx, credential, http.MethodGet, "/account/get-account-balance/"+url.PathEscape(accountNumber), nil)
	if err != nil {
		c.logger.Warn("Balance check failed", "account_number", accountNumber, "error", err)
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	var parsed balanceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Warn("Balance check returned unparseable body", "account_number", accountNumber, "error", err)
		return false
	}
	return parsed.Balance >= amount
}

func (c *Client) Debit(ctx context.Context, credential, accountNumber string, amount int64) domain.OperationOutcome {
	return c.updateBalance(ctx, credential, accountNumber, amount, domain.OperationDebit)
}

func (c *Client) Credit(ctx context.Context, credential, accountNumber string, amount int64) domain.OperationOutcome {
	return c.updateBalance(ctx, credential, accountNumber, amount, domain.OperationCredit)
}

func (c *Client) updateBalance(ctx context.Context, credential, accountNumber string, amount int64, operation domain.BalanceOperation) domain.OperationOutcome {
	reqBody := balanceUpdateRequest{
		AccountNumber: accountNumber,
		Amount:        amount,
		Operation:     string(operation),
	}

	resp, body, err := c.do(ctx, credential, http.MethodPut, "/account/update-balance/"+url.PathEscape(accountNumber), reqBody)
	if err != nil {
		c.logger.Error("Balance update call failed",
			"account_number", accountNumber, "operation", operation, "error", err)
		return domain.OperationOutcome{Success: false, Message: genericFailureMessage}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed balanceUpdateResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return domain.OperationOutcome{Success: true, Message: "Balance updated successfully"}
		}
		// The structured success flag is authoritative, not the status code: a
		// ledger answering 2xx with success=false still rejected the change.
		if !parsed.Success {
			message := parsed.Message
			if message == "" {
				message = genericFailureMessage
			}
			c.logger.Warn("Balance update reported failure",
				"account_number", accountNumber, "operation", operation, "message", message)
			return domain.OperationOutcome{Success: false, Message: message}
		}
		message := parsed.Message
		if message == "" {
			message = "Balance updated successfully"
		}
		return domain.OperationOutcome{Success: true, Message: message, NewBalance: parsed.Balance}
	}

	// Structured error bodies carry a specific rejection reason; anything
	// else collapses to the generic message.
	message := genericFailureMessage
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
	}

	c.logger.Warn("Balance update rejected",
		"account_number", accountNumber,
		"operation", operation,
		"status", resp.StatusCode,
		"message", message)
	return domain.OperationOutcome{Success: false, Message: message}
}

func (c *Client) Lock(ctx context.Context, credential, accountNumber string) bool {
	return c.updateStatus(ctx, credential, accountNumber, domain.StatusLocked)
}

func (c *Client) Unlock(ctx context.Context, credential, accountNumber string) bool {
	return c.updateStatus(ctx, credential, accountNumber, domain.StatusActive)
}

func (c *Client) updateStatus(ctx context.Context, credential, accountNumber string, status domain.AccountStatus) bool {
	reqBody := statusUpdateRequest{
		AccountNumber: accountNumber,
		Status:        string(status),
	}

	resp, body, err := c.do(ctx, credential, http.MethodPut, "/account/update-status/"+url.PathEscape(accountNumber), reqBody)
	if err != nil {
		c.logger.Error("Status update call failed",
			"account_number", accountNumber, "status", status, "error", err)
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Status update rejected",
			"account_number", accountNumber, "status", status, "http_status", resp.StatusCode)
		return false
	}

	var parsed statusUpdateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	return parsed.Success
}

// do issues one bounded call. The caller's credential is forwarded unchanged
// so the ledger authorizes the operation as the original end user.
func (c *Client) do(ctx context.Context, credential, method, path string, payload interface{}) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	return resp, body, nil
}
