package domain

// OperationOutcome is the result of a single remote ledger call. It is
// ephemeral: it drives the saga's branching and is echoed back to the caller
// for audit, but it is never persisted.
type OperationOutcome struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	NewBalance *int64 `json:"new_balance"`
}
