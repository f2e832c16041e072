package models

import "time"

// Ledger transaction kinds
const (
	TxRegister = "register"
	TxRevoke   = "revoke"
)

// Ledger event types
const (
	EventRegistered    = "registered"
	EventRevoked       = "revoked"
	EventStatusUpdated = "status_updated"
)

// FeeEstimate represents the current network fee state for a transaction
type FeeEstimate struct {
	GasPrice uint64 `json:"gas_price"`
	GasLimit uint64 `json:"gas_limit"`
}

// Transaction represents a commitment transaction submitted to the ledger
type Transaction struct {
	Kind      string    `json:"kind"`
	Hashes    []string  `json:"hashes"`
	Owner     string    `json:"owner,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
	GasPrice  uint64    `json:"gas_price"`
	GasLimit  uint64    `json:"gas_limit"`
}

// TransactionRef identifies a submitted ledger transaction for one hash
type TransactionRef struct {
	TxID        string    `json:"tx_id"`
	Hash        string    `json:"hash"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CommitmentState represents the ledger's current state for a hash
type CommitmentState struct {
	Hash         string    `json:"hash"`
	Owner        string    `json:"owner"`
	RegisteredAt time.Time `json:"registered_at"`
	IsValid      bool      `json:"is_valid"`
}

// LedgerEvent represents one entry in a hash's on-ledger history
type LedgerEvent struct {
	Type      string    `json:"type"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}
