// Package chainguard is a Go client for the Chainguard fraud-scoring API.
package chainguard

import (
	"fmt"
	"time"
)

// Transaction is a pending transaction submitted for scoring.
type Transaction struct {
	From      string `json:"from_address"`
	To        string `json:"to_address"`
	Value     string `json:"value"`
	Gas       int64  `json:"gas"`
	GasPrice  string `json:"gas_price"`
	InputData string `json:"input_data"`
	Nonce     int64  `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// ScoreResult is the verdict returned by the scoring endpoint.
type ScoreResult struct {
	IsFraud       bool   `json:"is_fraud"`
	RiskScore     int    `json:"risk_score"`
	Alert         string `json:"alert"`
	SenderHistory int64  `json:"sender_history"`
}

// Wallet is the per-address reputation record.
type Wallet struct {
	Address         string    `json:"address"`
	TotalTxSent     int64     `json:"total_tx_sent"`
	TotalTxReceived int64     `json:"total_tx_received"`
	LastActive      time.Time `json:"last_active"`
	IsKnownScam     bool      `json:"is_known_scam"`
}

// LogEntry is one scored transaction from the ledger.
type LogEntry struct {
	ID             string    `json:"id"`
	From           string    `json:"from_address"`
	To             string    `json:"to_address"`
	ValueWei       string    `json:"value_wei"`
	RiskScore      int       `json:"risk_score"`
	IsFlaggedFraud bool      `json:"is_flagged_fraud"`
	CreatedAt      time.Time `json:"created_at"`
}

// WalletHistory bundles a wallet record with its recent transactions.
type WalletHistory struct {
	Wallet             Wallet     `json:"wallet"`
	RecentTransactions []LogEntry `json:"recent_transactions"`
}

// NetworkStats aggregates ledger-wide totals.
type NetworkStats struct {
	TotalWallets      int64 `json:"total_wallets"`
	TotalTransactions int64 `json:"total_transactions"`
	FlaggedFraud      int64 `json:"flagged_fraud"`
	KnownScamWallets  int64 `json:"known_scam_wallets"`
}

// APIError is a structured error payload returned by the service.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chainguard: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a wallet-not-found response.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == "wallet_not_found"
}
