// Package wallets maintains per-address reputation counters and the
// append-only log of scored transactions.
//
// Wallet rows are the only shared mutable state in the service. Counter
// updates go through a single atomic upsert per call; the increment is
// expressed at the storage layer, never as an application-level
// read-modify-write, so concurrent transactions touching the same address
// cannot lose updates.
package wallets

import (
	"context"
	"errors"
	"time"

	"github.com/chainguard-ml/chainguard/internal/idgen"
	"github.com/chainguard-ml/chainguard/internal/validation"
)

var (
	// ErrWalletNotFound is returned by lookups for unknown addresses.
	// Lookups never create records as a side effect.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Record is the per-address reputation row. Created lazily on first scored
// transaction; never deleted by the live system. IsKnownScam is set only by
// the offline dataset import, never by the scoring path.
type Record struct {
	Address         string    `json:"address"`
	TotalTxSent     int64     `json:"total_tx_sent"`
	TotalTxReceived int64     `json:"total_tx_received"`
	LastActive      time.Time `json:"last_active"`
	IsKnownScam     bool      `json:"is_known_scam"`
}

// LogEntry is one scored transaction, written exactly once per request after
// the response has been sent. Value stays a wei string to avoid precision
// loss on 256-bit amounts.
type LogEntry struct {
	ID             string    `json:"id"`
	From           string    `json:"from_address"`
	To             string    `json:"to_address"`
	ValueWei       string    `json:"value_wei"`
	RiskScore      int       `json:"risk_score"`
	IsFlaggedFraud bool      `json:"is_flagged_fraud"`
	CreatedAt      time.Time `json:"created_at"`
}

// NetworkStats aggregates ledger-wide totals for the public stats endpoint.
type NetworkStats struct {
	TotalWallets      int64 `json:"total_wallets"`
	TotalTransactions int64 `json:"total_transactions"`
	FlaggedFraud      int64 `json:"flagged_fraud"`
	KnownScamWallets  int64 `json:"known_scam_wallets"`
}

// Store persists wallet counters and the transaction log.
type Store interface {
	// ReadCounts returns the sender/receiver counters for an address, or
	// (0, 0) if no record exists. Reads reflect a consistent, possibly
	// stale, snapshot and never block on concurrent writers.
	ReadCounts(ctx context.Context, address string) (sent, received int64, err error)

	// Get returns the wallet record, or ErrWalletNotFound.
	Get(ctx context.Context, address string) (*Record, error)

	// RecordTransaction applies one scored transaction as a single atomic
	// unit: sender upsert (+1 sent), receiver upsert (+1 received), and the
	// log insert all take effect together or not at all.
	RecordTransaction(ctx context.Context, entry *LogEntry) error

	// RecentTransactions returns up to limit log entries touching the
	// address, newest first.
	RecentTransactions(ctx context.Context, address string, limit int) ([]*LogEntry, error)

	// RecentScored returns up to limit log entries across all addresses,
	// newest first.
	RecentScored(ctx context.Context, limit int) ([]*LogEntry, error)

	// Stats returns ledger-wide totals.
	Stats(ctx context.Context) (*NetworkStats, error)
}

// Service wraps a Store with address normalization and ID assignment.
type Service struct {
	store Store
}

// NewService creates a wallet ledger service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ReadCounts returns the send/receive counters for an address, defaulting to
// (0, 0) for unknown addresses.
func (s *Service) ReadCounts(ctx context.Context, address string) (int64, int64, error) {
	return s.store.ReadCounts(ctx, validation.NormalizeAddress(address))
}

// RecordTransaction books one scored transaction into the ledger.
// Each call legitimately increments counters; the operation is not
// idempotent by design.
func (s *Service) RecordTransaction(ctx context.Context, from, to, valueWei string, riskScore int, isFraud bool) error {
	entry := &LogEntry{
		ID:             idgen.WithPrefix("txn_"),
		From:           validation.NormalizeAddress(from),
		To:             validation.NormalizeAddress(to),
		ValueWei:       valueWei,
		RiskScore:      riskScore,
		IsFlaggedFraud: isFraud,
		CreatedAt:      time.Now().UTC(),
	}
	return s.store.RecordTransaction(ctx, entry)
}

// Lookup returns the wallet record plus its most recent transactions,
// newest first. Returns ErrWalletNotFound for unknown addresses.
func (s *Service) Lookup(ctx context.Context, address string, limit int) (*Record, []*LogEntry, error) {
	addr := validation.NormalizeAddress(address)

	record, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, nil, err
	}

	if limit <= 0 {
		limit = 10
	}
	entries, err := s.store.RecentTransactions(ctx, addr, limit)
	if err != nil {
		return nil, nil, err
	}
	return record, entries, nil
}

// Feed returns the most recently scored transactions across all addresses.
func (s *Service) Feed(ctx context.Context, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.RecentScored(ctx, limit)
}

// Stats returns ledger-wide totals.
func (s *Service) Stats(ctx context.Context) (*NetworkStats, error) {
	return s.store.Stats(ctx)
}
