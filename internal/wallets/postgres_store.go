package wallets

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet tables. Production deployments run the goose
// migrations instead; this keeps development and tests self-contained.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallet_stats (
			address            VARCHAR(42) PRIMARY KEY,
			total_tx_sent      BIGINT NOT NULL DEFAULT 0,
			total_tx_received  BIGINT NOT NULL DEFAULT 0,
			last_active        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_known_scam      BOOLEAN NOT NULL DEFAULT FALSE,
			CONSTRAINT chk_sent_nonneg     CHECK (total_tx_sent >= 0),
			CONSTRAINT chk_received_nonneg CHECK (total_tx_received >= 0)
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id                VARCHAR(66) PRIMARY KEY,
			from_address      VARCHAR(42) NOT NULL,
			to_address        VARCHAR(42) NOT NULL,
			value_wei         TEXT NOT NULL,
			risk_score        INTEGER NOT NULL,
			is_flagged_fraud  BOOLEAN NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_address);
		CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_address);
		CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at DESC);
	`)
	return err
}

// ReadCounts returns the counters for an address, or (0, 0) when absent.
// Plain row read: MVCC gives a consistent snapshot without blocking writers.
func (p *PostgresStore) ReadCounts(ctx context.Context, address string) (int64, int64, error) {
	var sent, received int64
	err := p.db.QueryRowContext(ctx, `
		SELECT total_tx_sent, total_tx_received
		FROM wallet_stats WHERE address = $1
	`, address).Scan(&sent, &received)

	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return sent, received, nil
}

// Get returns the wallet record, or ErrWalletNotFound.
func (p *PostgresStore) Get(ctx context.Context, address string) (*Record, error) {
	rec := &Record{Address: address}
	err := p.db.QueryRowContext(ctx, `
		SELECT total_tx_sent, total_tx_received, last_active, is_known_scam
		FROM wallet_stats WHERE address = $1
	`, address).Scan(&rec.TotalTxSent, &rec.TotalTxReceived, &rec.LastActive, &rec.IsKnownScam)

	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

const senderUpsert = `
	INSERT INTO wallet_stats (address, total_tx_sent, total_tx_received, last_active)
	VALUES ($1, 1, 0, $2)
	ON CONFLICT (address) DO UPDATE SET
		total_tx_sent = wallet_stats.total_tx_sent + 1,
		last_active   = $2
`

const receiverUpsert = `
	INSERT INTO wallet_stats (address, total_tx_sent, total_tx_received, last_active)
	VALUES ($1, 0, 1, $2)
	ON CONFLICT (address) DO UPDATE SET
		total_tx_received = wallet_stats.total_tx_received + 1,
		last_active       = $2
`

// RecordTransaction applies both counter upserts and the log insert in one
// transaction. The increments are conditional upserts evaluated inside the
// database, so concurrent calls for the same address serialize there and
// never lose updates. The two wallet rows are locked in lexicographic
// address order; otherwise concurrent A->B and B->A writes take the row
// locks in opposite orders and one of them deadlocks.
func (p *PostgresStore) RecordTransaction(ctx context.Context, entry *LogEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upserts := []struct {
		role    string
		address string
		query   string
	}{
		{"sender", entry.From, senderUpsert},
		{"receiver", entry.To, receiverUpsert},
	}
	if upserts[1].address < upserts[0].address {
		upserts[0], upserts[1] = upserts[1], upserts[0]
	}

	for _, u := range upserts {
		if _, err := tx.ExecContext(ctx, u.query, u.address, entry.CreatedAt); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", u.role, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, from_address, to_address, value_wei, risk_score, is_flagged_fraud, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.From, entry.To, entry.ValueWei, entry.RiskScore, entry.IsFlaggedFraud, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	return tx.Commit()
}

// RecentTransactions returns up to limit entries touching the address,
// newest first.
func (p *PostgresStore) RecentTransactions(ctx context.Context, address string, limit int) ([]*LogEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, from_address, to_address, value_wei, risk_score, is_flagged_fraud, created_at
		FROM transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RecentScored returns up to limit entries across all addresses, newest first.
func (p *PostgresStore) RecentScored(ctx context.Context, limit int) ([]*LogEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, from_address, to_address, value_wei, risk_score, is_flagged_fraud, created_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Stats returns ledger-wide totals.
func (p *PostgresStore) Stats(ctx context.Context) (*NetworkStats, error) {
	stats := &NetworkStats{}
	err := p.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM wallet_stats),
			(SELECT COUNT(*) FROM wallet_stats WHERE is_known_scam),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM transactions WHERE is_flagged_fraud)
	`).Scan(&stats.TotalWallets, &stats.KnownScamWallets, &stats.TotalTransactions, &stats.FlaggedFraud)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func scanEntries(rows *sql.Rows) ([]*LogEntry, error) {
	var entries []*LogEntry
	for rows.Next() {
		e := &LogEntry{}
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.ValueWei, &e.RiskScore, &e.IsFlaggedFraud, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
