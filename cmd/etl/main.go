// Command etl bulk-loads a historical transaction dataset into Postgres.
//
// The input CSV carries raw chain export columns (hash, from_address,
// to_address, value, block_timestamp, from_scam, to_scam). Two tables are
// populated in one transaction: the append-only transaction log and the
// aggregated per-wallet counters. Historical rows carry risk_score 0; only
// the live scoring path assigns real scores.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/etl -dataset Dataset.csv
package main

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/chainguard-ml/chainguard/internal/logging"
	"github.com/chainguard-ml/chainguard/internal/validation"
)

type txRow struct {
	hash      string
	from      string
	to        string
	valueWei  string
	createdAt time.Time
	fromScam  bool
	toScam    bool
}

func (r txRow) isFraud() bool {
	return r.fromScam || r.toScam
}

type walletAgg struct {
	sent        int64
	received    int64
	lastActive  time.Time
	isKnownScam bool
}

func main() {
	datasetPath := flag.String("dataset", "Dataset.csv", "path to the historical transaction CSV")
	flag.Parse()

	logger := logging.New("info", "text")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	rows, err := readDataset(*datasetPath)
	if err != nil {
		logger.Error("failed to read dataset", "path", *datasetPath, "error", err)
		os.Exit(1)
	}
	logger.Info("dataset loaded", "rows", len(rows))

	wallets := aggregateWallets(rows)
	logger.Info("wallets aggregated", "unique_wallets", len(wallets))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := load(db, rows, wallets); err != nil {
		logger.Error("import failed, all changes rolled back", "error", err)
		os.Exit(1)
	}

	logger.Info("import complete",
		"transactions", len(rows),
		"wallets", len(wallets),
	)
}

// readDataset parses the raw chain export. Unparseable values degrade to
// zero rather than aborting the import; a row missing an address is skipped.
func readDataset(path string) ([]txRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"hash", "from_address", "to_address", "value", "block_timestamp"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("dataset is missing column %q", required)
		}
	}

	var rows []txRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		from := validation.NormalizeAddress(record[col["from_address"]])
		to := validation.NormalizeAddress(record[col["to_address"]])
		if from == "0x" || to == "0x" {
			continue
		}

		rows = append(rows, txRow{
			hash:      record[col["hash"]],
			from:      from,
			to:        to,
			valueWei:  cleanWeiString(record[col["value"]]),
			createdAt: parseBlockTimestamp(record[col["block_timestamp"]]),
			fromScam:  flagSet(record, col, "from_scam"),
			toScam:    flagSet(record, col, "to_scam"),
		})
	}

	return rows, nil
}

// cleanWeiString converts raw value fields, including scientific notation
// like 1.5E+18, into plain integer strings. Anything unparseable becomes "0".
func cleanWeiString(raw string) string {
	f, _, err := big.ParseFloat(strings.TrimSpace(raw), 10, 256, big.ToNearestEven)
	if err != nil {
		return "0"
	}
	i, _ := f.Int(nil)
	return i.String()
}

// parseBlockTimestamp handles exports that suffix timestamps with " UTC"
// or a "+00:00" offset. Unparseable timestamps degrade to the zero time.
func parseBlockTimestamp(raw string) time.Time {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " UTC", "")
	s = strings.ReplaceAll(s, "+00:00", "")
	s = strings.TrimSpace(s)

	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func flagSet(record []string, col map[string]int, name string) bool {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return false
	}
	v := strings.TrimSpace(record[i])
	return v == "1" || strings.EqualFold(v, "true")
}

// aggregateWallets folds the transaction rows into per-address counters.
// A wallet is a known scam if it was ever flagged on either side.
func aggregateWallets(rows []txRow) map[string]*walletAgg {
	wallets := make(map[string]*walletAgg)

	get := func(addr string) *walletAgg {
		w, ok := wallets[addr]
		if !ok {
			w = &walletAgg{}
			wallets[addr] = w
		}
		return w
	}

	for _, row := range rows {
		sender := get(row.from)
		sender.sent++
		if row.createdAt.After(sender.lastActive) {
			sender.lastActive = row.createdAt
		}

		receiver := get(row.to)
		receiver.received++
		if row.createdAt.After(receiver.lastActive) {
			receiver.lastActive = row.createdAt
		}

		if row.fromScam {
			sender.isKnownScam = true
		}
		if row.toScam {
			receiver.isKnownScam = true
		}
	}

	return wallets
}

// load bulk-inserts both tables in a single transaction via COPY.
func load(db *sql.DB, rows []txRow, wallets map[string]*walletAgg) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	txStmt, err := tx.Prepare(pq.CopyIn("transactions",
		"id", "from_address", "to_address", "value_wei", "risk_score", "is_flagged_fraud", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare transactions copy: %w", err)
	}
	for _, row := range rows {
		// Historical rows were never scored live.
		if _, err := txStmt.Exec(row.hash, row.from, row.to, row.valueWei, 0, row.isFraud(), row.createdAt); err != nil {
			return fmt.Errorf("copy transaction %s: %w", row.hash, err)
		}
	}
	if _, err := txStmt.Exec(); err != nil {
		return fmt.Errorf("flush transactions copy: %w", err)
	}
	if err := txStmt.Close(); err != nil {
		return err
	}

	wStmt, err := tx.Prepare(pq.CopyIn("wallet_stats",
		"address", "total_tx_sent", "total_tx_received", "last_active", "is_known_scam"))
	if err != nil {
		return fmt.Errorf("prepare wallet_stats copy: %w", err)
	}
	for addr, w := range wallets {
		if _, err := wStmt.Exec(addr, w.sent, w.received, w.lastActive, w.isKnownScam); err != nil {
			return fmt.Errorf("copy wallet %s: %w", addr, err)
		}
	}
	if _, err := wStmt.Exec(); err != nil {
		return fmt.Errorf("flush wallet_stats copy: %w", err)
	}
	if err := wStmt.Close(); err != nil {
		return err
	}

	return tx.Commit()
}
