//go:build integration

package wallets

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	cleanup := func() {
		db.ExecContext(ctx, "DELETE FROM transactions")
		db.ExecContext(ctx, "DELETE FROM wallet_stats")
		db.Close()
	}

	return store, cleanup
}

func testEntry(from, to string) *LogEntry {
	return &LogEntry{
		ID:        "txn_" + from[2:10] + to[2:10],
		From:      from,
		To:        to,
		ValueWei:  "1000000000000000000",
		RiskScore: 42,
		CreatedAt: time.Now().UTC(),
	}
}

func TestPostgres_RecordAndReadCounts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	entry := testEntry(addrAlice, addrBob)
	require.NoError(t, store.RecordTransaction(ctx, entry))

	sent, received, err := store.ReadCounts(ctx, addrAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), received)

	sent, received, err = store.ReadCounts(ctx, addrBob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sent)
	assert.Equal(t, int64(1), received)
}

func TestPostgres_ReadCountsUnknownAddress(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	sent, received, err := store.ReadCounts(context.Background(), addrCarol)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Zero(t, received)

	_, err = store.Get(context.Background(), addrCarol)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestPostgres_ConcurrentIncrements(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			entry := testEntry(addrAlice, addrBob)
			entry.ID = entry.ID + string(rune('a'+i))
			_ = store.RecordTransaction(ctx, entry)
		}(i)
	}
	wg.Wait()

	sent, _, err := store.ReadCounts(ctx, addrAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(n), sent)
}

func TestPostgres_OppositeDirectionWritesDoNotDeadlock(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// A->B and B->A in parallel touch the same two rows. With ordered
	// locking every write commits; without it Postgres aborts one side
	// of each colliding pair with a deadlock error.
	const n = 25
	errs := make(chan error, 2*n)
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			entry := testEntry(addrAlice, addrBob)
			entry.ID = entry.ID + "-ab-" + string(rune('a'+i))
			errs <- store.RecordTransaction(ctx, entry)
		}(i)
		go func(i int) {
			defer wg.Done()
			entry := testEntry(addrBob, addrAlice)
			entry.ID = entry.ID + "-ba-" + string(rune('a'+i))
			errs <- store.RecordTransaction(ctx, entry)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sent, received, err := store.ReadCounts(ctx, addrAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(n), sent)
	assert.Equal(t, int64(n), received)
}

func TestPostgres_RecentTransactions(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := testEntry(addrAlice, addrBob)
		entry.ID = entry.ID + string(rune('a'+i))
		entry.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.RecordTransaction(ctx, entry))
	}

	entries, err := store.RecentTransactions(ctx, addrAlice, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].CreatedAt.After(entries[2].CreatedAt))

	all, err := store.RecentScored(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestPostgres_Stats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	fraud := testEntry(addrAlice, addrBob)
	fraud.RiskScore = 90
	fraud.IsFlaggedFraud = true
	require.NoError(t, store.RecordTransaction(ctx, fraud))
	require.NoError(t, store.RecordTransaction(ctx, testEntry(addrBob, addrCarol)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalWallets)
	assert.Equal(t, int64(2), stats.TotalTransactions)
	assert.Equal(t, int64(1), stats.FlaggedFraud)
}
