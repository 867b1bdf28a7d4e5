package wallets

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store in memory for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	stats   map[string]*Record
	entries []*LogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]*Record)}
}

func (m *MemoryStore) ReadCounts(ctx context.Context, address string) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.stats[address]
	if !ok {
		return 0, 0, nil
	}
	return rec.TotalTxSent, rec.TotalTxReceived, nil
}

func (m *MemoryStore) Get(ctx context.Context, address string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.stats[address]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *rec
	return &cp, nil
}

// RecordTransaction applies both counter updates and the log append under
// one lock, so readers never observe a partial write.
func (m *MemoryStore) RecordTransaction(ctx context.Context, entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender := m.upsertLocked(entry.From)
	sender.TotalTxSent++
	sender.LastActive = entry.CreatedAt

	receiver := m.upsertLocked(entry.To)
	receiver.TotalTxReceived++
	receiver.LastActive = entry.CreatedAt

	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryStore) upsertLocked(address string) *Record {
	rec, ok := m.stats[address]
	if !ok {
		rec = &Record{Address: address}
		m.stats[address] = rec
	}
	return rec
}

func (m *MemoryStore) RecentTransactions(ctx context.Context, address string, limit int) ([]*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*LogEntry
	for _, e := range m.entries {
		if e.From == address || e.To == address {
			matched = append(matched, e)
		}
	}
	return newestFirst(matched, limit), nil
}

func (m *MemoryStore) RecentScored(ctx context.Context, limit int) ([]*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return newestFirst(m.entries, limit), nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*NetworkStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &NetworkStats{
		TotalWallets:      int64(len(m.stats)),
		TotalTransactions: int64(len(m.entries)),
	}
	for _, rec := range m.stats {
		if rec.IsKnownScam {
			stats.KnownScamWallets++
		}
	}
	for _, e := range m.entries {
		if e.IsFlaggedFraud {
			stats.FlaggedFraud++
		}
	}
	return stats, nil
}

// MarkKnownScam flags an address, creating the record if needed. Used by
// the historical import and by tests.
func (m *MemoryStore) MarkKnownScam(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(address).IsKnownScam = true
}

func newestFirst(entries []*LogEntry, limit int) []*LogEntry {
	out := make([]*LogEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
