package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"moneymind/internal/core"
)

// MemoryStore keeps ledger documents in process. Documents are stored
// encoded so callers never share state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	version map[string]int64
	exports []ExportRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string][]byte),
		version: make(map[string]int64),
	}
}

func (m *MemoryStore) Load(_ context.Context, owner string) (core.Snapshot, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[owner]
	if !ok {
		return core.Snapshot{}, 0, ErrNotFound
	}
	var snap core.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return core.Snapshot{}, 0, fmt.Errorf("decode ledger document: %w", err)
	}
	return snap, m.version[owner], nil
}

func (m *MemoryStore) Save(_ context.Context, owner string, snap core.Snapshot, expected int64) (int64, error) {
	doc, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode ledger document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version[owner] != expected {
		return 0, fmt.Errorf("%w: owner %s, expected version %d", ErrVersionConflict, owner, expected)
	}
	m.docs[owner] = doc
	m.version[owner]++
	return m.version[owner], nil
}

func (m *MemoryStore) Version(_ context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version[owner], nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) RecordExport(_ context.Context, rec ExportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append(m.exports, rec)
	return nil
}

func (m *MemoryStore) ListExports(_ context.Context, owner string, limit int) ([]ExportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ExportRecord
	for i := len(m.exports) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.exports[i].Owner == owner {
			out = append(out, m.exports[i])
		}
	}
	return out, nil
}
