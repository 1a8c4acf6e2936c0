package jobstatus

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryKV is an in-process KV for tests and single-node development. It
// mirrors the Valkey semantics: scored index, newest-first listing, ties
// broken by descending ID.
type MemoryKV struct {
	mu      sync.Mutex
	records map[string][]byte
	scores  map[string]float64
}

// NewMemoryKV returns an empty in-memory substrate.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		records: make(map[string][]byte),
		scores:  make(map[string]float64),
	}
}

// SetRecord stores value under id and indexes it at score. TTL is ignored.
func (m *MemoryKV) SetRecord(_ context.Context, id string, value []byte, score float64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	m.records[id] = buf
	m.scores[id] = score
	return nil
}

// GetRecord returns the stored value, or ErrNotFound.
func (m *MemoryKV) GetRecord(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

// DeleteRecord removes the value and index entry.
func (m *MemoryKV) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	delete(m.scores, id)
	return nil
}

// ListIDs returns IDs by descending score.
func (m *MemoryKV) ListIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.scores))
	for id := range m.scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := m.scores[ids[i]], m.scores[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] > ids[j]
	})
	return ids, nil
}
