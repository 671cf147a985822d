package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory is the in-process backend: a map plus an insertion-order list used
// for oldest-first eviction.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) Check(_ context.Context, operation, key, fingerprint string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey(operation, key)]
	if !ok {
		return nil, false, nil
	}
	if rec.Fingerprint != fingerprint {
		return nil, false, conflictErr(operation, key)
	}
	return rec.Response, true, nil
}

func (m *Memory) Store(_ context.Context, operation, key, fingerprint string, response json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rk := recordKey(operation, key)
	if _, ok := m.records[rk]; !ok {
		m.order = append(m.order, rk)
	}
	m.records[rk] = &Record{
		Operation:   operation,
		Key:         key,
		Fingerprint: fingerprint,
		Response:    response,
		CreatedAt:   time.Now().UTC(),
	}

	if len(m.order) > maxRecords {
		for _, old := range m.order[:evictBatch] {
			delete(m.records, old)
		}
		m.order = m.order[evictBatch:]
	}
	return nil
}

// Len reports the current record count. Used by tests and the status surface.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
