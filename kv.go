package medrex

import (
	"context"
	"sync"
)

// KV is the durable key-value medium behind a checkpoint [Store]. Values
// under a key form an append-only history, newest last; the store reads
// recent entries so it can fall back past a corrupt checkpoint.
//
// Implementations must be safe for concurrent use. The sqlitekv and pgkv
// subpackages provide durable backends; [MemoryKV] backs tests and
// single-shot jobs.
type KV interface {
	// Put appends a value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Recent returns up to n values for key, newest first. A key with no
	// values returns an empty slice, not an error.
	Recent(ctx context.Context, key string, n int) ([][]byte, error)

	// Prune deletes all but the newest keep values for key.
	Prune(ctx context.Context, key string, keep int) error
}

// MemoryKV is an in-process KV. It is safe for concurrent use and offers
// no durability.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][][]byte
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][][]byte)}
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), value...)
	m.data[key] = append(m.data[key], cp)
	return nil
}

func (m *MemoryKV) Recent(_ context.Context, key string, n int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.data[key]
	if n > len(vals) {
		n = len(vals)
	}
	out := make([][]byte, 0, n)
	for i := len(vals) - 1; i >= len(vals)-n; i-- {
		out = append(out, append([]byte(nil), vals[i]...))
	}
	return out, nil
}

func (m *MemoryKV) Prune(_ context.Context, key string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.data[key]
	if keep < 0 {
		keep = 0
	}
	if len(vals) > keep {
		m.data[key] = append([][]byte(nil), vals[len(vals)-keep:]...)
	}
	return nil
}

// Len reports the number of stored values for key. Intended for tests.
func (m *MemoryKV) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[key])
}
