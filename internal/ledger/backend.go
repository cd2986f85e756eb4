package ledger

import (
	"context"
	"sync"
)

// Backend persists committed state. Commit must be all-or-nothing.
type Backend interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Commit(ctx context.Context, changes []Change) error
	Close() error
}

// MemBackend keeps committed state in process memory. A Chain reopened on
// the same MemBackend sees the previous chain's committed state.
type MemBackend struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMemBackend() *MemBackend {
	return &MemBackend{items: make(map[string][]byte)}
}

func (m *MemBackend) Load(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out, nil
}

func (m *MemBackend) Commit(ctx context.Context, changes []Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range changes {
		if c.Delete {
			delete(m.items, c.Key)
			continue
		}
		m.items[c.Key] = c.Value
	}
	return nil
}

// Close is a no-op so a restarted chain can reopen the same backend.
func (m *MemBackend) Close() error {
	return nil
}
