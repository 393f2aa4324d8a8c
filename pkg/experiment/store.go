package experiment

import (
	"context"
	"sync"
	"time"
)

// Store persists experiments. Update is a compare-and-swap on Version: it
// must fail with ErrConcurrentModification when the stored version differs
// from expectedVersion.
type Store interface {
	Insert(ctx context.Context, exp *Experiment) error
	Update(ctx context.Context, exp *Experiment, expectedVersion int64) error
	Get(ctx context.Context, id string) (*Experiment, error)
	List(ctx context.Context) ([]*Experiment, error)
}

// Locker serializes lifecycle writes across processes. The returned release
// function must be safe to call once the lock has expired.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// MemoryStore is an in-memory Store, useful for tests and single-process
// deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{experiments: make(map[string]*Experiment)}
}

// Insert stores a new experiment or fails with ErrExperimentExists.
func (m *MemoryStore) Insert(_ context.Context, exp *Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.experiments[exp.ID]; exists {
		return ErrExperimentExists
	}
	m.experiments[exp.ID] = exp.Clone()
	return nil
}

// Update swaps in exp when the stored version equals expectedVersion.
func (m *MemoryStore) Update(_ context.Context, exp *Experiment, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.experiments[exp.ID]
	if !exists {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrConcurrentModification
	}
	m.experiments[exp.ID] = exp.Clone()
	return nil
}

// Get returns a copy of an experiment or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, id string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, exists := m.experiments[id]
	if !exists {
		return nil, ErrNotFound
	}
	return exp.Clone(), nil
}

// List returns copies of every stored experiment in no particular order.
func (m *MemoryStore) List(_ context.Context) ([]*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Experiment, 0, len(m.experiments))
	for _, exp := range m.experiments {
		out = append(out, exp.Clone())
	}
	return out, nil
}
