package flags

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// Provider manages static flag definitions.
type Provider interface {
	// GetFlag returns a copy of the flag or ErrFlagNotFound.
	GetFlag(ctx context.Context, name string) (*Flag, error)

	// ListFlags returns all flags, optionally filtered to those carrying any of tags.
	ListFlags(ctx context.Context, tags ...string) ([]*Flag, error)

	CreateFlag(ctx context.Context, flag *Flag) error
	UpdateFlag(ctx context.Context, flag *Flag) error
	DeleteFlag(ctx context.Context, name string) error
}

// MemoryProvider keeps flags in memory.
type MemoryProvider struct {
	mu    sync.RWMutex
	flags map[string]*Flag
	now   func() time.Time
}

// NewMemoryProvider creates a provider seeded with initial flags.
func NewMemoryProvider(initial ...*Flag) (*MemoryProvider, error) {
	p := &MemoryProvider{
		flags: make(map[string]*Flag, len(initial)),
		now:   time.Now,
	}
	for _, f := range initial {
		if f == nil {
			continue
		}
		if err := p.CreateFlag(context.Background(), f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// GetFlag returns a copy of the named flag or ErrFlagNotFound.
func (m *MemoryProvider) GetFlag(_ context.Context, name string) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[name]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return f.clone(), nil
}

// ListFlags returns copies of all flags sorted by name. With tags, only
// flags carrying at least one of them are returned.
func (m *MemoryProvider) ListFlags(_ context.Context, tags ...string) ([]*Flag, error) {
	m.mu.RLock()
	out := make([]*Flag, 0, len(m.flags))
	for _, f := range m.flags {
		if len(tags) == 0 || slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(f.Tags, t) }) {
			out = append(out, f.clone())
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Flag) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// CreateFlag stores a new flag. It fails with ErrFlagExists if the name is taken.
func (m *MemoryProvider) CreateFlag(_ context.Context, flag *Flag) error {
	if err := validateFlag(flag); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.flags[flag.Name]; exists {
		return ErrFlagExists
	}
	stored := flag.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	stored.UpdatedAt = stored.CreatedAt
	m.flags[flag.Name] = stored
	return nil
}

// UpdateFlag replaces a flag, keeping its creation time.
func (m *MemoryProvider) UpdateFlag(_ context.Context, flag *Flag) error {
	if err := validateFlag(flag); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.flags[flag.Name]
	if !ok {
		return ErrFlagNotFound
	}
	stored := flag.clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = m.now()
	m.flags[flag.Name] = stored
	return nil
}

// DeleteFlag removes a flag.
func (m *MemoryProvider) DeleteFlag(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flags[name]; !ok {
		return ErrFlagNotFound
	}
	delete(m.flags, name)
	return nil
}

func validateFlag(flag *Flag) error {
	if flag == nil {
		return errors.Join(ErrInvalidFlag, errors.New("flag cannot be nil"))
	}
	if flag.Name == "" {
		return errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
	}
	return nil
}
