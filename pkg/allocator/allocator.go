package allocator

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/logger"
)

// bucket is one variant's slice of the cumulative weight line.
type bucket struct {
	upper   float64
	variant experiment.Variant
}

// table is the sorted walk for one experiment version.
type table struct {
	version int64
	buckets []bucket
}

func buildTable(exp *experiment.Experiment) table {
	sorted := slices.Clone(exp.Variants)
	slices.SortFunc(sorted, func(a, b experiment.Variant) int { return cmp.Compare(a.ID, b.ID) })

	t := table{version: exp.Version}
	cumulative := 0.0
	for _, v := range sorted {
		if v.Weight <= 0 {
			continue
		}
		cumulative += float64(v.Weight) / 100
		t.buckets = append(t.buckets, bucket{upper: cumulative, variant: v})
	}
	return t
}

func (t table) pick(point float64) (experiment.Variant, bool) {
	if len(t.buckets) == 0 {
		return experiment.Variant{}, false
	}
	for _, b := range t.buckets {
		if point < b.upper {
			return b.variant, true
		}
	}
	// Float rounding can leave the cumulative sum just under 1.
	return t.buckets[len(t.buckets)-1].variant, true
}

// Pick deterministically selects a variant for a participant. It does not
// look at the experiment state.
func Pick(exp *experiment.Experiment, participantID string) (experiment.Variant, bool) {
	if len(exp.Variants) == 1 {
		return exp.Variants[0], true
	}
	return buildTable(exp).pick(Point(exp.ID, participantID))
}

// Allocator resolves assignments against the registry and caches the sorted
// walk of each experiment version.
type Allocator struct {
	reader experiment.Reader
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[string]table
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger sets the allocator logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an allocator reading experiments from reader.
func New(reader experiment.Reader, opts ...Option) *Allocator {
	a := &Allocator{
		reader: reader,
		logger: logger.Discard(),
		tables: make(map[string]table),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assign returns the variant id for a participant. Experiments that are no
// longer splitting traffic return the variant they serve to everyone: the
// promoted one once concluded, the control otherwise.
func (a *Allocator) Assign(ctx context.Context, experimentID, participantID string) (string, error) {
	v, err := a.AssignVariant(ctx, experimentID, participantID)
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

// AssignVariant is Assign returning the whole variant, params included.
func (a *Allocator) AssignVariant(ctx context.Context, experimentID, participantID string) (experiment.Variant, error) {
	if participantID == "" {
		return experiment.Variant{}, ErrEmptyParticipant
	}
	exp, ok := a.reader.Lookup(experimentID)
	if !ok {
		return experiment.Variant{}, experiment.ErrNotFound
	}
	return a.assign(ctx, exp, participantID)
}

// AssignExperiment assigns against an experiment the caller already looked up.
func (a *Allocator) AssignExperiment(ctx context.Context, exp *experiment.Experiment, participantID string) (experiment.Variant, error) {
	if participantID == "" {
		return experiment.Variant{}, ErrEmptyParticipant
	}
	return a.assign(ctx, exp, participantID)
}

func (a *Allocator) assign(ctx context.Context, exp *experiment.Experiment, participantID string) (experiment.Variant, error) {
	if !exp.State.Assigning() {
		v, ok := exp.ServedVariant()
		if !ok {
			return experiment.Variant{}, ErrNoVariants
		}
		return v, nil
	}
	if len(exp.Variants) == 1 {
		return exp.Variants[0], nil
	}

	v, ok := a.tableFor(exp).pick(Point(exp.ID, participantID))
	if !ok {
		a.logger.WarnContext(ctx, "experiment has no assignable variant", logger.ExperimentID(exp.ID))
		return experiment.Variant{}, ErrNoVariants
	}
	return v, nil
}

func (a *Allocator) tableFor(exp *experiment.Experiment) table {
	a.mu.RLock()
	t, ok := a.tables[exp.ID]
	a.mu.RUnlock()
	if ok && t.version == exp.Version {
		return t
	}

	t = buildTable(exp)
	a.mu.Lock()
	if cur, ok := a.tables[exp.ID]; !ok || cur.version <= t.version {
		a.tables[exp.ID] = t
	}
	a.mu.Unlock()
	return t
}
