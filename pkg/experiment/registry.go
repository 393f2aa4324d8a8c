package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/abkit/pkg/logger"
)

// Reader is the read-only view of the registry used by hot-path components.
// Returned experiments are shared snapshots and must not be modified.
type Reader interface {
	Lookup(id string) (*Experiment, bool)
	LookupFlag(flag string) (*Experiment, bool)
}

// Registry owns experiment definitions and their lifecycle. Reads are served
// from an in-memory copy-on-write snapshot; writes go through the lifecycle
// table, a per-experiment lock and a versioned compare-and-swap on the Store.
type Registry struct {
	store      Store
	locker     Locker
	lockTTL    time.Duration
	maxRetries int
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.RWMutex
	cache    map[string]*Experiment
	createMu sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLocker adds a distributed lock around lifecycle writes.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(r *Registry) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxRetries bounds how often a write is retried after losing a CAS race.
func WithMaxRetries(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// NewRegistry creates a registry backed by store. Call Load to warm the read
// model from a persistent store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		lockTTL:    10 * time.Second,
		maxRetries: 3,
		now:        time.Now,
		logger:     logger.Discard(),
		cache:      make(map[string]*Experiment),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the read model with the store's contents.
func (r *Registry) Load(ctx context.Context) error {
	all, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load experiments: %w", err)
	}
	cache := make(map[string]*Experiment, len(all))
	for _, exp := range all {
		cache[exp.ID] = exp
	}
	r.mu.Lock()
	r.cache = cache
	r.mu.Unlock()
	r.logger.InfoContext(ctx, "experiment registry loaded", slog.Int("experiments", len(cache)))
	return nil
}

// Refresh merges the store's contents into the read model and returns how
// many experiments changed. An entry is replaced only when the store holds a
// newer version, so a refresh never rolls back a write made by this process.
// Instances sharing a persistent store call it to observe each other's
// lifecycle changes.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh experiments: %w", err)
	}
	changed := 0
	r.mu.Lock()
	for _, exp := range all {
		if cur, ok := r.cache[exp.ID]; ok && cur.Version >= exp.Version {
			continue
		}
		r.cache[exp.ID] = exp
		changed++
	}
	r.mu.Unlock()
	if changed > 0 {
		r.logger.DebugContext(ctx, "experiment registry refreshed", logger.Count("changed", changed))
	}
	return changed, nil
}

// Watch calls Refresh every interval until ctx is cancelled. Refresh
// failures are logged and retried on the next tick.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "experiment registry refresh failed", logger.Error(err))
			}
		}
	}
}

// Lookup returns the shared snapshot of an experiment.
func (r *Registry) Lookup(id string) (*Experiment, bool) {
	r.mu.RLock()
	exp, ok := r.cache[id]
	r.mu.RUnlock()
	return exp, ok
}

// LookupFlag returns the experiment driving a flag. A running or concluding
// experiment wins over a finished one, and the most recently finished wins
// over older ones. Drafts are returned only when nothing else links the flag.
func (r *Registry) LookupFlag(flag string) (*Experiment, bool) {
	if flag == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Experiment
	for _, exp := range r.cache {
		if exp.Flag != flag {
			continue
		}
		if best == nil || flagRank(exp) > flagRank(best) ||
			(flagRank(exp) == flagRank(best) && exp.EndedAt.After(best.EndedAt)) {
			best = exp
		}
	}
	return best, best != nil
}

func flagRank(exp *Experiment) int {
	switch {
	case exp.State.Assigning():
		return 2
	case exp.State.Finished():
		return 1
	default:
		return 0
	}
}

// ByFlag returns a private copy of the experiment driving a flag.
func (r *Registry) ByFlag(_ context.Context, flag string) (*Experiment, error) {
	exp, ok := r.LookupFlag(flag)
	if !ok {
		return nil, ErrNotFound
	}
	return exp.Clone(), nil
}

// Get returns a private copy of an experiment.
func (r *Registry) Get(_ context.Context, id string) (*Experiment, error) {
	exp, ok := r.Lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return exp.Clone(), nil
}

// List returns private copies of all experiments, optionally filtered by
// state, sorted by id.
func (r *Registry) List(_ context.Context, states ...State) []*Experiment {
	r.mu.RLock()
	out := make([]*Experiment, 0, len(r.cache))
	for _, exp := range r.cache {
		if len(states) == 0 || slices.Contains(states, exp.State) {
			out = append(out, exp.Clone())
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Experiment) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Create registers a new draft experiment.
func (r *Registry) Create(ctx context.Context, exp *Experiment) (*Experiment, error) {
	if exp == nil {
		return nil, Validate(nil)
	}
	next := exp.Clone()
	next.State = StateDraft
	next.Pending, next.Outcome = nil, nil
	Normalize(next)
	if err := Validate(next); err != nil {
		return nil, err
	}

	now := r.now()
	next.Version = 1
	next.CreatedAt, next.UpdatedAt = now, now
	next.StartedAt, next.EndedAt = time.Time{}, time.Time{}

	r.createMu.Lock()
	defer r.createMu.Unlock()
	if r.locker != nil {
		release, err := r.locker.Lock(ctx, "experiment-create", r.lockTTL)
		if err != nil {
			return nil, errors.Join(ErrLockUnavailable, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.WarnContext(ctx, "failed to release create lock", logger.Error(err))
			}
		}()
	}
	// Another instance may have created an experiment on the same flag.
	if _, err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	if err := r.checkCreate(next); err != nil {
		return nil, err
	}
	if err := r.store.Insert(ctx, next); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[next.ID] = next
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "experiment created",
		logger.ExperimentID(next.ID),
		logger.Flag(next.Flag),
		slog.Int("variants", len(next.Variants)))
	return next.Clone(), nil
}

func (r *Registry) checkCreate(next *Experiment) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, exists := r.cache[next.ID]; exists {
		return ErrExperimentExists
	}
	if next.Flag == "" {
		return nil
	}
	for _, other := range r.cache {
		if other.Flag == next.Flag && !other.State.Finished() {
			return fmt.Errorf("%w: %s is linked to %s", ErrFlagInUse, next.Flag, other.ID)
		}
	}
	return nil
}

// UpdateVariants replaces the variant list of a draft experiment. Once an
// experiment has started its variants and weights are frozen and the call
// fails with ErrImmutableExperiment, leaving the registry unchanged.
func (r *Registry) UpdateVariants(ctx context.Context, id string, variants []Variant) (*Experiment, error) {
	return r.mutate(ctx, id, "update_variants", func(exp *Experiment) error {
		if exp.State != StateDraft {
			return fmt.Errorf("%w: %s is %s", ErrImmutableExperiment, id, exp.State)
		}
		exp.Variants = make([]Variant, len(variants))
		copy(exp.Variants, variants)
		Normalize(exp)
		if err := Validate(exp); err != nil {
			return err
		}
		exp.UpdatedAt = r.now()
		return nil
	})
}

// Start moves a draft experiment to running, freezing its variants.
func (r *Registry) Start(ctx context.Context, id string) (*Experiment, error) {
	return r.fire(ctx, id, TriggerStart, Action{})
}

// Propose moves a running experiment to concluding with the given action.
// A second concurrent proposal fails with a TransitionError.
func (r *Registry) Propose(ctx context.Context, id string, action Action) (*Experiment, error) {
	return r.fire(ctx, id, TriggerPropose, action)
}

// Confirm concludes an experiment with its pending action.
func (r *Registry) Confirm(ctx context.Context, id string, action Action) (*Experiment, error) {
	return r.fire(ctx, id, TriggerConfirm, action)
}

// Reject discards the pending action and resumes the experiment.
func (r *Registry) Reject(ctx context.Context, id string) (*Experiment, error) {
	return r.fire(ctx, id, TriggerReject, Action{})
}

// Conclude finishes a running or concluding experiment with an operator-chosen action.
func (r *Registry) Conclude(ctx context.Context, id string, action Action) (*Experiment, error) {
	return r.fire(ctx, id, TriggerConclude, action)
}

// Archive retires a draft or concluded experiment.
func (r *Registry) Archive(ctx context.Context, id string) (*Experiment, error) {
	return r.fire(ctx, id, TriggerArchive, Action{})
}

func (r *Registry) fire(ctx context.Context, id string, trig Trigger, action Action) (*Experiment, error) {
	var from State
	exp, err := r.mutate(ctx, id, string(trig), func(exp *Experiment) error {
		from = exp.State
		return fire(exp, trig, transitionInput{action: action, now: r.now()})
	})
	if err != nil {
		return nil, err
	}
	attrs := []any{
		logger.ExperimentID(id),
		slog.String("from", string(from)),
		slog.String("to", string(exp.State)),
	}
	if !action.IsZero() {
		attrs = append(attrs, logger.Action(action.String()))
	}
	r.logger.InfoContext(ctx, "experiment transitioned", attrs...)
	return exp, nil
}

// mutate runs fn against fresh state under the experiment's lock and stores
// the result with a compare-and-swap, retrying when a concurrent writer won.
func (r *Registry) mutate(ctx context.Context, id, op string, fn func(*Experiment) error) (*Experiment, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if r.locker != nil {
		release, err := r.locker.Lock(ctx, "experiment:"+id, r.lockTTL)
		if err != nil {
			return nil, errors.Join(ErrLockUnavailable, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.WarnContext(ctx, "failed to release experiment lock", logger.ExperimentID(id), logger.Error(err))
			}
		}()
	}

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1

		err = r.store.Update(ctx, next, current.Version)
		if errors.Is(err, ErrConcurrentModification) {
			r.logger.WarnContext(ctx, "experiment write lost a race, retrying",
				logger.ExperimentID(id), slog.String("op", op), logger.RetryCount(attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[id] = next
		r.mu.Unlock()
		return next.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s gave up after %d attempts", ErrConcurrentModification, op, r.maxRetries+1)
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}
