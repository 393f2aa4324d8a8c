package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/logger"
)

type cellKey struct {
	variant string
	metric  string
}

// shard holds the cells of one experiment. mu only guards the maps; cell
// contents are protected by their own locks.
type shard struct {
	mu           sync.RWMutex
	cells        map[cellKey]*cell
	participants map[string]*participantSet
}

func newShard() *shard {
	return &shard{
		cells:        make(map[cellKey]*cell),
		participants: make(map[string]*participantSet),
	}
}

func (s *shard) cell(variant, metric string) (*cell, *participantSet) {
	key := cellKey{variant: variant, metric: metric}
	s.mu.RLock()
	c, ok := s.cells[key]
	p := s.participants[variant]
	s.mu.RUnlock()
	if ok && p != nil {
		return c, p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.cells[key]; !ok {
		c = &cell{}
		s.cells[key] = c
	}
	if p = s.participants[variant]; p == nil {
		p = &participantSet{ids: make(map[string]struct{})}
		s.participants[variant] = p
	}
	return c, p
}

// Store records metric events for the experiments known to a registry.
type Store struct {
	reader   experiment.Reader
	dedup    Deduper
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	shards       sync.Map // experiment id -> *shard
	dropped      atomic.Uint64
	dedupTimeout time.Duration

	// closeMu is held for reading by Record and for writing by Close, so no
	// event is applied or buffered once Close has started.
	closeMu sync.RWMutex
	closed  atomic.Bool

	rawLog        Log
	buf           chan experiment.Event
	batchSize     int
	flushInterval time.Duration
	flushTimeout  time.Duration
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithDeduper enables deduplication of events carrying an id.
func WithDeduper(d Deduper) Option {
	return func(s *Store) {
		if d != nil {
			s.dedup = d
		}
	}
}

// WithDedupTimeout bounds how long Record waits for an out-of-process
// Deduper. On timeout the event is recorded as if it were new.
func WithDedupTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.dedupTimeout = d
		}
	}
}

// WithLog persists raw events through l, buffering up to size events.
func WithLog(l Log, size int) Option {
	return func(s *Store) {
		s.rawLog = l
		if size > 0 {
			s.buf = make(chan experiment.Event, size)
		}
	}
}

// WithBatching tunes the log flusher.
func WithBatching(batchSize int, interval time.Duration) Option {
	return func(s *Store) {
		if batchSize > 0 {
			s.batchSize = batchSize
		}
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithObserver sets the event outcome observer.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store validating events against reader. When a Log is
// configured the flusher goroutine runs until Close.
func New(reader experiment.Reader, opts ...Option) *Store {
	s := &Store{
		reader:        reader,
		dedup:         noDedup{},
		observer:      noopObserver{},
		logger:        logger.Discard(),
		now:           time.Now,
		dedupTimeout:  50 * time.Millisecond,
		batchSize:     256,
		flushInterval: time.Second,
		flushTimeout:  10 * time.Second,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rawLog != nil {
		if s.buf == nil {
			s.buf = make(chan experiment.Event, 1024)
		}
		s.wg.Add(1)
		go s.flushLoop()
	}
	return s
}

// Record validates and aggregates an event. It returns false without error
// when the event is a duplicate or the store is closed. Record never blocks
// on persistence and waits at most the dedup timeout for an external deduper.
func (s *Store) Record(ctx context.Context, ev experiment.Event) (bool, error) {
	if err := s.validate(ev); err != nil {
		s.observer.EventRejected(rejectReason(err))
		return false, err
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed.Load() {
		s.drop(ev.ExperimentID, DropClosed, 1)
		return false, nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	if ev.ID != "" {
		dup, err := s.seen(ctx, dedupKey(ev))
		if err != nil {
			s.logger.WarnContext(ctx, "event dedup unavailable, recording anyway",
				logger.ExperimentID(ev.ExperimentID), logger.Error(err))
		}
		if dup {
			s.observer.EventDuplicate(ev.ExperimentID)
			return false, nil
		}
	}

	s.apply(ev)
	s.observer.EventRecorded(ev.ExperimentID, ev.VariantID, ev.Metric)

	if s.buf != nil {
		select {
		case s.buf <- ev:
		default:
			s.drop(ev.ExperimentID, DropBufferFull, 1)
		}
	}
	return true, nil
}

func dedupKey(ev experiment.Event) string {
	return ev.ExperimentID + ":" + ev.ID
}

// seen asks the deduper about key. In-process dedupers are called inline;
// others run under dedupTimeout and a stalled call reports ErrDedupTimeout.
func (s *Store) seen(ctx context.Context, key string) (bool, error) {
	switch s.dedup.(type) {
	case *MemoryDeduper, noDedup:
		return s.dedup.Seen(ctx, key)
	}

	ctx, cancel := context.WithTimeout(ctx, s.dedupTimeout)
	defer cancel()

	type result struct {
		dup bool
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dup, err := s.dedup.Seen(ctx, key)
		ch <- result{dup: dup, err: err}
	}()
	select {
	case r := <-ch:
		return r.dup, r.err
	case <-ctx.Done():
		return false, errors.Join(ErrDedupTimeout, ctx.Err())
	}
}

func (s *Store) validate(ev experiment.Event) error {
	if ev.ExperimentID == "" || ev.VariantID == "" || ev.ParticipantID == "" || ev.Metric == "" {
		return errors.Join(ErrInvalidEvent,
			errors.New("experiment_id, variant_id, participant_id and metric are required"))
	}
	exp, ok := s.reader.Lookup(ev.ExperimentID)
	if !ok {
		return fmt.Errorf("%w: %s", experiment.ErrNotFound, ev.ExperimentID)
	}
	if _, ok := exp.Variant(ev.VariantID); !ok {
		return fmt.Errorf("%w %q in experiment %s", ErrUnknownVariant, ev.VariantID, exp.ID)
	}
	if _, ok := exp.Metric(ev.Metric); !ok {
		return fmt.Errorf("%w %q in experiment %s", ErrUnknownMetric, ev.Metric, exp.ID)
	}
	if !exp.State.AcceptsEvents() {
		return fmt.Errorf("%w: %s is %s", ErrExperimentClosed, exp.ID, exp.State)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrExperimentClosed):
		return "closed"
	case errors.Is(err, experiment.ErrNotFound):
		return "unknown_experiment"
	case errors.Is(err, ErrUnknownVariant):
		return "unknown_variant"
	case errors.Is(err, ErrUnknownMetric):
		return "unknown_metric"
	default:
		return "invalid"
	}
}

func (s *Store) apply(ev experiment.Event) {
	v, ok := s.shards.Load(ev.ExperimentID)
	if !ok {
		v, _ = s.shards.LoadOrStore(ev.ExperimentID, newShard())
	}
	c, p := v.(*shard).cell(ev.VariantID, ev.Metric)
	c.add(float64(ev.Value))
	p.add(ev.ParticipantID)
}

func (s *Store) drop(experimentID, reason string, n int) {
	s.dropped.Add(uint64(n))
	s.observer.EventDropped(experimentID, reason)
}

// Dropped returns how many events were dropped from the raw log.
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}

// Snapshot copies the aggregates of an experiment. Unknown experiments yield
// an empty snapshot.
func (s *Store) Snapshot(experimentID string) Snapshot {
	snap := Snapshot{
		ExperimentID: experimentID,
		Variants:     make(map[string]VariantSnapshot),
		TakenAt:      s.now(),
	}
	v, ok := s.shards.Load(experimentID)
	if !ok {
		return snap
	}
	sh := v.(*shard)

	sh.mu.RLock()
	cells := make(map[cellKey]*cell, len(sh.cells))
	for k, c := range sh.cells {
		cells[k] = c
	}
	participants := make(map[string]*participantSet, len(sh.participants))
	for k, p := range sh.participants {
		participants[k] = p
	}
	sh.mu.RUnlock()

	for variant, p := range participants {
		snap.Variants[variant] = VariantSnapshot{
			VariantID:    variant,
			Participants: p.len(),
			Metrics:      make(map[string]Aggregate),
		}
	}
	for k, c := range cells {
		snap.Variants[k.variant].Metrics[k.metric] = c.snapshot()
	}
	return snap
}

// Restore replays logged events into the aggregates, bypassing state checks
// and deduplication so finished experiments can be re-analyzed after a
// restart. Replayed event ids are put back into the dedup window. Events of
// unknown experiments, variants or metrics are skipped.
func (s *Store) Restore(ctx context.Context, src Source) (int, error) {
	restored, skipped := 0, 0
	err := src.Replay(ctx, func(ev experiment.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.validate(ev)
		if err != nil && !errors.Is(err, ErrExperimentClosed) {
			skipped++
			return nil
		}
		s.apply(ev)
		if ev.ID != "" {
			if _, err := s.seen(ctx, dedupKey(ev)); err != nil {
				s.logger.WarnContext(ctx, "failed to restore event id into dedup window",
					logger.ExperimentID(ev.ExperimentID), logger.Error(err))
			}
		}
		restored++
		return nil
	})
	if err != nil {
		return restored, fmt.Errorf("restore events: %w", err)
	}
	s.logger.InfoContext(ctx, "event aggregates restored",
		logger.Count("restored", restored), logger.Count("skipped", skipped))
	return restored, nil
}

// Close stops accepting events and flushes buffered events to the log.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed.Store(true)
		s.closeMu.Unlock()
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]experiment.Event, 0, s.batchSize)
	for {
		select {
		case ev := <-s.buf:
			batch = append(batch, ev)
			if len(batch) >= s.batchSize {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
		case <-s.done:
			for {
				select {
				case ev := <-s.buf:
					batch = append(batch, ev)
					if len(batch) >= s.batchSize {
						batch = s.flush(batch)
					}
				default:
					s.flush(batch)
					return
				}
			}
		}
	}
}

func (s *Store) flush(batch []experiment.Event) []experiment.Event {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()

	if err := s.rawLog.Append(ctx, batch); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist events",
			logger.Count("events", len(batch)), logger.Error(err))
		s.drop("", DropLogFailed, len(batch))
	}
	return batch[:0]
}
