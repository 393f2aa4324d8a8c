package decision

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/logger"
	"github.com/dmitrymomot/abkit/pkg/stats"
)

// Registry is the part of the experiment registry the sweeper drives.
type Registry interface {
	List(ctx context.Context, states ...experiment.State) []*experiment.Experiment
	Propose(ctx context.Context, id string, action experiment.Action) (*experiment.Experiment, error)
	Confirm(ctx context.Context, id string, action experiment.Action) (*experiment.Experiment, error)
}

// Analyzer produces analysis results for an experiment.
type Analyzer interface {
	Analyze(ctx context.Context, experimentID string) ([]stats.AnalysisResult, error)
}

// Observer is notified about sweeps and decisions.
type Observer interface {
	DecisionMade(experimentID string, action experiment.Action)
	SweepCompleted(experiments int, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) DecisionMade(string, experiment.Action) {}
func (noopObserver) SweepCompleted(int, time.Duration)      {}

// Sweeper periodically analyzes live experiments and proposes actions.
type Sweeper struct {
	registry         Registry
	analyzer         Analyzer
	engine           Engine
	interval         time.Duration
	concurrency      int
	autoConfirmAfter int
	historySize      int
	observer         Observer
	logger           *slog.Logger
	now              func() time.Time

	mu      sync.Mutex
	history map[string][]Decision
	streaks map[string]int
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithConcurrency bounds how many experiments are analyzed in parallel.
func WithConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithAutoConfirmAfter confirms a pending action once n consecutive sweeps of
// the concluding experiment agree with it. Zero leaves confirmation to an
// operator.
func WithAutoConfirmAfter(n int) SweeperOption {
	return func(s *Sweeper) {
		if n >= 0 {
			s.autoConfirmAfter = n
		}
	}
}

// WithHistorySize bounds the decisions kept per experiment.
func WithHistorySize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithObserver sets the sweep observer.
func WithObserver(o Observer) SweeperOption {
	return func(s *Sweeper) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the sweeper logger.
func WithLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEngine replaces the decision engine.
func WithEngine(e Engine) SweeperOption {
	return func(s *Sweeper) { s.engine = e }
}

// NewSweeper creates a sweeper. Call Run to start it.
func NewSweeper(registry Registry, analyzer Analyzer, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		registry:    registry,
		analyzer:    analyzer,
		engine:      NewEngine(),
		interval:    time.Minute,
		concurrency: 4,
		historySize: 50,
		observer:    noopObserver{},
		logger:      logger.Discard(),
		now:         time.Now,
		history:     make(map[string][]Decision),
		streaks:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "decision sweeper started", logger.Duration(s.interval))
	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "decision sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "decision sweep failed", logger.Error(err))
	}
}

// Sweep analyzes every running and concluding experiment once and applies the
// resulting decisions. Per-experiment failures are logged and do not stop the
// sweep; only cancellation is returned.
func (s *Sweeper) Sweep(ctx context.Context) ([]Decision, error) {
	start := time.Now()
	live := s.registry.List(ctx, experiment.StateRunning, experiment.StateConcluding)

	var (
		mu        sync.Mutex
		decisions = make([]Decision, 0, len(live))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, exp := range live {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := s.sweepOne(gctx, exp)
			if err != nil {
				s.logger.WarnContext(gctx, "experiment sweep failed",
					logger.ExperimentID(exp.ID), logger.Error(err))
				return nil
			}
			mu.Lock()
			decisions = append(decisions, d)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decisions, err
	}
	if err := ctx.Err(); err != nil {
		return decisions, err
	}

	elapsed := time.Since(start)
	s.observer.SweepCompleted(len(live), elapsed)
	s.logger.DebugContext(ctx, "decision sweep completed",
		logger.Count("experiments", len(live)), logger.Duration(elapsed))
	return decisions, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, exp *experiment.Experiment) (Decision, error) {
	results, err := s.analyzer.Analyze(ctx, exp.ID)
	if err != nil {
		return Decision{}, err
	}
	d := s.engine.Decide(exp, results, s.now())
	s.remember(d)
	s.observer.DecisionMade(exp.ID, d.Action)

	switch exp.State {
	case experiment.StateRunning:
		if d.Action.Kind == experiment.ActionContinue {
			return d, nil
		}
		if _, err := s.registry.Propose(ctx, exp.ID, d.Action); err != nil {
			return d, err
		}
		s.setStreak(exp.ID, 0)
		s.logger.InfoContext(ctx, "experiment conclusion proposed",
			logger.ExperimentID(exp.ID), logger.Action(d.Action.String()), slog.String("reason", d.Reason))

	case experiment.StateConcluding:
		if exp.Pending == nil || *exp.Pending != d.Action {
			s.setStreak(exp.ID, 0)
			return d, nil
		}
		streak := s.bumpStreak(exp.ID)
		if s.autoConfirmAfter == 0 || streak < s.autoConfirmAfter {
			return d, nil
		}
		if _, err := s.registry.Confirm(ctx, exp.ID, d.Action); err != nil {
			return d, err
		}
		s.setStreak(exp.ID, 0)
		s.logger.InfoContext(ctx, "experiment conclusion auto-confirmed",
			logger.ExperimentID(exp.ID), logger.Action(d.Action.String()), logger.Count("sweeps", streak))
	}
	return d, nil
}

func (s *Sweeper) remember(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[d.ExperimentID], d)
	if len(h) > s.historySize {
		h = h[len(h)-s.historySize:]
	}
	s.history[d.ExperimentID] = h
}

func (s *Sweeper) setStreak(id string, n int) {
	s.mu.Lock()
	s.streaks[id] = n
	s.mu.Unlock()
}

func (s *Sweeper) bumpStreak(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[id]++
	return s.streaks[id]
}

// History returns the recorded decisions of an experiment, oldest first.
func (s *Sweeper) History(experimentID string) []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Decision(nil), s.history[experimentID]...)
}

// Latest returns the most recent decision of an experiment.
func (s *Sweeper) Latest(experimentID string) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[experimentID]
	if len(h) == 0 {
		return Decision{}, false
	}
	return h[len(h)-1], true
}
