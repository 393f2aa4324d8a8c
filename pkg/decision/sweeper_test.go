package decision_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/decision"
	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/stats"
)

// scriptedAnalyzer returns canned results per experiment.
type scriptedAnalyzer struct {
	mu      sync.Mutex
	results map[string][]stats.AnalysisResult
	err     error
}

func (a *scriptedAnalyzer) set(id string, results ...stats.AnalysisResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[id] = results
}

func (a *scriptedAnalyzer) Analyze(_ context.Context, id string) ([]stats.AnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.results[id], nil
}

type recordingObserver struct {
	mu        sync.Mutex
	decisions int
	sweeps    int
}

func (o *recordingObserver) DecisionMade(string, experiment.Action) {
	o.mu.Lock()
	o.decisions++
	o.mu.Unlock()
}

func (o *recordingObserver) SweepCompleted(int, time.Duration) {
	o.mu.Lock()
	o.sweeps++
	o.mu.Unlock()
}

func newRunningRegistry(t *testing.T, ids ...string) *experiment.Registry {
	t.Helper()
	ctx := context.Background()
	reg := experiment.NewRegistry(experiment.NewMemoryStore())
	for _, id := range ids {
		exp := threeArm()
		exp.ID = id
		exp.State = ""
		_, err := reg.Create(ctx, exp)
		require.NoError(t, err)
		_, err = reg.Start(ctx, id)
		require.NoError(t, err)
	}
	return reg
}

func TestSweepProposes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRunningRegistry(t, "exp-1", "exp-2")
	analyzer := &scriptedAnalyzer{results: map[string][]stats.AnalysisResult{}}
	analyzer.set("exp-1", result("conversion", "b", true, true, 0.04))
	obs := &recordingObserver{}

	sweeper := decision.NewSweeper(reg, analyzer, decision.WithObserver(obs))
	decisions, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)
	assert.Equal(t, 2, obs.decisions)
	assert.Equal(t, 1, obs.sweeps)

	exp, err := reg.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, experiment.StateConcluding, exp.State)
	assert.Equal(t, experiment.Promote("b"), *exp.Pending)

	other, err := reg.Get(ctx, "exp-2")
	require.NoError(t, err)
	assert.Equal(t, experiment.StateRunning, other.State)

	// without auto-confirm the proposal waits for an operator
	for range 3 {
		_, err = sweeper.Sweep(ctx)
		require.NoError(t, err)
	}
	exp, _ = reg.Get(ctx, "exp-1")
	assert.Equal(t, experiment.StateConcluding, exp.State)

	history := sweeper.History("exp-1")
	assert.Len(t, history, 4)
	latest, ok := sweeper.Latest("exp-1")
	require.True(t, ok)
	assert.Equal(t, history[3].ID, latest.ID)
	_, ok = sweeper.Latest("unknown")
	assert.False(t, ok)
}

func TestSweepAutoConfirm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRunningRegistry(t, "exp-1")
	analyzer := &scriptedAnalyzer{results: map[string][]stats.AnalysisResult{}}
	analyzer.set("exp-1", result("conversion", "b", true, true, 0.04))

	sweeper := decision.NewSweeper(reg, analyzer, decision.WithAutoConfirmAfter(2))

	_, err := sweeper.Sweep(ctx) // propose
	require.NoError(t, err)
	_, err = sweeper.Sweep(ctx) // agreeing sweep 1
	require.NoError(t, err)
	exp, _ := reg.Get(ctx, "exp-1")
	assert.Equal(t, experiment.StateConcluding, exp.State)

	// a disagreeing sweep resets the streak
	analyzer.set("exp-1", result("conversion", "b", false, true, 0.01))
	_, err = sweeper.Sweep(ctx)
	require.NoError(t, err)

	analyzer.set("exp-1", result("conversion", "b", true, true, 0.04))
	_, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	exp, _ = reg.Get(ctx, "exp-1")
	assert.Equal(t, experiment.StateConcluding, exp.State)

	_, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	exp, _ = reg.Get(ctx, "exp-1")
	assert.Equal(t, experiment.StateConcluded, exp.State)
	assert.Equal(t, experiment.Promote("b"), *exp.Outcome)
}

func TestSweepSkipsFailures(t *testing.T) {
	t.Parallel()
	reg := newRunningRegistry(t, "exp-1")
	analyzer := &scriptedAnalyzer{err: errors.New("boom")}
	sweeper := decision.NewSweeper(reg, analyzer)

	decisions, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, decisions)
	assert.Empty(t, sweeper.History("exp-1"))
}

func TestSweepCancelled(t *testing.T) {
	t.Parallel()
	reg := newRunningRegistry(t, "exp-1")
	analyzer := &scriptedAnalyzer{results: map[string][]stats.AnalysisResult{}}
	sweeper := decision.NewSweeper(reg, analyzer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sweeper.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSweeperRun(t *testing.T) {
	t.Parallel()
	reg := newRunningRegistry(t, "exp-1")
	analyzer := &scriptedAnalyzer{results: map[string][]stats.AnalysisResult{}}
	sweeper := decision.NewSweeper(reg, analyzer,
		decision.WithInterval(5*time.Millisecond),
		decision.WithHistorySize(3),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(sweeper.History("exp-1")) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.LessOrEqual(t, len(sweeper.History("exp-1")), 3)
}

func TestSweepProposalConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := newRunningRegistry(t, "exp-1")
	analyzer := &scriptedAnalyzer{results: map[string][]stats.AnalysisResult{}}
	analyzer.set("exp-1", result("conversion", "b", true, true, 0.04))

	list := reg.List(ctx, experiment.StateRunning)
	require.Len(t, list, 1)
	// operator concludes between listing and proposing
	_, err := reg.Conclude(ctx, "exp-1", experiment.Abort())
	require.NoError(t, err)

	sweeper := decision.NewSweeper(staleRegistry{Registry: reg, stale: list}, analyzer)
	decisions, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, decisions)

	exp, _ := reg.Get(ctx, "exp-1")
	assert.Equal(t, experiment.Abort(), *exp.Outcome)
}

type staleRegistry struct {
	*experiment.Registry
	stale []*experiment.Experiment
}

func (r staleRegistry) List(context.Context, ...experiment.State) []*experiment.Experiment {
	return r.stale
}
