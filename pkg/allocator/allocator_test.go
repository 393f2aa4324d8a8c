package allocator_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/allocator"
	"github.com/dmitrymomot/abkit/pkg/experiment"
)

func twoArm(id string, controlWeight int) *experiment.Experiment {
	return &experiment.Experiment{
		ID:      id,
		State:   experiment.StateRunning,
		Version: 2,
		Variants: []experiment.Variant{
			{ID: "control", Weight: controlWeight, Control: true},
			{ID: "treatment", Weight: 100 - controlWeight},
		},
		Metrics: []experiment.Metric{{Name: "conversion", Type: experiment.MetricProportion, Goal: experiment.GoalMaximize}},
	}
}

type mapReader map[string]*experiment.Experiment

func (m mapReader) Lookup(id string) (*experiment.Experiment, bool) {
	exp, ok := m[id]
	return exp, ok
}

func (m mapReader) LookupFlag(string) (*experiment.Experiment, bool) { return nil, false }

func TestPoint(t *testing.T) {
	t.Parallel()

	p := allocator.Point("exp-1", "user-1")
	assert.GreaterOrEqual(t, p, 0.0)
	assert.Less(t, p, 1.0)
	assert.Equal(t, p, allocator.Point("exp-1", "user-1"))
	assert.NotEqual(t, p, allocator.Point("exp-2", "user-1"))
	assert.NotEqual(t, allocator.Point("ab", "c"), allocator.Point("a", "bc"))
}

func TestPickDeterministic(t *testing.T) {
	t.Parallel()

	exp := twoArm("exp-1", 50)
	for i := range 1000 {
		pid := fmt.Sprintf("user-%d", i)
		first, ok := allocator.Pick(exp, pid)
		require.True(t, ok)
		for range 3 {
			again, _ := allocator.Pick(exp, pid)
			assert.Equal(t, first.ID, again.ID)
		}
	}
}

func TestPickIgnoresDeclarationOrder(t *testing.T) {
	t.Parallel()

	a := twoArm("exp-1", 30)
	b := a.Clone()
	b.Variants[0], b.Variants[1] = b.Variants[1], b.Variants[0]
	for i := range 500 {
		pid := fmt.Sprintf("p%d", i)
		va, _ := allocator.Pick(a, pid)
		vb, _ := allocator.Pick(b, pid)
		assert.Equal(t, va.ID, vb.ID)
	}
}

func TestPickDistribution(t *testing.T) {
	t.Parallel()

	exp := twoArm("exp-balanced", 50)
	counts := map[string]int{}
	for i := range 100_000 {
		v, _ := allocator.Pick(exp, fmt.Sprintf("participant-%d", i))
		counts[v.ID]++
	}
	assert.InDelta(t, 50_000, counts["control"], 2_000)
	assert.InDelta(t, 50_000, counts["treatment"], 2_000)
}

func TestPickScenario(t *testing.T) {
	t.Parallel()

	exp := twoArm("exp-1", 60)
	treatment := 0
	for i := range 10_000 {
		v, _ := allocator.Pick(exp, fmt.Sprintf("user-%05d", i))
		if v.ID == "treatment" {
			treatment++
		}
	}
	assert.GreaterOrEqual(t, treatment, 3_800)
	assert.LessOrEqual(t, treatment, 4_200)
}

func TestPickEdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("single variant", func(t *testing.T) {
		t.Parallel()
		exp := &experiment.Experiment{ID: "solo", Variants: []experiment.Variant{{ID: "only", Weight: 100, Control: true}}}
		for i := range 100 {
			v, ok := allocator.Pick(exp, fmt.Sprint(i))
			require.True(t, ok)
			assert.Equal(t, "only", v.ID)
		}
	})

	t.Run("zero weight never assigned", func(t *testing.T) {
		t.Parallel()
		exp := &experiment.Experiment{ID: "z", Variants: []experiment.Variant{
			{ID: "a", Weight: 0},
			{ID: "b", Weight: 100, Control: true},
		}}
		for i := range 1000 {
			v, _ := allocator.Pick(exp, fmt.Sprint(i))
			assert.Equal(t, "b", v.ID)
		}
	})

	t.Run("three way split", func(t *testing.T) {
		t.Parallel()
		exp := &experiment.Experiment{ID: "three", Variants: []experiment.Variant{
			{ID: "a", Weight: 34, Control: true},
			{ID: "b", Weight: 33},
			{ID: "c", Weight: 33},
		}}
		counts := map[string]int{}
		for i := range 30_000 {
			v, _ := allocator.Pick(exp, fmt.Sprint(i))
			counts[v.ID]++
		}
		assert.InDelta(t, 10_200, counts["a"], 600)
		assert.InDelta(t, 9_900, counts["b"], 600)
		assert.InDelta(t, 9_900, counts["c"], 600)
	})

	t.Run("no weights", func(t *testing.T) {
		t.Parallel()
		exp := &experiment.Experiment{ID: "none", Variants: []experiment.Variant{{ID: "a"}, {ID: "b"}}}
		_, ok := allocator.Pick(exp, "x")
		assert.False(t, ok)
	})
}

func TestAllocatorAssign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exp := twoArm("exp-1", 50)
	concluded := twoArm("exp-done", 50)
	concluded.State = experiment.StateConcluded
	promote := experiment.Promote("treatment")
	concluded.Outcome = &promote
	draft := twoArm("exp-draft", 50)
	draft.State = experiment.StateDraft

	a := allocator.New(mapReader{exp.ID: exp, concluded.ID: concluded, draft.ID: draft})

	t.Run("matches pick", func(t *testing.T) {
		t.Parallel()
		for i := range 200 {
			pid := fmt.Sprint("u", i)
			got, err := a.Assign(ctx, "exp-1", pid)
			require.NoError(t, err)
			want, _ := allocator.Pick(exp, pid)
			assert.Equal(t, want.ID, got)
		}
	})

	t.Run("concluded serves outcome", func(t *testing.T) {
		t.Parallel()
		for i := range 50 {
			got, err := a.Assign(ctx, "exp-done", fmt.Sprint(i))
			require.NoError(t, err)
			assert.Equal(t, "treatment", got)
		}
	})

	t.Run("draft serves control", func(t *testing.T) {
		t.Parallel()
		got, err := a.Assign(ctx, "exp-draft", "u1")
		require.NoError(t, err)
		assert.Equal(t, "control", got)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		_, err := a.Assign(ctx, "missing", "u1")
		assert.ErrorIs(t, err, experiment.ErrNotFound)
		_, err = a.Assign(ctx, "exp-1", "")
		assert.ErrorIs(t, err, allocator.ErrEmptyParticipant)
	})
}

func TestAllocatorFollowsNewVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exp := twoArm("exp-1", 100)
	reader := mapReader{exp.ID: exp}
	a := allocator.New(reader)

	got, err := a.Assign(ctx, "exp-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "control", got)

	next := twoArm("exp-1", 0)
	next.Version = exp.Version + 1
	reader["exp-1"] = next
	got, err = a.Assign(ctx, "exp-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "treatment", got)
}
