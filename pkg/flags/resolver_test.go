package flags_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/allocator"
	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/flags"
)

func newExperiment(id, flag string) *experiment.Experiment {
	return &experiment.Experiment{
		ID:   id,
		Flag: flag,
		Variants: []experiment.Variant{
			{ID: "control", Weight: 50, Control: true, Params: map[string]any{"color": "blue"}},
			{ID: "treatment", Weight: 50, Params: map[string]any{"color": "green"}},
		},
		Metrics: []experiment.Metric{{Name: "conversion", Type: experiment.MetricProportion, Goal: experiment.GoalMaximize}},
	}
}

type fixture struct {
	reg      *experiment.Registry
	resolver *flags.Resolver
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	reg := experiment.NewRegistry(experiment.NewMemoryStore())
	provider, err := flags.NewMemoryProvider(
		&flags.Flag{Name: "checkout", Enabled: true, Params: map[string]any{"color": "grey"}},
		&flags.Flag{Name: "killed", Enabled: false, Params: map[string]any{"color": "grey"}},
		&flags.Flag{Name: "static", Enabled: true, Params: map[string]any{"limit": 5}},
	)
	require.NoError(t, err)

	_, err = reg.Create(ctx, newExperiment("exp-checkout", "checkout"))
	require.NoError(t, err)
	_, err = reg.Create(ctx, newExperiment("exp-orphan", "no-static"))
	require.NoError(t, err)

	return fixture{
		reg:      reg,
		resolver: flags.NewResolver(provider, reg, allocator.New(reg)),
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("draft experiment serves static default", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		res, err := f.resolver.Resolve(ctx, "checkout", "user-1")
		require.NoError(t, err)
		assert.Equal(t, flags.ReasonStaticDefault, res.Reason)
		assert.True(t, res.Enabled)
		assert.Equal(t, "grey", res.Params["color"])
		assert.Empty(t, res.ExperimentID)
	})

	t.Run("running experiment assigns", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		_, err := f.reg.Start(ctx, "exp-checkout")
		require.NoError(t, err)
		exp, _ := f.reg.Lookup("exp-checkout")

		seen := map[string]bool{}
		for i := range 200 {
			pid := fmt.Sprintf("user-%d", i)
			res, err := f.resolver.Resolve(ctx, "checkout", pid)
			require.NoError(t, err)
			assert.Equal(t, flags.ReasonExperimentAssignment, res.Reason)
			assert.Equal(t, "exp-checkout", res.ExperimentID)

			want, _ := allocator.Pick(exp, pid)
			assert.Equal(t, want.ID, res.VariantID)
			assert.Equal(t, want.Params["color"], res.Params["color"])

			again, _ := f.resolver.Resolve(ctx, "checkout", pid)
			assert.Equal(t, res.VariantID, again.VariantID)
			seen[res.VariantID] = true
		}
		assert.Len(t, seen, 2)
	})

	t.Run("concluded experiment serves winner", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		_, err := f.reg.Start(ctx, "exp-checkout")
		require.NoError(t, err)
		_, err = f.reg.Propose(ctx, "exp-checkout", experiment.Promote("treatment"))
		require.NoError(t, err)
		_, err = f.reg.Confirm(ctx, "exp-checkout", experiment.Promote("treatment"))
		require.NoError(t, err)

		for i := range 50 {
			res, err := f.resolver.Resolve(ctx, "checkout", fmt.Sprint(i))
			require.NoError(t, err)
			assert.Equal(t, flags.ReasonExperimentConcluded, res.Reason)
			assert.Equal(t, "treatment", res.VariantID)
			assert.Equal(t, "green", res.Params["color"])
		}
	})

	t.Run("aborted experiment serves control", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		_, err := f.reg.Start(ctx, "exp-checkout")
		require.NoError(t, err)
		_, err = f.reg.Conclude(ctx, "exp-checkout", experiment.Abort())
		require.NoError(t, err)
		_, err = f.reg.Archive(ctx, "exp-checkout")
		require.NoError(t, err)

		res, err := f.resolver.Resolve(ctx, "checkout", "user-1")
		require.NoError(t, err)
		assert.Equal(t, "control", res.VariantID)
		assert.Equal(t, "blue", res.Params["color"])
	})

	t.Run("disabled flag", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		res, err := f.resolver.Resolve(ctx, "killed", "user-1")
		require.NoError(t, err)
		assert.False(t, res.Enabled)
		assert.Equal(t, flags.ReasonFlagDisabled, res.Reason)
		assert.Nil(t, res.Params)
	})

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		_, err := f.resolver.Resolve(ctx, "nope", "user-1")
		assert.ErrorIs(t, err, flags.ErrFlagNotFound)

		_, err = f.resolver.Resolve(ctx, "no-static", "user-1")
		assert.ErrorIs(t, err, flags.ErrFlagNotFound, "draft experiment without static flag")
	})

	t.Run("experiment-only flag without provider", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		_, err := f.reg.Start(ctx, "exp-orphan")
		require.NoError(t, err)
		r := flags.NewResolver(nil, f.reg, allocator.New(f.reg))
		res, err := r.Resolve(ctx, "no-static", "user-1")
		require.NoError(t, err)
		assert.Equal(t, "exp-orphan", res.ExperimentID)

		_, err = r.Resolve(ctx, "static", "user-1")
		assert.ErrorIs(t, err, flags.ErrFlagNotFound)
	})

	t.Run("empty participant", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		_, err := f.resolver.Resolve(ctx, "static", "")
		assert.ErrorIs(t, err, flags.ErrEmptyParticipant)
	})

	t.Run("params are detached", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		_, err := f.reg.Start(ctx, "exp-checkout")
		require.NoError(t, err)
		res, err := f.resolver.Resolve(ctx, "checkout", "user-1")
		require.NoError(t, err)
		res.Params["color"] = "red"
		exp, _ := f.reg.Lookup("exp-checkout")
		for _, v := range exp.Variants {
			assert.NotEqual(t, "red", v.Params["color"])
		}
	})
}

func TestIsEnabled(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	on, err := f.resolver.IsEnabled(ctx, "static", "u")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = f.resolver.IsEnabled(ctx, "killed", "u")
	require.NoError(t, err)
	assert.False(t, on)
}
