package experiment_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	exp := &experiment.Experiment{
		ID: "exp-1",
		Variants: []experiment.Variant{
			{ID: "control", Weight: 60},
			{ID: "treatment", Weight: 40},
		},
	}
	experiment.Normalize(exp)

	assert.Equal(t, experiment.AllocationConsistentHash, exp.Allocation)
	assert.Equal(t, experiment.StateDraft, exp.State)
	assert.Equal(t, experiment.DefaultConfidenceLevel, exp.Criteria.ConfidenceLevel)
	assert.Equal(t, experiment.DefaultMinSampleSize, exp.Criteria.MinSampleSize)
	assert.Equal(t, "exp-1", exp.Name)
	assert.True(t, exp.Variants[0].Control)
	assert.False(t, exp.Variants[1].Control)
	assert.Equal(t, "treatment", exp.Variants[1].Name)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*experiment.Experiment)
		field  string
	}{
		{"missing id", func(e *experiment.Experiment) { e.ID = "" }, "id"},
		{"bad id", func(e *experiment.Experiment) { e.ID = "has space" }, "id"},
		{"no variants", func(e *experiment.Experiment) { e.Variants = nil }, "variants"},
		{"no metrics", func(e *experiment.Experiment) { e.Metrics = nil }, "metrics"},
		{"weights do not sum to 100", func(e *experiment.Experiment) { e.Variants[1].Weight = 40 }, "variants"},
		{"negative weight", func(e *experiment.Experiment) {
			e.Variants[0].Weight = 110
			e.Variants[1].Weight = -10
		}, "variants[1].weight"},
		{"duplicate variant", func(e *experiment.Experiment) { e.Variants[1].ID = "control" }, "variants[1].id"},
		{"two controls", func(e *experiment.Experiment) { e.Variants[1].Control = true }, "variants"},
		{"no control", func(e *experiment.Experiment) { e.Variants[0].Control = false }, "variants"},
		{"bad metric type", func(e *experiment.Experiment) { e.Metrics[0].Type = "ratio" }, "metrics[0].type"},
		{"bad goal", func(e *experiment.Experiment) { e.Metrics[0].Goal = "up" }, "metrics[0].goal"},
		{"duplicate metric", func(e *experiment.Experiment) {
			e.Metrics = append(e.Metrics, e.Metrics[0])
		}, "metrics[1].name"},
		{"confidence out of range", func(e *experiment.Experiment) { e.Criteria.ConfidenceLevel = 1 }, "success_criteria.confidence_level"},
		{"negative effect", func(e *experiment.Experiment) { e.Criteria.MinEffectSize = -0.1 }, "success_criteria.min_effect_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exp := newExperiment("exp-1")
			experiment.Normalize(exp)
			tt.mutate(exp)

			err := experiment.Validate(exp)
			require.Error(t, err)
			assert.True(t, experiment.IsValidationError(err))

			var ve experiment.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.True(t, ve.Has(tt.field), "expected problem on %s, got %v", tt.field, ve)
		})
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		exp := newExperiment("exp-1")
		experiment.Normalize(exp)
		assert.NoError(t, experiment.Validate(exp))
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.True(t, experiment.IsValidationError(experiment.Validate(nil)))
	})

	t.Run("single variant", func(t *testing.T) {
		t.Parallel()
		exp := newExperiment("solo")
		exp.Variants = []experiment.Variant{{ID: "control", Weight: 100, Control: true}}
		experiment.Normalize(exp)
		assert.NoError(t, experiment.Validate(exp))
	})
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	ve := experiment.ValidationError{"variants": {"weights must sum to 100, got 90"}, "id": {"is required"}}
	assert.Equal(t, "invalid experiment definition: id: is required; variants: weights must sum to 100, got 90", ve.Error())
}
