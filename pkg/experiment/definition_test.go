package experiment_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

const definitions = `
experiments:
  - id: exp-1
    name: Checkout button
    flag: checkout-button
    variants:
      - id: control
        weight: 60
        params: {color: blue}
      - id: treatment
        weight: 40
        params: {color: green}
    metrics:
      - {name: conversion, type: proportion, goal: maximize}
      - {name: latency_ms, type: continuous, goal: minimize}
    success_criteria:
      min_effect_size: 0.01
      confidence_level: 0.9
      min_sample_size: 500
      max_duration_days: 14
---
id: exp-2
variants:
  - {id: a, weight: 100, control: true}
metrics:
  - {name: clicks, type: continuous, goal: maximize}
`

func TestParseDefinitions(t *testing.T) {
	t.Parallel()

	t.Run("multi document", func(t *testing.T) {
		t.Parallel()
		exps, err := experiment.ParseDefinitions(strings.NewReader(definitions))
		require.NoError(t, err)
		require.Len(t, exps, 2)

		exp := exps[0]
		assert.Equal(t, "exp-1", exp.ID)
		assert.Equal(t, "checkout-button", exp.Flag)
		assert.Equal(t, experiment.StateDraft, exp.State)
		assert.Equal(t, experiment.AllocationConsistentHash, exp.Allocation)
		assert.Equal(t, "green", exp.Variants[1].Params["color"])
		assert.True(t, exp.Variants[0].Control)
		assert.Equal(t, experiment.GoalMinimize, exp.Metrics[1].Goal)
		assert.Equal(t, experiment.SuccessCriteria{
			MinEffectSize:   0.01,
			ConfidenceLevel: 0.9,
			MinSampleSize:   500,
			MaxDurationDays: 14,
		}, exp.Criteria)

		assert.Equal(t, "exp-2", exps[1].ID)
		assert.Equal(t, experiment.DefaultConfidenceLevel, exps[1].Criteria.ConfidenceLevel)
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()
		_, err := experiment.ParseDefinitions(strings.NewReader("id: x\nbogus: 1\n"))
		assert.Error(t, err)
	})

	t.Run("reports every invalid definition", func(t *testing.T) {
		t.Parallel()
		doc := `
experiments:
  - id: bad-weights
    variants: [{id: control, weight: 50}, {id: b, weight: 40}]
    metrics: [{name: m, type: proportion, goal: maximize}]
  - id: no-metrics
    variants: [{id: control, weight: 100}]
`
		_, err := experiment.ParseDefinitions(strings.NewReader(doc))
		require.Error(t, err)
		assert.True(t, experiment.IsValidationError(err))
		assert.Contains(t, err.Error(), "bad-weights")
		assert.Contains(t, err.Error(), "no-metrics")
	})

	t.Run("duplicate ids", func(t *testing.T) {
		t.Parallel()
		doc := `
experiments:
  - {id: dup, variants: [{id: control, weight: 100}], metrics: [{name: m, type: proportion, goal: maximize}]}
  - {id: dup, variants: [{id: control, weight: 100}], metrics: [{name: m, type: proportion, goal: maximize}]}
`
		_, err := experiment.ParseDefinitions(strings.NewReader(doc))
		assert.ErrorIs(t, err, experiment.ErrExperimentExists)
	})
}

func TestLoadDefinitions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "experiments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o600))

	exps, err := experiment.LoadDefinitions(path)
	require.NoError(t, err)
	assert.Len(t, exps, 2)

	_, err = experiment.LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
