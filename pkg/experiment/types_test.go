package experiment_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    experiment.Action
		wantErr bool
	}{
		{"continue", experiment.Continue(), false},
		{"abort", experiment.Abort(), false},
		{"promote:treatment", experiment.Promote("treatment"), false},
		{" promote:b ", experiment.Promote("b"), false},
		{"promote:", experiment.Action{}, true},
		{"ship", experiment.Action{}, true},
		{"", experiment.Action{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := experiment.ParseAction(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, experiment.ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) experiment.Action {
	t.Helper()
	a, err := experiment.ParseAction(s)
	require.NoError(t, err)
	return a
}

func TestActionJSON(t *testing.T) {
	t.Parallel()

	var body struct {
		Action experiment.Action `json:"action"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"action":"promote:treatment"}`), &body))
	assert.Equal(t, experiment.Promote("treatment"), body.Action)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"promote:treatment"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"action":"ship"}`), &body))
}

func TestValueJSON(t *testing.T) {
	t.Parallel()

	var ev experiment.Event
	require.NoError(t, json.Unmarshal([]byte(`{"experiment_id":"e","value":true}`), &ev))
	assert.InDelta(t, 1, float64(ev.Value), 0)
	require.NoError(t, json.Unmarshal([]byte(`{"value":false}`), &ev))
	assert.InDelta(t, 0, float64(ev.Value), 0)
	require.NoError(t, json.Unmarshal([]byte(`{"value":12.5}`), &ev))
	assert.InDelta(t, 12.5, float64(ev.Value), 0)
	assert.Error(t, json.Unmarshal([]byte(`{"value":"yes"}`), &ev))
}

func TestServedVariant(t *testing.T) {
	t.Parallel()

	exp := newExperiment("exp-1")
	v, ok := exp.ServedVariant()
	require.True(t, ok)
	assert.Equal(t, "control", v.ID)

	promote := experiment.Promote("treatment")
	exp.Outcome = &promote
	v, _ = exp.ServedVariant()
	assert.Equal(t, "treatment", v.ID)

	abort := experiment.Abort()
	exp.Outcome = &abort
	v, _ = exp.ServedVariant()
	assert.Equal(t, "control", v.ID)
}

func TestClone(t *testing.T) {
	t.Parallel()

	exp := newExperiment("exp-1")
	pending := experiment.Promote("treatment")
	exp.Pending = &pending

	c := exp.Clone()
	c.Variants[0].Params["color"] = "red"
	c.Variants[1].Weight = 10
	c.Metrics[0].Name = "other"
	c.Pending.Variant = "control"

	assert.Equal(t, "blue", exp.Variants[0].Params["color"])
	assert.Equal(t, 50, exp.Variants[1].Weight)
	assert.Equal(t, "conversion", exp.Metrics[0].Name)
	assert.Equal(t, "treatment", exp.Pending.Variant)
	assert.Nil(t, (*experiment.Experiment)(nil).Clone())
}

func TestTreatments(t *testing.T) {
	t.Parallel()

	exp := newExperiment("exp-1")
	exp.Variants = append(exp.Variants, experiment.Variant{ID: "b"})
	ids := []string{}
	for _, v := range exp.Treatments() {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"treatment", "b"}, ids)
}
