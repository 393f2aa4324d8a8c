package experiment_test

import (
	"github.com/dmitrymomot/abkit/pkg/experiment"
)

func newExperiment(id string) *experiment.Experiment {
	return &experiment.Experiment{
		ID:   id,
		Flag: id + "-flag",
		Variants: []experiment.Variant{
			{ID: "control", Weight: 50, Control: true, Params: map[string]any{"color": "blue"}},
			{ID: "treatment", Weight: 50, Params: map[string]any{"color": "green"}},
		},
		Metrics: []experiment.Metric{
			{Name: "conversion", Type: experiment.MetricProportion, Goal: experiment.GoalMaximize},
		},
	}
}
