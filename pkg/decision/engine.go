package decision

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/stats"
)

// Decision is the engine's verdict for one experiment at one point in time.
type Decision struct {
	ID           string                 `json:"id"`
	ExperimentID string                 `json:"experiment_id"`
	Action       experiment.Action      `json:"action"`
	Reason       string                 `json:"reason"`
	Evidence     []stats.AnalysisResult `json:"evidence"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Engine decides what to do with an experiment.
type Engine struct {
	newID func() string
}

// NewEngine creates an engine that tags decisions with random UUIDs.
func NewEngine() Engine {
	return Engine{newID: uuid.NewString}
}

// Decide picks an action from analysis results. It does not touch the registry.
func (e Engine) Decide(exp *experiment.Experiment, results []stats.AnalysisResult, now time.Time) Decision {
	d := Decision{
		ExperimentID: exp.ID,
		Evidence:     results,
		Timestamp:    now,
	}
	if e.newID != nil {
		d.ID = e.newID()
	} else {
		d.ID = uuid.NewString()
	}

	vetoed := make(map[string]string)
	for _, r := range results {
		if r.Significant && !r.Favorable {
			if _, ok := vetoed[r.Treatment.VariantID]; !ok {
				vetoed[r.Treatment.VariantID] = r.Metric
			}
		}
	}

	for _, m := range exp.Metrics {
		var candidates []stats.AnalysisResult
		for _, r := range results {
			if r.Metric != m.Name || !r.Significant || !r.Favorable {
				continue
			}
			if _, ok := vetoed[r.Treatment.VariantID]; ok {
				continue
			}
			candidates = append(candidates, r)
		}
		if len(candidates) == 0 {
			continue
		}
		best := slices.MinFunc(candidates, func(a, b stats.AnalysisResult) int {
			if c := cmp.Compare(math.Abs(b.EffectSize), math.Abs(a.EffectSize)); c != 0 {
				return c
			}
			return cmp.Compare(a.Treatment.VariantID, b.Treatment.VariantID)
		})
		d.Action = experiment.Promote(best.Treatment.VariantID)
		d.Reason = fmt.Sprintf("%s beats control on %s (effect %.4g, p=%.4g)",
			best.Treatment.VariantID, m.Name, best.EffectSize, best.PValue)
		return d
	}

	if limit := exp.Criteria.MaxDuration(); limit > 0 && !exp.StartedAt.IsZero() && now.Sub(exp.StartedAt) > limit {
		d.Action = experiment.Abort()
		d.Reason = fmt.Sprintf("no winner after %d days", exp.Criteria.MaxDurationDays)
		return d
	}

	d.Action = experiment.Continue()
	switch {
	case len(vetoed) > 0:
		variant := slices.Min(slices.Collect(maps.Keys(vetoed)))
		d.Reason = fmt.Sprintf("%s is significantly worse on %s", variant, vetoed[variant])
	case insufficient(results):
		d.Reason = "waiting for minimum sample size"
	default:
		d.Reason = "no significant difference yet"
	}
	return d
}

func insufficient(results []stats.AnalysisResult) bool {
	if len(results) == 0 {
		return true
	}
	return slices.ContainsFunc(results, func(r stats.AnalysisResult) bool { return r.InsufficientData })
}
