package experiment

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the declarative form of an experiment.
type Definition struct {
	ID              string              `yaml:"id"`
	Name            string              `yaml:"name,omitempty"`
	Flag            string              `yaml:"flag,omitempty"`
	Variants        []VariantDefinition `yaml:"variants"`
	Metrics         []MetricDefinition  `yaml:"metrics"`
	SuccessCriteria CriteriaDefinition  `yaml:"success_criteria"`
	Allocation      AllocationStrategy  `yaml:"allocation,omitempty"`
}

// VariantDefinition declares one arm of an experiment.
type VariantDefinition struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name,omitempty"`
	Weight  int            `yaml:"weight"`
	Control bool           `yaml:"control,omitempty"`
	Params  map[string]any `yaml:"params,omitempty"`
}

// MetricDefinition declares a tracked metric and the direction that counts as better.
type MetricDefinition struct {
	Name string     `yaml:"name"`
	Type MetricType `yaml:"type"`
	Goal Goal       `yaml:"goal"`
}

// CriteriaDefinition holds the success criteria. Zero values take the defaults.
type CriteriaDefinition struct {
	MinEffectSize   float64 `yaml:"min_effect_size"`
	ConfidenceLevel float64 `yaml:"confidence_level"`
	MinSampleSize   int     `yaml:"min_sample_size"`
	MaxDurationDays int     `yaml:"max_duration_days"`
}

// document is one YAML document: either a list under "experiments" or a single
// inline definition.
type document struct {
	Experiments []Definition `yaml:"experiments,omitempty"`
	Definition  `yaml:",inline"`
}

// Experiment converts the definition into a normalized draft experiment.
func (d Definition) Experiment() *Experiment {
	exp := &Experiment{
		ID:         d.ID,
		Name:       d.Name,
		Flag:       d.Flag,
		Allocation: d.Allocation,
		State:      StateDraft,
		Criteria: SuccessCriteria{
			MinEffectSize:   d.SuccessCriteria.MinEffectSize,
			ConfidenceLevel: d.SuccessCriteria.ConfidenceLevel,
			MinSampleSize:   d.SuccessCriteria.MinSampleSize,
			MaxDurationDays: d.SuccessCriteria.MaxDurationDays,
		},
	}
	for _, v := range d.Variants {
		exp.Variants = append(exp.Variants, Variant{
			ID:      v.ID,
			Name:    v.Name,
			Weight:  v.Weight,
			Control: v.Control,
			Params:  v.Params,
		})
	}
	for _, m := range d.Metrics {
		exp.Metrics = append(exp.Metrics, Metric{Name: m.Name, Type: m.Type, Goal: m.Goal})
	}
	Normalize(exp)
	return exp
}

// ParseDefinitions decodes every YAML document in r into validated draft
// experiments. Unknown keys are rejected. All invalid definitions are
// reported together.
func ParseDefinitions(r io.Reader) ([]*Experiment, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs []Definition
	for {
		var doc document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode experiment definitions: %w", err)
		}
		defs = append(defs, doc.Experiments...)
		if doc.ID != "" || len(doc.Variants) > 0 {
			defs = append(defs, doc.Definition)
		}
	}

	out := make([]*Experiment, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	var errs []error
	for i, d := range defs {
		exp := d.Experiment()
		if err := Validate(exp); err != nil {
			errs = append(errs, fmt.Errorf("experiment #%d (%s): %w", i, d.ID, err))
			continue
		}
		if seen[exp.ID] {
			errs = append(errs, fmt.Errorf("experiment #%d (%s): %w", i, d.ID, ErrExperimentExists))
			continue
		}
		seen[exp.ID] = true
		out = append(out, exp)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// LoadDefinitions reads and parses a definitions file.
func LoadDefinitions(path string) ([]*Experiment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open experiment definitions: %w", err)
	}
	defer f.Close()
	return ParseDefinitions(f)
}
