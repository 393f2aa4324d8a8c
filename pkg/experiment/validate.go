package experiment

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

const maxIDLength = 128

// rule is one validation check bound to a field.
type rule struct {
	field string
	ok    bool
	msg   string
}

func apply(ve ValidationError, rules ...rule) {
	for _, r := range rules {
		if !r.ok {
			ve.add(r.field, r.msg)
		}
	}
}

// Normalize fills defaults a definition may leave out. A definition without an
// explicit control treats the variant with id "control" as the control.
func Normalize(exp *Experiment) {
	if exp.Allocation == "" {
		exp.Allocation = AllocationConsistentHash
	}
	if exp.State == "" {
		exp.State = StateDraft
	}
	if exp.Criteria.ConfidenceLevel == 0 {
		exp.Criteria.ConfidenceLevel = DefaultConfidenceLevel
	}
	if exp.Criteria.MinSampleSize == 0 {
		exp.Criteria.MinSampleSize = DefaultMinSampleSize
	}
	hasControl := false
	for _, v := range exp.Variants {
		hasControl = hasControl || v.Control
	}
	if !hasControl {
		for i := range exp.Variants {
			if exp.Variants[i].ID == "control" {
				exp.Variants[i].Control = true
				break
			}
		}
	}
	for i := range exp.Variants {
		if exp.Variants[i].Name == "" {
			exp.Variants[i].Name = exp.Variants[i].ID
		}
	}
	if exp.Name == "" {
		exp.Name = exp.ID
	}
}

// Validate checks the structural invariants of a definition and returns a
// ValidationError listing every violation, or nil.
func Validate(exp *Experiment) error {
	if exp == nil {
		return ValidationError{"experiment": {"cannot be nil"}}
	}
	ve := ValidationError{}

	apply(ve,
		rule{"id", exp.ID != "", "is required"},
		rule{"id", exp.ID == "" || (len(exp.ID) <= maxIDLength && idPattern.MatchString(exp.ID)), "must be alphanumeric with - _ . separators"},
		rule{"allocation", exp.Allocation == "" || exp.Allocation == AllocationConsistentHash, "must be consistent_hash"},
		rule{"variants", len(exp.Variants) > 0, "at least one variant is required"},
		rule{"metrics", len(exp.Metrics) > 0, "at least one metric is required"},
	)

	seen := make(map[string]bool, len(exp.Variants))
	total, controls := 0, 0
	for i, v := range exp.Variants {
		field := fmt.Sprintf("variants[%d]", i)
		apply(ve,
			rule{field + ".id", v.ID != "", "is required"},
			rule{field + ".id", v.ID == "" || idPattern.MatchString(v.ID), "must be alphanumeric with - _ . separators"},
			rule{field + ".id", v.ID == "" || !seen[v.ID], "duplicate variant id " + v.ID},
			rule{field + ".weight", v.Weight >= 0 && v.Weight <= 100, "must be between 0 and 100"},
		)
		seen[v.ID] = true
		total += v.Weight
		if v.Control {
			controls++
		}
	}
	if len(exp.Variants) > 0 {
		apply(ve,
			rule{"variants", total == 100, fmt.Sprintf("weights must sum to 100, got %d", total)},
			rule{"variants", controls == 1, fmt.Sprintf("exactly one control variant is required, got %d", controls)},
		)
	}

	names := make(map[string]bool, len(exp.Metrics))
	for i, m := range exp.Metrics {
		field := fmt.Sprintf("metrics[%d]", i)
		apply(ve,
			rule{field + ".name", m.Name != "", "is required"},
			rule{field + ".name", m.Name == "" || !names[m.Name], "duplicate metric " + m.Name},
			rule{field + ".type", m.Type == MetricProportion || m.Type == MetricContinuous, "must be proportion or continuous"},
			rule{field + ".goal", m.Goal == GoalMaximize || m.Goal == GoalMinimize, "must be maximize or minimize"},
		)
		names[m.Name] = true
	}

	c := exp.Criteria
	apply(ve,
		rule{"success_criteria.confidence_level", c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1, "must be in (0, 1)"},
		rule{"success_criteria.min_effect_size", c.MinEffectSize >= 0, "cannot be negative"},
		rule{"success_criteria.min_sample_size", c.MinSampleSize >= 0, "cannot be negative"},
		rule{"success_criteria.max_duration_days", c.MaxDurationDays >= 0, "cannot be negative"},
	)

	if len(ve) == 0 {
		return nil
	}
	return ve
}
