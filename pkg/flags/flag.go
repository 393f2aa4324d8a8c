package flags

import (
	"maps"
	"slices"
	"time"
)

// Flag is a static feature flag. Params is the payload served when no
// experiment drives the flag.
type Flag struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Params      map[string]any `json:"params,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	UpdatedAt   time.Time      `json:"updated_at,omitzero"`
}

func (f *Flag) clone() *Flag {
	c := *f
	c.Params = maps.Clone(f.Params)
	c.Tags = slices.Clone(f.Tags)
	return &c
}

// Reason explains where a resolved value came from.
type Reason string

const (
	ReasonExperimentAssignment Reason = "experiment_assignment"
	ReasonExperimentConcluded  Reason = "experiment_concluded"
	ReasonStaticDefault        Reason = "static_default"
	ReasonFlagDisabled         Reason = "flag_disabled"
)

// Resolution is the effective value of a flag for one participant.
type Resolution struct {
	Flag         string         `json:"flag"`
	Enabled      bool           `json:"enabled"`
	ExperimentID string         `json:"experiment_id,omitempty"`
	VariantID    string         `json:"variant_id,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	Reason       Reason         `json:"reason"`
}
