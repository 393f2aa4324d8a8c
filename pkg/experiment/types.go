package experiment

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// State is the lifecycle state of an experiment.
type State string

const (
	StateDraft      State = "draft"
	StateRunning    State = "running"
	StateConcluding State = "concluding"
	StateConcluded  State = "concluded"
	StateArchived   State = "archived"
)

// AcceptsEvents reports whether metric events may still be recorded in this state.
func (s State) AcceptsEvents() bool {
	return s == StateRunning || s == StateConcluding
}

// Assigning reports whether participants are still split between variants.
func (s State) Assigning() bool {
	return s == StateRunning || s == StateConcluding
}

// Finished reports whether the experiment has a final outcome.
func (s State) Finished() bool {
	return s == StateConcluded || s == StateArchived
}

// AllocationStrategy selects how participants are bucketed into variants.
type AllocationStrategy string

// AllocationConsistentHash is the only strategy and the default.
const AllocationConsistentHash AllocationStrategy = "consistent_hash"

// MetricType selects the hypothesis test used for a metric.
type MetricType string

const (
	MetricProportion MetricType = "proportion"
	MetricContinuous MetricType = "continuous"
)

// Goal is the success direction of a metric.
type Goal string

const (
	GoalMaximize Goal = "maximize"
	GoalMinimize Goal = "minimize"
)

// Variant is one arm of an experiment.
type Variant struct {
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Weight  int            `json:"weight"`
	Control bool           `json:"control,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// Metric is a tracked outcome.
type Metric struct {
	Name string     `json:"name"`
	Type MetricType `json:"type"`
	Goal Goal       `json:"goal"`
}

// SuccessCriteria configures when a treatment counts as a winner.
type SuccessCriteria struct {
	MinEffectSize   float64 `json:"min_effect_size"`
	ConfidenceLevel float64 `json:"confidence_level"`
	MinSampleSize   int     `json:"min_sample_size"`
	MaxDurationDays int     `json:"max_duration_days,omitempty"`
}

// Defaults applied when a definition leaves criteria unset.
const (
	DefaultConfidenceLevel = 0.95
	DefaultMinSampleSize   = 100
)

// Alpha is the significance level derived from the confidence level.
func (c SuccessCriteria) Alpha() float64 {
	return 1 - c.ConfidenceLevel
}

// MaxDuration returns the run-time limit, zero meaning unlimited.
func (c SuccessCriteria) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationDays) * 24 * time.Hour
}

// ActionKind enumerates decision outcomes.
type ActionKind string

const (
	ActionContinue ActionKind = "continue"
	ActionPromote  ActionKind = "promote"
	ActionAbort    ActionKind = "abort"
)

// Action is a lifecycle recommendation. Its text form is "continue", "abort"
// or "promote:<variant>".
type Action struct {
	Kind    ActionKind
	Variant string
}

// Continue keeps an experiment running.
func Continue() Action { return Action{Kind: ActionContinue} }

// Abort ends an experiment and serves the control to everyone.
func Abort() Action { return Action{Kind: ActionAbort} }

// Promote ends an experiment and serves variantID to everyone.
func Promote(variantID string) Action { return Action{Kind: ActionPromote, Variant: variantID} }

func (a Action) String() string {
	if a.Kind == ActionPromote {
		return string(ActionPromote) + ":" + a.Variant
	}
	return string(a.Kind)
}

// IsZero reports whether the action is unset.
func (a Action) IsZero() bool { return a.Kind == "" }

// ParseAction parses the text form of an action.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == string(ActionContinue):
		return Continue(), nil
	case s == string(ActionAbort):
		return Abort(), nil
	case strings.HasPrefix(s, string(ActionPromote)+":"):
		v := strings.TrimPrefix(s, string(ActionPromote)+":")
		if v == "" {
			return Action{}, fmt.Errorf("%w: promote requires a variant", ErrInvalidAction)
		}
		return Promote(v), nil
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Experiment is a definition together with its lifecycle state.
type Experiment struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Flag       string             `json:"flag,omitempty"`
	Variants   []Variant          `json:"variants"`
	Allocation AllocationStrategy `json:"allocation"`
	Metrics    []Metric           `json:"metrics"`
	Criteria   SuccessCriteria    `json:"success_criteria"`
	State      State              `json:"state"`
	// Pending is the action proposed while the experiment is concluding.
	Pending *Action `json:"pending,omitempty"`
	// Outcome is the confirmed action once concluded.
	Outcome   *Action   `json:"outcome,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Control returns the control variant.
func (e *Experiment) Control() (Variant, bool) {
	for _, v := range e.Variants {
		if v.Control {
			return v, true
		}
	}
	return Variant{}, false
}

// Variant looks a variant up by id.
func (e *Experiment) Variant(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Metric looks a metric up by name.
func (e *Experiment) Metric(name string) (Metric, bool) {
	for _, m := range e.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Treatments returns every non-control variant in declaration order.
func (e *Experiment) Treatments() []Variant {
	out := make([]Variant, 0, len(e.Variants))
	for _, v := range e.Variants {
		if !v.Control {
			out = append(out, v)
		}
	}
	return out
}

// ServedVariant returns the variant a finished experiment serves to everyone:
// the promoted one, or the control when aborted.
func (e *Experiment) ServedVariant() (Variant, bool) {
	if e.Outcome != nil && e.Outcome.Kind == ActionPromote {
		if v, ok := e.Variant(e.Outcome.Variant); ok {
			return v, true
		}
	}
	return e.Control()
}

// Clone returns a deep copy so callers can never mutate registry state.
func (e *Experiment) Clone() *Experiment {
	if e == nil {
		return nil
	}
	c := *e
	c.Variants = make([]Variant, len(e.Variants))
	for i, v := range e.Variants {
		v.Params = maps.Clone(v.Params)
		c.Variants[i] = v
	}
	c.Metrics = slices.Clone(e.Metrics)
	if e.Pending != nil {
		p := *e.Pending
		c.Pending = &p
	}
	if e.Outcome != nil {
		o := *e.Outcome
		c.Outcome = &o
	}
	return &c
}

// Value is a metric observation. JSON booleans decode to 1 and 0.
type Value float64

func (v *Value) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*v = 1
		return nil
	case "false":
		*v = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("metric value must be a number or boolean: %w", err)
	}
	*v = Value(f)
	return nil
}

// Event is a single immutable metric observation.
type Event struct {
	ID            string    `json:"event_id,omitempty"`
	ExperimentID  string    `json:"experiment_id"`
	VariantID     string    `json:"variant_id"`
	ParticipantID string    `json:"participant_id"`
	Metric        string    `json:"metric"`
	Value         Value     `json:"value"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
}
