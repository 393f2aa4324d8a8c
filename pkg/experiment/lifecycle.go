package experiment

import (
	"fmt"
	"time"
)

// Trigger is a lifecycle event applied to an experiment.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerPropose  Trigger = "propose"
	TriggerConfirm  Trigger = "confirm"
	TriggerReject   Trigger = "reject"
	TriggerConclude Trigger = "conclude"
	TriggerArchive  Trigger = "archive"
)

// transitionInput carries the data a trigger needs.
type transitionInput struct {
	action Action
	now    time.Time
}

// guard rejects a transition by returning an error.
type guard func(exp *Experiment, in transitionInput) error

// effect mutates the experiment once every guard passed.
type effect func(exp *Experiment, in transitionInput)

type transition struct {
	to      State
	guards  []guard
	effects []effect
}

// lifecycle is the transition table keyed by [from][trigger]. concluding is
// a staging state: only an explicit confirm (or reject) leaves it, so one noisy
// analysis cycle can never finish an experiment on its own.
var lifecycle = map[State]map[Trigger]transition{
	StateDraft: {
		TriggerStart:   {to: StateRunning, guards: []guard{guardValid}, effects: []effect{markStarted}},
		TriggerArchive: {to: StateArchived, effects: []effect{markEnded}},
	},
	StateRunning: {
		TriggerPropose:  {to: StateConcluding, guards: []guard{guardFinalAction}, effects: []effect{setPending}},
		TriggerConclude: {to: StateConcluded, guards: []guard{guardFinalAction}, effects: []effect{setOutcome, markEnded}},
	},
	StateConcluding: {
		TriggerConfirm:  {to: StateConcluded, guards: []guard{guardMatchesPending}, effects: []effect{setOutcome, markEnded}},
		TriggerReject:   {to: StateRunning, effects: []effect{clearPending}},
		TriggerConclude: {to: StateConcluded, guards: []guard{guardFinalAction}, effects: []effect{setOutcome, markEnded}},
	},
	StateConcluded: {
		TriggerArchive: {to: StateArchived},
	},
}

// CanFire reports whether the trigger has a transition from the experiment's state.
// Guards are not evaluated.
func CanFire(exp *Experiment, trig Trigger) bool {
	_, ok := lifecycle[exp.State][trig]
	return ok
}

// fire applies the trigger to exp in place. The first failing guard aborts the
// transition and leaves exp untouched.
func fire(exp *Experiment, trig Trigger, in transitionInput) error {
	t, ok := lifecycle[exp.State][trig]
	if !ok {
		return &TransitionError{ExperimentID: exp.ID, State: exp.State, Trigger: trig}
	}
	for _, g := range t.guards {
		if err := g(exp, in); err != nil {
			return err
		}
	}
	exp.State = t.to
	for _, eff := range t.effects {
		eff(exp, in)
	}
	exp.UpdatedAt = in.now
	return nil
}

func guardValid(exp *Experiment, _ transitionInput) error {
	return Validate(exp)
}

func guardFinalAction(exp *Experiment, in transitionInput) error {
	switch in.action.Kind {
	case ActionAbort:
		return nil
	case ActionPromote:
		if _, ok := exp.Variant(in.action.Variant); !ok {
			return fmt.Errorf("%w: unknown variant %q", ErrInvalidAction, in.action.Variant)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q does not conclude an experiment", ErrInvalidAction, in.action)
	}
}

func guardMatchesPending(exp *Experiment, in transitionInput) error {
	if exp.Pending == nil || *exp.Pending != in.action {
		return fmt.Errorf("%w: got %q", ErrActionMismatch, in.action)
	}
	return nil
}

func markStarted(exp *Experiment, in transitionInput) { exp.StartedAt = in.now }
func markEnded(exp *Experiment, in transitionInput)   { exp.EndedAt = in.now }

func setPending(exp *Experiment, in transitionInput) {
	a := in.action
	exp.Pending = &a
}

func clearPending(exp *Experiment, _ transitionInput) { exp.Pending = nil }

func setOutcome(exp *Experiment, in transitionInput) {
	a := in.action
	exp.Outcome = &a
	exp.Pending = nil
}
