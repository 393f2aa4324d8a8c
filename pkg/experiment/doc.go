// Package experiment defines experiments and owns their lifecycle.
//
// An Experiment is created in the draft state, frozen by Start, and moved
// through running, concluding and concluded by the decision engine or an
// operator. Transitions are declared in a table of guards and effects and
// applied by the Registry under a per-experiment lock followed by a versioned
// compare-and-swap on the Store, so concurrent proposals can never promote two
// different variants.
//
// The Registry serves reads from an in-memory snapshot. Hot-path components
// depend on the narrow Reader interface and must treat the returned
// experiments as read-only; Get, List and ByFlag return private copies.
//
// Definitions can be loaded from YAML with ParseDefinitions or
// LoadDefinitions.
package experiment
