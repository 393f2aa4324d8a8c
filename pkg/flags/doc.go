// Package flags resolves named feature flags to effective values.
//
// A flag is either static, managed through a Provider, or driven by the
// experiment linked to it. Resolve consults the experiment first: a running
// experiment splits participants through the allocator, a concluded one serves
// the promoted variant (or the control when aborted) to everyone. Flags without
// a live or finished experiment fall back to their static default.
//
// Resolution never records events; callers report outcomes to the event store
// separately.
package flags
