// Package allocator assigns participants to experiment variants.
//
// Assignment is a pure function of the experiment id, the participant id and
// the variant weights: the pair is hashed with 64-bit FNV-1a, mixed, mapped to
// a point in [0, 1) and located on the cumulative weight line of the variants
// sorted by id. The same participant therefore always lands in the same
// variant of a running experiment, across processes and restarts, without any
// stored state.
package allocator
