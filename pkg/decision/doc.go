// Package decision turns analysis results into lifecycle actions.
//
// Engine.Decide is a pure function of an experiment, its analysis results and
// the current time. Metrics are evaluated in declaration order, so the first
// metric acts as the primary one: the first metric on which some treatment is
// significantly better than the control decides, and among several winners
// the largest absolute effect is promoted. A treatment that is significantly
// worse on any metric is never promoted. Experiments that outlive their
// maximum duration without a winner are aborted; everything else continues.
//
// The Sweeper runs the engine periodically over every running and concluding
// experiment. It only proposes actions; concluding an experiment takes an
// explicit confirmation, given by an operator or, when AutoConfirmAfter is
// set, by that many consecutive sweeps agreeing with the pending proposal.
package decision
