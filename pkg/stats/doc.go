// Package stats compares experiment variants with frequentist hypothesis
// tests.
//
// Proportion metrics use a two-proportion z-test with a pooled standard error
// and report the raw difference in rates as the effect size. Continuous metrics
// use Welch's t-test with Welch-Satterthwaite degrees of freedom and report
// Cohen's d. Experiments with more than two variants also get a chi-squared
// test of homogeneity per proportion metric.
//
// A result is Significant only when the p-value is below alpha, the effect is
// at least the configured minimum, and both arms reached the minimum sample
// size. Too little data is never an error: the result is returned with
// InsufficientData set and a p-value of 1 when no test could be computed.
//
// Every function in this package is pure over its inputs; Analyzer.Analyze
// reads a copy-on-read snapshot and can be called at any time.
package stats
