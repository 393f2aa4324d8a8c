package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Test names reported on results.
const (
	TestTwoProportionZ = "two_proportion_z"
	TestWelchT         = "welch_t"
	TestChiSquared     = "chi_squared"
)

// DefaultPower is the statistical power used for sample size estimates.
const DefaultPower = 0.8

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// TestResult is the outcome of a single hypothesis test.
type TestResult struct {
	Statistic float64
	PValue    float64
	DF        float64
}

// degeneratePValue handles a degenerate standard error: identical samples give p=1,
// a difference with no spread gives p=0.
func degeneratePValue(diff float64) float64 {
	if diff == 0 {
		return 1
	}
	return 0
}

// TwoProportionZ tests H0: p1 == p2 with a pooled standard error. The
// statistic is positive when the second rate is higher.
func TwoProportionZ(successes1, n1, successes2, n2 int64) TestResult {
	if n1 == 0 || n2 == 0 {
		return TestResult{PValue: 1}
	}
	p1 := float64(successes1) / float64(n1)
	p2 := float64(successes2) / float64(n2)
	pooled := float64(successes1+successes2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return TestResult{PValue: degeneratePValue(p2 - p1)}
	}
	z := (p2 - p1) / se
	return TestResult{Statistic: z, PValue: twoSided(stdNormal.Survival(math.Abs(z)))}
}

// WelchT tests H0: mean1 == mean2 without assuming equal variances. Variances
// are unbiased sample variances.
func WelchT(mean1, var1 float64, n1 int64, mean2, var2 float64, n2 int64) TestResult {
	if n1 < 2 || n2 < 2 {
		return TestResult{PValue: 1}
	}
	a := var1 / float64(n1)
	b := var2 / float64(n2)
	se := math.Sqrt(a + b)
	diff := mean2 - mean1
	if se == 0 {
		return TestResult{PValue: degeneratePValue(diff), DF: float64(n1 + n2 - 2)}
	}
	df := (a + b) * (a + b) / (a*a/float64(n1-1) + b*b/float64(n2-1))
	t := diff / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return TestResult{Statistic: t, PValue: twoSided(dist.Survival(math.Abs(t))), DF: df}
}

// ChiSquaredHomogeneity tests whether success rates are equal across all
// groups of a k x 2 contingency table.
func ChiSquaredHomogeneity(successes, totals []int64) TestResult {
	k := len(totals)
	if k < 2 || len(successes) != k {
		return TestResult{PValue: 1}
	}
	var n, s int64
	groups := 0
	for i := range totals {
		n += totals[i]
		s += successes[i]
		if totals[i] > 0 {
			groups++
		}
	}
	if groups < 2 || s == 0 || s == n {
		return TestResult{PValue: 1, DF: float64(max(groups-1, 0))}
	}

	rate := float64(s) / float64(n)
	chi2 := 0.0
	for i := range totals {
		if totals[i] == 0 {
			continue
		}
		expS := float64(totals[i]) * rate
		expF := float64(totals[i]) * (1 - rate)
		obsS := float64(successes[i])
		obsF := float64(totals[i] - successes[i])
		chi2 += (obsS-expS)*(obsS-expS)/expS + (obsF-expF)*(obsF-expF)/expF
	}
	df := float64(groups - 1)
	dist := distuv.ChiSquared{K: df}
	return TestResult{Statistic: chi2, PValue: dist.Survival(chi2), DF: df}
}

// CohensD is the standardized mean difference using the pooled standard
// deviation. A zero pooled deviation yields 0.
func CohensD(mean1, var1 float64, n1 int64, mean2, var2 float64, n2 int64) float64 {
	if n1+n2 <= 2 {
		return 0
	}
	pooled := math.Sqrt((float64(n1-1)*var1 + float64(n2-1)*var2) / float64(n1+n2-2))
	if pooled == 0 || math.IsNaN(pooled) {
		return 0
	}
	return (mean2 - mean1) / pooled
}

// ConfidenceInterval returns the normal-approximation interval around diff.
func ConfidenceInterval(diff, se, confidence float64) (lower, upper float64) {
	if se <= 0 || math.IsNaN(se) {
		return diff, diff
	}
	margin := ZCritical(confidence) * se
	return diff - margin, diff + margin
}

// ZCritical is the two-sided critical value of the standard normal for a
// confidence level.
func ZCritical(confidence float64) float64 {
	return stdNormal.Quantile(1 - (1-confidence)/2)
}

// RequiredSampleSize estimates the per-arm sample size needed to detect a
// standardized effect (Cohen's d) with a two-sided test.
func RequiredSampleSize(effect, alpha, power float64) int {
	effect = math.Abs(effect)
	if effect == 0 || alpha <= 0 || alpha >= 1 || power <= 0 || power >= 1 {
		return 0
	}
	z := stdNormal.Quantile(1-alpha/2) + stdNormal.Quantile(power)
	return int(math.Ceil(2 * z * z / (effect * effect)))
}

// RequiredProportionSampleSize estimates the per-arm sample size needed to
// detect a change from rate p1 to p2.
func RequiredProportionSampleSize(p1, p2, alpha, power float64) int {
	diff := math.Abs(p2 - p1)
	if diff == 0 || alpha <= 0 || alpha >= 1 || power <= 0 || power >= 1 {
		return 0
	}
	z := stdNormal.Quantile(1-alpha/2) + stdNormal.Quantile(power)
	variance := p1*(1-p1) + p2*(1-p2)
	return int(math.Ceil(z * z * variance / (diff * diff)))
}

func twoSided(tail float64) float64 {
	return math.Min(1, 2*tail)
}
