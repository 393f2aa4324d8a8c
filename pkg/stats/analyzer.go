package stats

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/dmitrymomot/abkit/pkg/eventstore"
	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/logger"
)

// Summary describes one arm of a comparison.
type Summary struct {
	VariantID    string  `json:"variant_id"`
	Count        int64   `json:"count"`
	Participants int     `json:"participants"`
	Mean         float64 `json:"mean"`
	Variance     float64 `json:"variance"`
	Successes    int64   `json:"successes"`
	Failures     int64   `json:"failures"`
}

func summarize(variantID string, agg eventstore.Aggregate, participants int) Summary {
	return Summary{
		VariantID:    variantID,
		Count:        agg.Count,
		Participants: participants,
		Mean:         agg.Mean,
		Variance:     agg.Variance(),
		Successes:    agg.Successes,
		Failures:     agg.Failures(),
	}
}

// AnalysisResult compares one treatment against the control on one metric.
type AnalysisResult struct {
	ExperimentID       string                `json:"experiment_id"`
	Metric             string                `json:"metric"`
	MetricType         experiment.MetricType `json:"metric_type"`
	Goal               experiment.Goal       `json:"goal"`
	Control            Summary               `json:"control"`
	Treatment          Summary               `json:"treatment"`
	Test               string                `json:"test"`
	Statistic          float64               `json:"statistic"`
	DegreesOfFreedom   float64               `json:"degrees_of_freedom,omitempty"`
	PValue             float64               `json:"p_value"`
	EffectSize         float64               `json:"effect_size"`
	Difference         float64               `json:"difference"`
	ConfidenceLevel    float64               `json:"confidence_level"`
	CILower            float64               `json:"ci_lower"`
	CIUpper            float64               `json:"ci_upper"`
	Significant        bool                  `json:"significant"`
	InsufficientData   bool                  `json:"insufficient_data"`
	Favorable          bool                  `json:"favorable"`
	RequiredSampleSize int                   `json:"required_sample_size,omitempty"`
}

// OmnibusResult is a chi-squared test across every variant of a proportion metric.
type OmnibusResult struct {
	Metric      string  `json:"metric"`
	Statistic   float64 `json:"statistic"`
	DF          float64 `json:"degrees_of_freedom"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// Report is the full analysis of an experiment.
type Report struct {
	ExperimentID string           `json:"experiment_id"`
	State        experiment.State `json:"state"`
	Results      []AnalysisResult `json:"results"`
	Omnibus      []OmnibusResult  `json:"omnibus,omitempty"`
	Events       int64            `json:"events"`
	AnalyzedAt   time.Time        `json:"analyzed_at"`
}

// Compare runs the test matching the metric type on two aggregates.
func Compare(metric experiment.Metric, criteria experiment.SuccessCriteria, control, treatment eventstore.Aggregate, power float64) AnalysisResult {
	confidence := criteria.ConfidenceLevel
	if confidence <= 0 || confidence >= 1 {
		confidence = experiment.DefaultConfidenceLevel
	}
	alpha := 1 - confidence

	res := AnalysisResult{
		Metric:          metric.Name,
		MetricType:      metric.Type,
		Goal:            metric.Goal,
		ConfidenceLevel: confidence,
	}

	var se float64
	var test TestResult
	computable := false
	switch metric.Type {
	case experiment.MetricProportion:
		res.Test = TestTwoProportionZ
		computable = control.Count > 0 && treatment.Count > 0
		test = TwoProportionZ(control.Successes, control.Count, treatment.Successes, treatment.Count)
		p1, p2 := control.Rate(), treatment.Rate()
		res.Difference = p2 - p1
		res.EffectSize = res.Difference
		if computable {
			se = math.Sqrt(p1*(1-p1)/float64(control.Count) + p2*(1-p2)/float64(treatment.Count))
		}
		target := criteria.MinEffectSize
		if target == 0 {
			target = math.Abs(res.Difference)
		}
		res.RequiredSampleSize = RequiredProportionSampleSize(p1, math.Min(1, p1+target), alpha, power)
	default:
		res.Test = TestWelchT
		computable = control.Count >= 2 && treatment.Count >= 2
		test = WelchT(control.Mean, control.Variance(), control.Count, treatment.Mean, treatment.Variance(), treatment.Count)
		res.Difference = treatment.Mean - control.Mean
		res.EffectSize = CohensD(control.Mean, control.Variance(), control.Count, treatment.Mean, treatment.Variance(), treatment.Count)
		if computable {
			se = math.Sqrt(control.Variance()/float64(control.Count) + treatment.Variance()/float64(treatment.Count))
		}
		target := criteria.MinEffectSize
		if target == 0 {
			target = res.EffectSize
		}
		res.RequiredSampleSize = RequiredSampleSize(target, alpha, power)
	}

	res.Statistic = test.Statistic
	res.PValue = test.PValue
	res.DegreesOfFreedom = test.DF
	res.CILower, res.CIUpper = ConfidenceInterval(res.Difference, se, confidence)

	minSample := int64(criteria.MinSampleSize)
	res.InsufficientData = !computable || control.Count < minSample || treatment.Count < minSample
	res.Significant = !res.InsufficientData &&
		res.PValue < alpha &&
		math.Abs(res.EffectSize) >= criteria.MinEffectSize
	switch metric.Goal {
	case experiment.GoalMinimize:
		res.Favorable = res.Difference < 0
	default:
		res.Favorable = res.Difference > 0
	}
	return res
}

// Snapshotter provides aggregate snapshots.
type Snapshotter interface {
	Snapshot(experimentID string) eventstore.Snapshot
}

// Analyzer summarizes experiments from event store snapshots.
type Analyzer struct {
	experiments experiment.Reader
	events      Snapshotter
	power       float64
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPower sets the power used for sample size estimates.
func WithPower(p float64) Option {
	return func(a *Analyzer) {
		if p > 0 && p < 1 {
			a.power = p
		}
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(experiments experiment.Reader, events Snapshotter, opts ...Option) *Analyzer {
	a := &Analyzer{
		experiments: experiments,
		events:      events,
		power:       DefaultPower,
		logger:      logger.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze compares every treatment with the control on every metric, in metric
// declaration order.
func (a *Analyzer) Analyze(ctx context.Context, experimentID string) ([]AnalysisResult, error) {
	report, err := a.Report(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return report.Results, nil
}

// Report is Analyze plus the omnibus tests and snapshot metadata.
func (a *Analyzer) Report(ctx context.Context, experimentID string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	exp, ok := a.experiments.Lookup(experimentID)
	if !ok {
		return Report{}, experiment.ErrNotFound
	}
	return a.ReportFor(ctx, exp), nil
}

// ReportFor analyzes an experiment the caller already holds.
func (a *Analyzer) ReportFor(ctx context.Context, exp *experiment.Experiment) Report {
	snap := a.events.Snapshot(exp.ID)
	report := Report{
		ExperimentID: exp.ID,
		State:        exp.State,
		Events:       snap.Events(),
		AnalyzedAt:   a.now(),
	}

	control, ok := exp.Control()
	if !ok {
		return report
	}
	treatments := exp.Treatments()
	for _, m := range exp.Metrics {
		controlAgg := snap.Aggregate(control.ID, m.Name)
		for _, v := range treatments {
			treatmentAgg := snap.Aggregate(v.ID, m.Name)
			res := Compare(m, exp.Criteria, controlAgg, treatmentAgg, a.power)
			res.ExperimentID = exp.ID
			res.Control = summarize(control.ID, controlAgg, snap.Participants(control.ID))
			res.Treatment = summarize(v.ID, treatmentAgg, snap.Participants(v.ID))
			report.Results = append(report.Results, res)
		}

		if m.Type == experiment.MetricProportion && len(exp.Variants) > 2 {
			report.Omnibus = append(report.Omnibus, a.omnibus(exp, m, snap))
		}
	}

	a.logger.DebugContext(ctx, "experiment analyzed",
		logger.ExperimentID(exp.ID),
		logger.Count("results", len(report.Results)),
		logger.Count("events", int(report.Events)))
	return report
}

func (a *Analyzer) omnibus(exp *experiment.Experiment, m experiment.Metric, snap eventstore.Snapshot) OmnibusResult {
	successes := make([]int64, len(exp.Variants))
	totals := make([]int64, len(exp.Variants))
	for i, v := range exp.Variants {
		agg := snap.Aggregate(v.ID, m.Name)
		successes[i], totals[i] = agg.Successes, agg.Count
	}
	test := ChiSquaredHomogeneity(successes, totals)
	return OmnibusResult{
		Metric:      m.Name,
		Statistic:   test.Statistic,
		DF:          test.DF,
		PValue:      test.PValue,
		Significant: test.PValue < exp.Criteria.Alpha(),
	}
}
