package eventstore

import "time"

// VariantSnapshot holds the aggregates of one variant.
type VariantSnapshot struct {
	VariantID    string               `json:"variant_id"`
	Participants int                  `json:"participants"`
	Metrics      map[string]Aggregate `json:"metrics"`
}

// Snapshot is a point-in-time copy of an experiment's aggregates. Cells are
// copied one at a time, so a snapshot taken during writes may mix cells from
// slightly different instants, but every cell is internally consistent.
type Snapshot struct {
	ExperimentID string                     `json:"experiment_id"`
	Variants     map[string]VariantSnapshot `json:"variants"`
	TakenAt      time.Time                  `json:"taken_at"`
}

// Aggregate returns the aggregate of a metric in a variant, zero if nothing
// was recorded.
func (s Snapshot) Aggregate(variantID, metric string) Aggregate {
	return s.Variants[variantID].Metrics[metric]
}

// Participants returns the number of distinct participants seen in a variant.
func (s Snapshot) Participants(variantID string) int {
	return s.Variants[variantID].Participants
}

// Total merges a metric across every variant.
func (s Snapshot) Total(metric string) Aggregate {
	var total Aggregate
	for _, v := range s.Variants {
		total = total.Merge(v.Metrics[metric])
	}
	return total
}

// Events is the number of observations across all cells.
func (s Snapshot) Events() int64 {
	var n int64
	for _, v := range s.Variants {
		for _, a := range v.Metrics {
			n += a.Count
		}
	}
	return n
}
