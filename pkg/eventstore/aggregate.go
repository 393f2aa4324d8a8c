package eventstore

import (
	"math"
	"sync"
)

// Aggregate summarizes the values of one metric in one variant.
type Aggregate struct {
	Count     int64   `json:"count"`
	Sum       float64 `json:"sum"`
	Mean      float64 `json:"mean"`
	M2        float64 `json:"m2"`
	Successes int64   `json:"successes"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// Add folds one observation in with Welford's update.
func (a *Aggregate) Add(x float64) {
	if a.Count == 0 {
		a.Min, a.Max = x, x
	} else {
		a.Min = math.Min(a.Min, x)
		a.Max = math.Max(a.Max, x)
	}
	a.Count++
	a.Sum += x
	delta := x - a.Mean
	a.Mean += delta / float64(a.Count)
	a.M2 += delta * (x - a.Mean)
	if x != 0 {
		a.Successes++
	}
}

// Merge combines two aggregates (Chan et al. parallel variance).
func (a Aggregate) Merge(b Aggregate) Aggregate {
	switch {
	case a.Count == 0:
		return b
	case b.Count == 0:
		return a
	}
	n := a.Count + b.Count
	delta := b.Mean - a.Mean
	return Aggregate{
		Count:     n,
		Sum:       a.Sum + b.Sum,
		Mean:      a.Mean + delta*float64(b.Count)/float64(n),
		M2:        a.M2 + b.M2 + delta*delta*float64(a.Count)*float64(b.Count)/float64(n),
		Successes: a.Successes + b.Successes,
		Min:       math.Min(a.Min, b.Min),
		Max:       math.Max(a.Max, b.Max),
	}
}

// Variance is the unbiased sample variance, zero below two observations.
func (a Aggregate) Variance() float64 {
	if a.Count < 2 {
		return 0
	}
	return a.M2 / float64(a.Count-1)
}

func (a Aggregate) StdDev() float64 { return math.Sqrt(a.Variance()) }

// Failures is the number of zero-valued observations.
func (a Aggregate) Failures() int64 { return a.Count - a.Successes }

// Rate is the share of non-zero observations.
func (a Aggregate) Rate() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.Successes) / float64(a.Count)
}

type cell struct {
	mu  sync.Mutex
	agg Aggregate
}

func (c *cell) add(x float64) {
	c.mu.Lock()
	c.agg.Add(x)
	c.mu.Unlock()
}

func (c *cell) snapshot() Aggregate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg
}

type participantSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (p *participantSet) add(id string) {
	p.mu.Lock()
	p.ids[id] = struct{}{}
	p.mu.Unlock()
}

func (p *participantSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}
