package eventstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/abkit/pkg/eventstore"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	var a eventstore.Aggregate
	assert.Zero(t, a.Variance())
	assert.Zero(t, a.Rate())

	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		a.Add(x)
	}
	assert.Equal(t, int64(8), a.Count)
	assert.InDelta(t, 40, a.Sum, 1e-12)
	assert.InDelta(t, 5, a.Mean, 1e-12)
	assert.InDelta(t, 32.0/7.0, a.Variance(), 1e-12)
	assert.InDelta(t, 2, a.Min, 0)
	assert.InDelta(t, 9, a.Max, 0)
	assert.Equal(t, int64(8), a.Successes)
	assert.Equal(t, int64(0), a.Failures())
}

func TestAggregateProportion(t *testing.T) {
	t.Parallel()

	var a eventstore.Aggregate
	for i := range 10 {
		if i < 3 {
			a.Add(1)
		} else {
			a.Add(0)
		}
	}
	assert.Equal(t, int64(3), a.Successes)
	assert.Equal(t, int64(7), a.Failures())
	assert.InDelta(t, 0.3, a.Rate(), 1e-12)
	assert.InDelta(t, 0.3, a.Mean, 1e-12)
}

func TestAggregateMerge(t *testing.T) {
	t.Parallel()

	var left, right, all eventstore.Aggregate
	for i, x := range []float64{1, 3, 3, 8, 10, 2, 0, 5} {
		all.Add(x)
		if i%2 == 0 {
			left.Add(x)
		} else {
			right.Add(x)
		}
	}
	merged := left.Merge(right)
	assert.Equal(t, all.Count, merged.Count)
	assert.Equal(t, all.Successes, merged.Successes)
	assert.InDelta(t, all.Mean, merged.Mean, 1e-12)
	assert.InDelta(t, all.Variance(), merged.Variance(), 1e-9)
	assert.InDelta(t, all.Min, merged.Min, 0)
	assert.InDelta(t, all.Max, merged.Max, 0)

	assert.Equal(t, left, left.Merge(eventstore.Aggregate{}))
	assert.Equal(t, right, eventstore.Aggregate{}.Merge(right))
}
