package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Alive(t *testing.T) {
	// Current at or above 80% of the average.
	assert.Equal(t, StatusAlive, Classify(100, 100.0))
	assert.Equal(t, StatusAlive, Classify(80, 100.0))
	assert.Equal(t, StatusAlive, Classify(120, 100.0))
	assert.Equal(t, StatusAlive, Classify(85, 100.0))
}

func TestClassify_Stressed(t *testing.T) {
	// 20% <= current < 80% of the average.
	assert.Equal(t, StatusStressed, Classify(79, 100.0))
	assert.Equal(t, StatusStressed, Classify(50, 100.0))
	assert.Equal(t, StatusStressed, Classify(20, 100.0))
}

func TestClassify_Collapsing(t *testing.T) {
	// 0 < current < 20% of the average.
	assert.Equal(t, StatusCollapsing, Classify(19, 100.0))
	assert.Equal(t, StatusCollapsing, Classify(10, 100.0))
	assert.Equal(t, StatusCollapsing, Classify(1, 100.0))
}

func TestClassify_Dead(t *testing.T) {
	// current == 0 while the average is positive.
	assert.Equal(t, StatusDead, Classify(0, 100.0))
	assert.Equal(t, StatusDead, Classify(0, 1.0))
	assert.Equal(t, StatusDead, Classify(0, 0.0001))
}

func TestClassify_ZeroBaselineDominates(t *testing.T) {
	// No baseline means alive for every non-negative total, including zero.
	for _, total := range []int64{0, 1, 10, 1000} {
		assert.Equal(t, StatusAlive, Classify(total, 0.0), "total=%d", total)
	}
}

func TestClassify_BoundaryExactness(t *testing.T) {
	// 0.8*a belongs to alive, a hair below belongs to stressed; the same
	// pattern at 0.2*a. These fail when an inequality drifts by an epsilon.
	assert.Equal(t, StatusAlive, Classify(80000, 100000.0))
	assert.Equal(t, StatusStressed, Classify(79999, 100000.0))
	assert.Equal(t, StatusStressed, Classify(20000, 100000.0))
	assert.Equal(t, StatusCollapsing, Classify(19999, 100000.0))
}

func TestClassify_MonotoneSeverity(t *testing.T) {
	// Walking the current total down from the average to zero must never
	// skip back to a less severe band.
	rank := map[Status]int{
		StatusAlive:      0,
		StatusStressed:   1,
		StatusCollapsing: 2,
		StatusDead:       3,
	}

	avg := 1000.0
	prev := rank[Classify(1000, avg)]
	for total := int64(999); total >= 0; total-- {
		cur := rank[Classify(total, avg)]
		if cur < prev {
			t.Fatalf("severity regressed at total=%d", total)
		}
		prev = cur
	}
}

func TestClassify_Deterministic(t *testing.T) {
	// Pure function: repeated calls with identical inputs always agree.
	inputs := []struct {
		total int64
		avg   float64
	}{
		{85, 100.0}, {50, 100.0}, {10, 100.0}, {0, 100.0},
		{7, 0.0}, {0, 0.0}, {80, 100.0}, {20, 100.0},
	}
	for _, in := range inputs {
		first := Classify(in.total, in.avg)
		for i := 0; i < 100; i++ {
			assert.Equal(t, first, Classify(in.total, in.avg))
		}
	}
}

func TestStatusDistressed(t *testing.T) {
	assert.False(t, StatusAlive.Distressed())
	assert.False(t, StatusStressed.Distressed())
	assert.True(t, StatusCollapsing.Distressed())
	assert.True(t, StatusDead.Distressed())
}

func TestEffectiveWeightDefault(t *testing.T) {
	assert.Equal(t, int64(1), SignalRequest{Bucket: "zone-a"}.EffectiveWeight())

	w := int64(5)
	assert.Equal(t, int64(5), SignalRequest{Bucket: "zone-a", Weight: &w}.EffectiveWeight())
}
