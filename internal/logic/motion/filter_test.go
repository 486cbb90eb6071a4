package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_ColdStartPassthrough(t *testing.T) {
	for _, seq := range [][]int{{0, 639}, {320, 10}, {-5, 5000}} {
		f := NewFilter(8, 5, 100)
		for _, x := range seq {
			assert.Equal(t, x, f.Smooth(x), "sequence %v", seq)
		}
	}
}

func TestFilter_OutlierRejected(t *testing.T) {
	f := NewFilter(8, 5, 100)
	var got int
	for _, x := range []int{100, 102, 101, 98, 500} {
		got = f.Smooth(x)
	}
	assert.GreaterOrEqual(t, got, 98)
	assert.LessOrEqual(t, got, 102)
}

func TestFilter_WeightsFavorRecent(t *testing.T) {
	f := NewFilter(8, 5, 100)
	var got int
	for _, x := range []int{100, 100, 100, 100, 140} {
		got = f.Smooth(x)
	}
	// Plain mean would be 108; the ramp pulls toward 140.
	assert.Greater(t, got, 108)
	assert.Less(t, got, 140)
}

func TestFilter_ConstantInput(t *testing.T) {
	f := NewFilter(8, 5, 100)
	for i := 0; i < 20; i++ {
		require.Equal(t, 256, f.Smooth(256))
	}
}

func TestFilter_RingEvictsOldest(t *testing.T) {
	f := NewFilter(8, 5, 100)
	for i := 0; i < 20; i++ {
		f.Smooth(i)
	}
	assert.Equal(t, 8, f.Len())
	assert.Equal(t, 8, f.Cap())
	assert.Equal(t, []int{15, 16, 17, 18, 19}, f.recent(5))
	assert.Equal(t, []int{12, 13, 14, 15, 16, 17, 18, 19}, f.recent(100))
}

func TestFilter_ResetRestartsColdStart(t *testing.T) {
	f := NewFilter(8, 5, 100)
	for i := 0; i < 6; i++ {
		f.Smooth(100)
	}
	f.Reset()
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 400, f.Smooth(400))
}

func TestFilter_AllRejectedFallsBack(t *testing.T) {
	// Median of an even window can sit between two far clusters.
	f := NewFilter(4, 4, 10)
	var got int
	for _, x := range []int{0, 0, 1000, 1000} {
		got = f.Smooth(x)
	}
	assert.Greater(t, got, 0)
	assert.Less(t, got, 1000)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 101.0, median([]int{100, 102, 101, 98, 500}))
	assert.Equal(t, 2.5, median([]int{4, 1, 3, 2}))
}

func TestRampWeights(t *testing.T) {
	w := rampWeights(5)
	sum := 0.0
	for i, v := range w {
		sum += v
		if i > 0 {
			assert.Greater(t, v, w[i-1])
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, []float64{1}, rampWeights(1))
}
