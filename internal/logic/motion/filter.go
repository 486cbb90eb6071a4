package motion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// coldStart is the history length below which measurements pass through
// unfiltered, so a freshly (re)acquired target is followed without lag.
const coldStart = 3

// Filter smooths raw horizontal positions. It keeps a fixed-capacity ring of
// recent measurements, rejects samples far from the window median and
// returns an exponentially weighted average biased toward the newest sample.
type Filter struct {
	buf       []int
	next      int // slot for the next sample
	n         int // samples held
	window    int
	outlierPx int
}

// NewFilter creates a filter holding at most capacity samples. Estimates use
// the newest window samples; samples further than outlierPx from their
// median are ignored.
func NewFilter(capacity, window, outlierPx int) *Filter {
	if capacity < coldStart {
		capacity = coldStart
	}
	if window < 1 || window > capacity {
		window = capacity
	}
	return &Filter{
		buf:       make([]int, capacity),
		window:    window,
		outlierPx: outlierPx,
	}
}

// Smooth records x and returns the current estimate.
func (f *Filter) Smooth(x int) int {
	f.push(x)
	if f.n < coldStart {
		return x
	}

	recent := f.recent(f.window)
	med := median(recent)

	kept := make([]float64, 0, len(recent))
	for _, v := range recent {
		if math.Abs(float64(v)-med) <= float64(f.outlierPx) {
			kept = append(kept, float64(v))
		}
	}
	if len(kept) == 0 {
		for _, v := range recent {
			kept = append(kept, float64(v))
		}
	}

	return int(math.Round(stat.Mean(kept, rampWeights(len(kept)))))
}

// Reset drops the whole history.
func (f *Filter) Reset() {
	f.next = 0
	f.n = 0
}

// Len returns the number of samples held.
func (f *Filter) Len() int {
	return f.n
}

// Cap returns the history capacity.
func (f *Filter) Cap() int {
	return len(f.buf)
}

func (f *Filter) push(x int) {
	f.buf[f.next] = x
	f.next = (f.next + 1) % len(f.buf)
	if f.n < len(f.buf) {
		f.n++
	}
}

// recent returns up to k of the newest samples, oldest first.
func (f *Filter) recent(k int) []int {
	if k > f.n {
		k = f.n
	}
	out := make([]int, k)
	start := f.next - k
	if start < 0 {
		start += len(f.buf)
	}
	for i := 0; i < k; i++ {
		out[i] = f.buf[(start+i)%len(f.buf)]
	}
	return out
}

func median(v []int) float64 {
	s := append([]int(nil), v...)
	sort.Ints(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return float64(s[mid])
	}
	return float64(s[mid-1]+s[mid]) / 2
}

// rampWeights returns n weights growing exponentially from e^-0.5 to e^0,
// normalized to sum to 1.
func rampWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		w[i] = math.Exp(-0.5 + 0.5*t)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}
