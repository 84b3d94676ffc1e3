package stability

import (
	"fmt"
	"math"
)

// RollingResult holds the moving mean and sample standard deviation of a
// series, aligned index-for-index with it.
type RollingResult struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Len returns the number of positions covered.
func (r RollingResult) Len() int {
	return len(r.Mean)
}

// Rolling computes, for every index i, the mean and sample standard deviation
// of values[max(0, i-window+1) : i+1]. Windows holding a single value have a
// standard deviation of 0. A window larger than the series is allowed.
func Rolling(values []float64, window int) (RollingResult, error) {
	if window < 1 {
		return RollingResult{}, fmt.Errorf("%w: window must be >= 1, got %d", ErrInvalidParams, window)
	}

	res := RollingResult{
		Mean: make([]float64, len(values)),
		Std:  make([]float64, len(values)),
	}

	var acc accumulator
	run := 0   // length of the run of identical values ending at i
	since := 0  // steps since the accumulator was last rebuilt
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			run++
		} else {
			run = 1
		}
		lo := max(0, i-window+1)
		rebuild := since >= window
		if i >= window {
			before := acc.m2
			acc.remove(values[i-window])
			// A dominant value leaving the window cancels most of m2.
			if before > cancelRatio*acc.m2 {
				rebuild = true
			}
		}
		if rebuild {
			acc.reset(values[lo:i])
			since = 0
		}
		acc.add(v)
		since++
		if run >= acc.n {
			// The window holds a single repeated value: drop accumulated
			// rounding so its deviation is exactly zero.
			acc.mean, acc.m2 = v, 0
		}
		res.Mean[i] = acc.mean
		res.Std[i] = acc.std()
	}
	return res, nil
}

// cancelRatio is the drop in m2 across one removal beyond which the
// remaining sum of squares is recomputed from the window.
const cancelRatio = 1e4

// accumulator tracks the count, mean and sum of squared deviations of a
// sliding window.
type accumulator struct {
	n    int
	mean float64
	m2   float64
}

func (a *accumulator) add(x float64) {
	a.n++
	d := x - a.mean
	a.mean += d / float64(a.n)
	a.m2 += d * (x - a.mean)
}

func (a *accumulator) remove(x float64) {
	if a.n <= 1 {
		*a = accumulator{}
		return
	}
	d := x - a.mean
	a.mean -= d / float64(a.n-1)
	a.m2 -= d * (x - a.mean)
	a.n--
}

// reset recomputes the state exactly from the values in the window.
func (a *accumulator) reset(window []float64) {
	*a = accumulator{n: len(window)}
	if a.n == 0 {
		return
	}
	sum := 0.0
	for _, x := range window {
		sum += x
	}
	a.mean = sum / float64(a.n)
	for _, x := range window {
		d := x - a.mean
		a.m2 += d * d
	}
}

func (a *accumulator) std() float64 {
	if a.n < 2 || a.m2 <= 0 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n-1))
}

// Rows joins series with its rolling statistics and derives the rendering
// band mean ± k·std, with the lower bound clipped at zero. Rows beyond the
// shorter of the two inputs are dropped.
func Rows(series Series, r RollingResult, k float64) []Row {
	n := min(len(series), r.Len())
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		m, s := r.Mean[i], r.Std[i]
		rows[i] = Row{
			Turn:  series[i].Turn,
			Value: series[i].Value,
			Mean:  m,
			Std:   s,
			Upper: m + k*s,
			Lower: math.Max(0, m-k*s),
		}
	}
	return rows
}
