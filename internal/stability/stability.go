// Package stability computes rolling statistics over a per-turn metric and
// locates the turn at which the metric settles into a stable regime.
//
// The package is pure: every function takes its inputs by value, never
// mutates them, and returns a fresh result. Independent analyses may run
// concurrently without coordination.
package stability

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrInvalidParams is returned when analysis parameters violate their
	// preconditions (window or persistence below 1, negative threshold).
	ErrInvalidParams = errors.New("invalid stability parameters")

	// ErrInvalidSeries is returned when the input series contains values the
	// loader should have sanitized (NaN, infinities, negatives) or when turn
	// indices decrease.
	ErrInvalidSeries = errors.New("invalid series")
)

// Point is one turn of the analyzed series.
type Point struct {
	Turn  int     `json:"turn"`
	Value float64 `json:"value"`
}

// Series is an ordered sequence of points with non-decreasing turn indices.
type Series []Point

// Values returns the point values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Turns returns the turn indices in order.
func (s Series) Turns() []int {
	out := make([]int, len(s))
	for i, p := range s {
		out[i] = p.Turn
	}
	return out
}

// Validate checks that every value is a finite non-negative number and that
// turns never decrease.
func (s Series) Validate() error {
	for i, p := range s {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("%w: non-finite value at turn %d", ErrInvalidSeries, p.Turn)
		}
		if p.Value < 0 {
			return fmt.Errorf("%w: negative value %g at turn %d", ErrInvalidSeries, p.Value, p.Turn)
		}
		if i > 0 && p.Turn < s[i-1].Turn {
			return fmt.Errorf("%w: turn %d follows turn %d", ErrInvalidSeries, p.Turn, s[i-1].Turn)
		}
	}
	return nil
}

// Params holds the knobs of one analysis pass.
type Params struct {
	// Window is the number of trailing turns in each rolling window.
	Window int `json:"window" mapstructure:"window"`
	// SigmaThreshold is the largest rolling standard deviation still
	// considered stable.
	SigmaThreshold float64 `json:"sigmaThreshold" mapstructure:"sigma"`
	// PersistLength is the number of consecutive stable turns required.
	PersistLength int `json:"persistLength" mapstructure:"persist"`
	// BandK is the σ multiplier for the rendering band. It does not affect
	// detection.
	BandK float64 `json:"bandK" mapstructure:"k"`
}

// Validate reports whether p satisfies the analysis preconditions.
func (p Params) Validate() error {
	if p.Window < 1 {
		return fmt.Errorf("%w: window must be >= 1, got %d", ErrInvalidParams, p.Window)
	}
	if p.PersistLength < 1 {
		return fmt.Errorf("%w: persist length must be >= 1, got %d", ErrInvalidParams, p.PersistLength)
	}
	if math.IsNaN(p.SigmaThreshold) || math.IsInf(p.SigmaThreshold, 0) || p.SigmaThreshold < 0 {
		return fmt.Errorf("%w: sigma threshold must be a finite value >= 0, got %g", ErrInvalidParams, p.SigmaThreshold)
	}
	if math.IsNaN(p.BandK) || math.IsInf(p.BandK, 0) || p.BandK < 0 {
		return fmt.Errorf("%w: band multiplier must be a finite value >= 0, got %g", ErrInvalidParams, p.BandK)
	}
	return nil
}

// Result is the outcome of a stability scan.
type Result struct {
	Found bool `json:"found"`
	// Turn is the turn index (not the array offset) at which the stable run
	// begins. Zero when Found is false.
	Turn int `json:"turn"`
}

// NotFound is the result of a scan that found no stable run.
var NotFound = Result{}

// OnsetAt returns a result reporting a stable run beginning at turn.
func OnsetAt(turn int) Result {
	return Result{Found: true, Turn: turn}
}

func (r Result) String() string {
	if !r.Found {
		return "not found"
	}
	return fmt.Sprintf("onset at turn %d", r.Turn)
}

// Row is one aligned output row for rendering.
type Row struct {
	Turn  int     `json:"turn"`
	Value float64 `json:"value"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// Analysis is the immutable output of Analyze.
type Analysis struct {
	Params  Params
	Series  Series
	Rolling RollingResult
	Result  Result
}

// Analyze runs the rolling statistics and the stability scan over series.
// An empty series is not an error: it yields empty rolling output and
// NotFound.
func Analyze(series Series, p Params) (*Analysis, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}

	rolling, err := Rolling(series.Values(), p.Window)
	if err != nil {
		return nil, err
	}
	result, err := Scan(rolling.Std, series.Turns(), p.SigmaThreshold, p.PersistLength)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Params:  p,
		Series:  slices.Clone(series),
		Rolling: rolling,
		Result:  result,
	}, nil
}

// Rows returns the aligned (turn, value, mean, std, upper, lower) rows using
// the analysis band multiplier.
func (a *Analysis) Rows() []Row {
	return Rows(a.Series, a.Rolling, a.Params.BandK)
}
