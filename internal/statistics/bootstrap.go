// Package statistics summarizes the stable regime of an analyzed thread.
package statistics

import (
	"math"
	"math/rand"
	"sort"

	"github.com/dynlab/dynlab/internal/stability"
)

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	NumBootstraps   int     `json:"numBootstraps"`
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 2000

// DefaultConfidenceLevel is used for plateau summaries.
const DefaultConfidenceLevel = 0.95

// BootstrapCI computes a bootstrap confidence interval of the mean of values
// using the percentile method. confidenceLevel should be in (0, 1), e.g. 0.95.
// Fewer than 2 values yield a degenerate interval at the mean. A negative
// seed uses a non-deterministic source.
func BootstrapCI(values []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	n := len(values)
	m := mean(values)
	if n < 2 {
		return ConfidenceInterval{Lower: m, Upper: m, Mean: m, ConfidenceLevel: confidenceLevel}
	}

	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	iters := DefaultBootstrapIterations
	bootMeans := make([]float64, iters)
	sample := make([]float64, n)
	for i := 0; i < iters; i++ {
		for j := 0; j < n; j++ {
			sample[j] = values[rng.Intn(n)]
		}
		bootMeans[i] = mean(sample)
	}
	sort.Float64s(bootMeans)

	alpha := 1.0 - confidenceLevel
	loIdx := int(math.Floor(alpha / 2.0 * float64(iters)))
	hiIdx := min(int(math.Floor((1.0-alpha/2.0)*float64(iters))), iters-1)

	return ConfidenceInterval{
		Lower:           bootMeans[loIdx],
		Upper:           bootMeans[hiIdx],
		Mean:            m,
		ConfidenceLevel: confidenceLevel,
		NumBootstraps:   iters,
	}
}

// Plateau describes the token level of a thread from its stability onset to
// the end of the series.
type Plateau struct {
	FromTurn int                `json:"fromTurn"`
	Turns    int                `json:"turns"`
	Level    ConfidenceInterval `json:"level"`
}

// PlateauOf summarizes the stable regime of a. It returns false when no
// onset was found. The resampling seed is fixed so reports are reproducible.
func PlateauOf(a *stability.Analysis) (Plateau, bool) {
	if !a.Result.Found {
		return Plateau{}, false
	}
	start := sort.Search(len(a.Series), func(i int) bool {
		return a.Series[i].Turn >= a.Result.Turn
	})
	values := a.Series[start:].Values()
	return Plateau{
		FromTurn: a.Result.Turn,
		Turns:    len(values),
		Level:    BootstrapCI(values, DefaultConfidenceLevel, int64(len(values))),
	}, true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
