package stability

import "fmt"

// Scan returns the earliest turn from which persist consecutive standard
// deviations are all <= threshold. Only starts i with i+persist < len(std)
// are candidates, so a series no longer than persist never qualifies.
//
// The scan keeps a count of threshold violations inside the current run and
// slides it one position at a time.
func Scan(std []float64, turns []int, threshold float64, persist int) (Result, error) {
	if persist < 1 {
		return NotFound, fmt.Errorf("%w: persist length must be >= 1, got %d", ErrInvalidParams, persist)
	}
	if len(std) != len(turns) {
		return NotFound, fmt.Errorf("%w: %d std values for %d turns", ErrInvalidSeries, len(std), len(turns))
	}

	n := len(std)
	if n <= persist {
		return NotFound, nil
	}

	violations := 0
	for _, s := range std[:persist] {
		if s > threshold {
			violations++
		}
	}

	for i := 0; i+persist < n; i++ {
		if violations == 0 {
			return OnsetAt(turns[i]), nil
		}
		if std[i] > threshold {
			violations--
		}
		if std[i+persist] > threshold {
			violations++
		}
	}
	return NotFound, nil
}
