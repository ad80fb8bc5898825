package mixtures

import (
	"math"

	"github.com/pkg/errors"
)

// WarpProbs rescales a probability vector monotonically so that the uniform
// value 1/n maps to targetValue: every entry is raised to the power
//
//	a = log(targetValue) / log(1/n)
//
// Applied to the uniform vector the result's entries all equal targetValue
// exactly. The reshaping is order-preserving; targetValue < 1 sharpens the
// distribution toward its mode, targetValue > 1 flattens it. The result is
// not renormalized -- callers needing a probability distribution must
// renormalize it themselves.
func WarpProbs(probs []float64, targetValue float64) []float64 {
	if len(probs) == 0 {
		return nil
	}
	if targetValue <= 0 {
		panic(errors.Errorf("mixtures: warp target value must be positive, got %g", targetValue))
	}
	warped := make([]float64, len(probs))
	if len(probs) == 1 {
		// Any exponent fixes the single entry 1 in place.
		copy(warped, probs)
		return warped
	}
	alpha := math.Log(targetValue) / math.Log(1/float64(len(probs)))
	for i, p := range probs {
		warped[i] = math.Pow(p, alpha)
	}
	return warped
}
