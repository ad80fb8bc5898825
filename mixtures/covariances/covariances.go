// Package covariances generates random valid covariance matrices and their
// lower-triangular factors, for initializing or testing mixture models.
//
// Rather than repairing an arbitrary random matrix into positive
// semi-definiteness, it samples observations and takes their correlation
// matrix: a correlation matrix is symmetric with unit diagonal and
// non-negative eigenvalues by construction, so no further repair is needed.
package covariances

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// observationsPerVariable is the number of standard-normal observations drawn
// per variable when synthesizing a correlation matrix.
const observationsPerVariable = 10

// RandomCovarianceMatrix returns a random numDims×numDims positive
// semi-definite matrix. For numDims == 1 it returns [[1]]; otherwise it is
// the correlation matrix of observationsPerVariable standard-normal draws per
// variable.
func RandomCovarianceMatrix(numDims int, rnd *rand.Rand) *mat.SymDense {
	if numDims < 1 {
		panic(errors.Errorf("covariances: numDims must be positive, got %d", numDims))
	}
	if numDims == 1 {
		return mat.NewSymDense(1, []float64{1})
	}

	observations := mat.NewDense(observationsPerVariable, numDims, nil)
	for i := 0; i < observationsPerVariable; i++ {
		for j := 0; j < numDims; j++ {
			observations.Set(i, j, rnd.NormFloat64())
		}
	}

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, observations, nil)
	return &corr
}

// RandomScaleFactors returns numSigmas random lower-triangular scale factors,
// each the lower triangle (diagonal included) of a RandomCovarianceMatrix of
// order numDims.
func RandomScaleFactors(numSigmas, numDims int, rnd *rand.Rand) []*mat.TriDense {
	if numSigmas < 1 {
		panic(errors.Errorf("covariances: numSigmas must be positive, got %d", numSigmas))
	}
	factors := make([]*mat.TriDense, numSigmas)
	for s := range factors {
		cov := RandomCovarianceMatrix(numDims, rnd)
		tril := mat.NewTriDense(numDims, mat.Lower, nil)
		for i := 0; i < numDims; i++ {
			for j := 0; j <= i; j++ {
				tril.SetTri(i, j, cov.At(i, j))
			}
		}
		factors[s] = tril
	}
	return factors
}
