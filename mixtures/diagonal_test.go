package mixtures_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/SepKfr/cluster-forecasting/mixtures"
	"github.com/SepKfr/cluster-forecasting/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestDiagonalSingleComponentClosedForm(t *testing.T) {
	// One standard Gaussian evaluated at its mean: NLL = log(2*pi).
	model, err := mixtures.NewDiagonal(mixtures.Config{
		NumComponents: 1,
		NumDims:       2,
		NumFeatures:   2,
		InitialMeans:  [][]float64{{0, 0}},
		Seed:          7,
	})
	require.NoError(t, err)
	setIdentityEmbedding(t, model)
	setVariable(t, model, "diag_scale", []float64{1, 1})

	loss, _, err := model.Forward(tensors.FromFlatDataAndDimensions([]float64{0, 0}, 1, 1, 2))
	require.NoError(t, err)
	assert.InDelta(t, log2Pi, loss, 1e-4)
}

func TestDiagonalTwoComponentMixture(t *testing.T) {
	model, err := mixtures.NewDiagonal(mixtures.Config{
		NumComponents: 2,
		NumDims:       1,
		NumFeatures:   1,
		InitialMeans:  [][]float64{{0}, {1}},
		Seed:          7,
	})
	require.NoError(t, err)
	setIdentityEmbedding(t, model)
	setVariable(t, model, "diag_scale", []float64{1, 1})
	setVariable(t, model, "logits", []float64{0, 0})

	loss, _, err := model.Forward(tensors.FromFlatDataAndDimensions([]float64{0}, 1, 1, 1))
	require.NoError(t, err)

	phi0 := 1 / math.Sqrt(2*math.Pi)
	phi1 := math.Exp(-0.5) / math.Sqrt(2*math.Pi)
	assert.InDelta(t, -math.Log(0.5*phi0+0.5*phi1), loss, 1e-10)
}

func TestDiagonalMatchesUnivariateProduct(t *testing.T) {
	// An axis-aligned Gaussian factorizes into per-dimension univariate
	// densities; Forward must agree with gonum's distuv.Normal.
	mean := []float64{0.5, -1.5, 2}
	sigma := []float64{0.7, 1.3, 0.4}
	point := []float64{0.1, -1, 2.2}

	model, err := mixtures.NewDiagonal(mixtures.Config{
		NumComponents: 1,
		NumDims:       3,
		NumFeatures:   3,
		InitialMeans:  [][]float64{mean},
		Seed:          7,
	})
	require.NoError(t, err)
	setIdentityEmbedding(t, model)
	setVariable(t, model, "diag_scale", sigma)

	loss, _, err := model.Forward(tensors.FromFlatDataAndDimensions(point, 1, 1, 3))
	require.NoError(t, err)

	want := 0.0
	for i := range point {
		want -= distuv.Normal{Mu: mean[i], Sigma: sigma[i]}.LogProb(point[i])
	}
	assert.InDelta(t, want, loss, 1e-10)
}

func TestDiagonalGradients(t *testing.T) {
	model, err := mixtures.NewDiagonal(mixtures.Config{
		NumComponents: 3,
		NumDims:       2,
		NumFeatures:   3,
		InitRadius:    1.5,
		Seed:          99,
	})
	require.NoError(t, err)

	rnd := rand.New(rand.NewPCG(6, 6))
	batch := tensors.FromShape(2, 2, 3)
	for i := range batch.Flat() {
		batch.Flat()[i] = rnd.NormFloat64()
	}
	checkGradients(t, model, batch)
}

func TestDiagonalSamplingTracksComponents(t *testing.T) {
	model, err := mixtures.NewDiagonal(mixtures.Config{
		NumComponents: 1,
		NumDims:       2,
		NumFeatures:   2,
		InitialMeans:  [][]float64{{5, -3}},
		Seed:          3,
	})
	require.NoError(t, err)
	setVariable(t, model, "diag_scale", []float64{0.01, 0.01})

	_, sample, err := model.Forward(tensors.FromShape(4, 8, 2))
	require.NoError(t, err)
	require.Equal(t, []int{4, 8, 2}, sample.Dimensions())
	for b := 0; b < 4; b++ {
		for p := 0; p < 8; p++ {
			assert.InDelta(t, 5.0, sample.At(b, p, 0), 0.5)
			assert.InDelta(t, -3.0, sample.At(b, p, 1), 0.5)
		}
	}
}

func TestDiagonalCovarianceMatrices(t *testing.T) {
	// Covariance is diag(scale^2), not diag(scale).
	model, err := mixtures.NewDiagonal(mixtures.Config{
		NumComponents: 2,
		NumDims:       2,
		NumFeatures:   2,
		InitialMeans:  [][]float64{{0, 0}, {1, 1}},
		Seed:          1,
	})
	require.NoError(t, err)
	setVariable(t, model, "diag_scale", []float64{2, 3, 0.5, 1.5})

	covs := model.CovarianceMatrices()
	require.Equal(t, []int{2, 2, 2}, covs.Dimensions())
	assert.Equal(t, 4.0, covs.At(0, 0, 0))
	assert.Equal(t, 9.0, covs.At(0, 1, 1))
	assert.Equal(t, 0.25, covs.At(1, 0, 0))
	assert.Equal(t, 2.25, covs.At(1, 1, 1))
	assert.Equal(t, 0.0, covs.At(0, 0, 1))
	assert.Equal(t, 0.0, covs.At(1, 1, 0))
}
