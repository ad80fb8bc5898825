package mixtures

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/SepKfr/cluster-forecasting/tensors"
	"github.com/SepKfr/cluster-forecasting/variables"
)

// GmmDiagonal is a Gaussian mixture with axis-aligned covariances: component
// k's covariance is diag(scale[k]²), one learnable positive scale per
// dimension. This keeps O(D) parameters per component instead of O(D²),
// trading expressiveness for stability when cross-dimension correlation is
// not expected or would overfit with few samples.
type GmmDiagonal struct {
	mixtureBase

	means     *variables.Variable // [K, D]
	diagScale *variables.Variable // [K, D]
	embedding *variables.Variable // [D, F]
}

var _ Model = (*GmmDiagonal)(nil)

// NewDiagonal constructs a diagonal-covariance Gaussian mixture model. Means
// follow the same initialization as NewFull; the diagonal scales start
// uniform in [0, 1).
func NewDiagonal(config Config) (*GmmDiagonal, error) {
	base, err := newMixtureBase(config)
	if err != nil {
		return nil, errors.WithMessage(err, "NewDiagonal")
	}
	m := &GmmDiagonal{mixtureBase: base}
	m.means = m.initMeans(config)
	m.embedding = m.initEmbedding()

	scale := tensors.FromShape(m.numComponents, m.numDims)
	flat := scale.Flat()
	for i := range flat {
		flat[i] = m.rnd.Float64()
	}
	m.diagScale = variables.New("diag_scale", scale)
	return m, nil
}

// Forward evaluates the mean negative log-likelihood of the batch and draws
// one mixture sample per position. See Model.Forward.
func (m *GmmDiagonal) Forward(batch *tensors.Tensor) (float64, *tensors.Tensor, error) {
	lead, numRows, err := m.checkBatch(batch)
	if err != nil {
		return 0, nil, errors.WithMessage(err, "GmmDiagonal.Forward")
	}
	numComponents, numDims, numFeatures := m.numComponents, m.numDims, m.numFeatures

	scales := mat.NewDense(numComponents, numDims, m.diagScale.Value().Flat())
	logDets := make([]float64, numComponents)
	for k := 0; k < numComponents; k++ {
		for i := 0; i < numDims; i++ {
			sigma := scales.At(k, i)
			if sigma <= 0 {
				return 0, nil, errors.Errorf(
					"GmmDiagonal.Forward: component %d has non-positive scale %g in dimension %d, "+
						"ConstrainParameters must run before the forward evaluation", k, sigma, i)
			}
			logDets[k] += math.Log(sigma)
		}
	}

	x := batch.Matrix()
	weight := mat.NewDense(numDims, numFeatures, m.embedding.Value().Flat())
	meansMat := mat.NewDense(numComponents, numDims, m.means.Value().Flat())

	logPriors := logSoftmax(m.logits.Value().Flat())
	priors := m.Probs()

	gradLogits := m.logits.Grad()
	gradMeans := m.means.Grad()
	gradScale := m.diagScale.Grad()
	gradEmbed := m.embedding.Grad()

	var embedded mat.VecDense
	logJoint := make([]float64, numComponents)
	resp := make([]float64, numComponents)
	diffs := mat.NewDense(numComponents, numDims, nil)
	gradY := make([]float64, numDims)

	invN := 1 / float64(numRows)
	loss := 0.0
	for r := 0; r < numRows; r++ {
		row := x.RawRowView(r)
		embedded.MulVec(weight, mat.NewVecDense(numFeatures, row))

		for k := 0; k < numComponents; k++ {
			mu := meansMat.RawRowView(k)
			diff := diffs.RawRowView(k)
			quad := 0.0
			for i := 0; i < numDims; i++ {
				diff[i] = embedded.AtVec(i) - mu[i]
				standardized := diff[i] / scales.At(k, i)
				quad += standardized * standardized
			}
			logJoint[k] = logPriors[k] - logDets[k] - 0.5*quad - 0.5*float64(numDims)*log2Pi
		}

		logProb := floats.LogSumExp(logJoint)
		loss -= logProb

		for k := 0; k < numComponents; k++ {
			resp[k] = math.Exp(logJoint[k] - logProb)
		}

		for i := range gradY {
			gradY[i] = 0
		}
		for k := 0; k < numComponents; k++ {
			gradLogits[k] += (priors[k] - resp[k]) * invN

			diff := diffs.RawRowView(k)
			for i := 0; i < numDims; i++ {
				sigma := scales.At(k, i)
				weighted := diff[i] / (sigma * sigma)
				gradMeans[k*numDims+i] -= resp[k] * weighted * invN
				gradY[i] += resp[k] * weighted
				// d(-log p)/dσ = -r·(d²/σ³ - 1/σ)
				gradScale[k*numDims+i] -= resp[k] * (diff[i]*weighted/sigma - 1/sigma) * invN
			}
		}
		for i := 0; i < numDims; i++ {
			for f := 0; f < numFeatures; f++ {
				gradEmbed[i*numFeatures+f] += gradY[i] * row[f] * invN
			}
		}
	}
	loss *= invN

	return loss, m.sample(lead, scales, meansMat), nil
}

// sample draws one mixture sample per position: a component index from the
// mixing distribution, then μₖ + scaleₖ⊙z with z standard normal.
func (m *GmmDiagonal) sample(lead []int, scales, meansMat *mat.Dense) *tensors.Tensor {
	numDims := m.numDims
	out := tensors.FromShape(append(lead, numDims)...)
	flat := out.Flat()
	numPositions := out.Size() / numDims

	categorical := distuv.NewCategorical(m.Probs(), m.rnd)
	for p := 0; p < numPositions; p++ {
		k := int(categorical.Rand())
		mu := meansMat.RawRowView(k)
		sigma := scales.RawRowView(k)
		for i := 0; i < numDims; i++ {
			flat[p*numDims+i] = mu[i] + sigma[i]*m.rnd.NormFloat64()
		}
	}
	return out
}

// ConstrainParameters repairs every diagonal scale in place: absolute value,
// then clamp to at least epsilon. Values only; gradients are untouched.
func (m *GmmDiagonal) ConstrainParameters(epsilon float64) {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	flat := m.diagScale.Value().Flat()
	for i, sigma := range flat {
		sigma = math.Abs(sigma)
		if sigma < epsilon {
			sigma = epsilon
		}
		flat[i] = sigma
	}
}

// ComponentParameters returns the means and diagonal-scale variables.
func (m *GmmDiagonal) ComponentParameters() []*variables.Variable {
	return []*variables.Variable{m.means, m.diagScale}
}

// Variables returns every learnable variable: logits, means, diagonal scales
// and the feature embedding.
func (m *GmmDiagonal) Variables() []*variables.Variable {
	return []*variables.Variable{m.logits, m.means, m.diagScale, m.embedding}
}

// CovarianceMatrices materializes diag(scaleₖ²) for every component.
func (m *GmmDiagonal) CovarianceMatrices() *tensors.Tensor {
	numDims := m.numDims
	out := tensors.FromShape(m.numComponents, numDims, numDims)
	scale := m.diagScale.Value()
	for k := 0; k < m.numComponents; k++ {
		for i := 0; i < numDims; i++ {
			sigma := scale.At(k, i)
			out.Set(sigma*sigma, k, i, i)
		}
	}
	return out
}
