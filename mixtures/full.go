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

const log2Pi = 1.8378770664093453 // log(2*pi)

// GmmFull is a Gaussian mixture whose component covariances are parameterized
// by lower-triangular scale factors: covariance = L·Lᵀ. Any such product is
// symmetric positive semi-definite without an explicit definiteness check,
// and L is exactly the factor needed to evaluate the density and to draw
// samples, so no decomposition happens at evaluation time.
//
// Only the lower triangle of the stored [K, D, D] factor is ever read; upper
// entries are ignored and receive no gradient.
type GmmFull struct {
	mixtureBase

	means     *variables.Variable // [K, D]
	scaleTril *variables.Variable // [K, D, D]
	embedding *variables.Variable // [D, F]
}

var _ Model = (*GmmFull)(nil)

// NewFull constructs a full-covariance Gaussian mixture model.
//
// Component means come from config.InitialMeans when given, otherwise each
// coordinate is uniform in [-InitRadius, InitRadius]. Every component starts
// from the same well-conditioned factor, tril(U)·tril(U)ᵀ + I with U uniform
// in [0, 1): differentiation between components arises only through gradient
// updates and the differing means.
func NewFull(config Config) (*GmmFull, error) {
	base, err := newMixtureBase(config)
	if err != nil {
		return nil, errors.WithMessage(err, "NewFull")
	}
	m := &GmmFull{mixtureBase: base}
	m.means = m.initMeans(config)
	m.embedding = m.initEmbedding()

	numDims := m.numDims
	lower := mat.NewTriDense(numDims, mat.Lower, nil)
	for i := 0; i < numDims; i++ {
		for j := 0; j <= i; j++ {
			lower.SetTri(i, j, m.rnd.Float64())
		}
	}
	var posDef mat.Dense
	posDef.Mul(lower, lower.T())
	for i := 0; i < numDims; i++ {
		posDef.Set(i, i, posDef.At(i, i)+1)
	}

	scale := tensors.FromShape(m.numComponents, numDims, numDims)
	for k := 0; k < m.numComponents; k++ {
		for i := 0; i < numDims; i++ {
			for j := 0; j < numDims; j++ {
				scale.Set(posDef.At(i, j), k, i, j)
			}
		}
	}
	m.scaleTril = variables.New("scale_tril", scale)
	return m, nil
}

// trilView returns the lower-triangular view of component k's scale factor,
// sharing the variable's backing data.
func (m *GmmFull) trilView(k int) *mat.TriDense {
	numDims := m.numDims
	block := m.scaleTril.Value().Flat()[k*numDims*numDims : (k+1)*numDims*numDims]
	return mat.NewTriDense(numDims, mat.Lower, block)
}

// Forward evaluates the mean negative log-likelihood of the batch and draws
// one mixture sample per position. See Model.Forward.
func (m *GmmFull) Forward(batch *tensors.Tensor) (float64, *tensors.Tensor, error) {
	lead, numRows, err := m.checkBatch(batch)
	if err != nil {
		return 0, nil, errors.WithMessage(err, "GmmFull.Forward")
	}
	numComponents, numDims, numFeatures := m.numComponents, m.numDims, m.numFeatures

	trils := make([]*mat.TriDense, numComponents)
	logDets := make([]float64, numComponents)
	for k := range trils {
		trils[k] = m.trilView(k)
		for i := 0; i < numDims; i++ {
			diag := trils[k].At(i, i)
			if diag <= 0 {
				return 0, nil, errors.Errorf(
					"GmmFull.Forward: component %d scale factor has non-positive diagonal entry %g, "+
						"ConstrainParameters must run before the forward evaluation", k, diag)
			}
			logDets[k] += math.Log(diag)
		}
	}

	x := batch.Matrix() // numRows × numFeatures
	weight := mat.NewDense(numDims, numFeatures, m.embedding.Value().Flat())
	meansMat := mat.NewDense(numComponents, numDims, m.means.Value().Flat())

	logPriors := logSoftmax(m.logits.Value().Flat())
	priors := m.Probs()

	gradLogits := m.logits.Grad()
	gradMeans := m.means.Grad()
	gradScale := m.scaleTril.Grad()
	gradEmbed := m.embedding.Grad()

	var embedded, solved, whitened mat.VecDense
	diff := mat.NewVecDense(numDims, nil)
	logJoint := make([]float64, numComponents)
	resp := make([]float64, numComponents)
	zs := mat.NewDense(numComponents, numDims, nil) // zₖ = Lₖ⁻¹(y-μₖ)
	vs := mat.NewDense(numComponents, numDims, nil) // vₖ = Σₖ⁻¹(y-μₖ)
	gradY := make([]float64, numDims)

	invN := 1 / float64(numRows)
	loss := 0.0
	for r := 0; r < numRows; r++ {
		row := x.RawRowView(r)
		embedded.MulVec(weight, mat.NewVecDense(numFeatures, row))

		for k := 0; k < numComponents; k++ {
			mu := meansMat.RawRowView(k)
			for i := 0; i < numDims; i++ {
				diff.SetVec(i, embedded.AtVec(i)-mu[i])
			}
			if err := solved.SolveVec(trils[k], diff); err != nil {
				return 0, nil, errors.Wrapf(err, "GmmFull.Forward: component %d scale factor is singular", k)
			}
			if err := whitened.SolveVec(trils[k].TTri(), &solved); err != nil {
				return 0, nil, errors.Wrapf(err, "GmmFull.Forward: component %d scale factor is singular", k)
			}
			z := zs.RawRowView(k)
			v := vs.RawRowView(k)
			for i := 0; i < numDims; i++ {
				z[i] = solved.AtVec(i)
				v[i] = whitened.AtVec(i)
			}
			logJoint[k] = logPriors[k] - logDets[k] - 0.5*floats.Dot(z, z) - 0.5*float64(numDims)*log2Pi
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

			z := zs.RawRowView(k)
			v := vs.RawRowView(k)
			for i := 0; i < numDims; i++ {
				gradMeans[k*numDims+i] -= resp[k] * v[i] * invN
				gradY[i] += resp[k] * v[i]
			}
			// d(-log p)/dLₖ restricted to the lower triangle:
			// off-diagonal -rₖ·vᵢzⱼ, diagonal -rₖ·(vᵢzᵢ - 1/Lᵢᵢ).
			base := k * numDims * numDims
			for i := 0; i < numDims; i++ {
				for j := 0; j <= i; j++ {
					g := v[i] * z[j]
					if i == j {
						g -= 1 / trils[k].At(i, i)
					}
					gradScale[base+i*numDims+j] -= resp[k] * g * invN
				}
			}
		}
		for i := 0; i < numDims; i++ {
			for f := 0; f < numFeatures; f++ {
				gradEmbed[i*numFeatures+f] += gradY[i] * row[f] * invN
			}
		}
	}
	loss *= invN

	return loss, m.sample(lead, trils, meansMat), nil
}

// sample draws one mixture sample per position: a component index from the
// mixing distribution, then μₖ + Lₖ·z with z standard normal.
func (m *GmmFull) sample(lead []int, trils []*mat.TriDense, meansMat *mat.Dense) *tensors.Tensor {
	numDims := m.numDims
	out := tensors.FromShape(append(lead, numDims)...)
	flat := out.Flat()
	numPositions := out.Size() / numDims

	categorical := distuv.NewCategorical(m.Probs(), m.rnd)
	noise := mat.NewVecDense(numDims, nil)
	var scaled mat.VecDense
	for p := 0; p < numPositions; p++ {
		k := int(categorical.Rand())
		for i := 0; i < numDims; i++ {
			noise.SetVec(i, m.rnd.NormFloat64())
		}
		scaled.MulVec(trils[k], noise)
		mu := meansMat.RawRowView(k)
		for i := 0; i < numDims; i++ {
			flat[p*numDims+i] = mu[i] + scaled.AtVec(i)
		}
	}
	return out
}

// ConstrainParameters repairs every component factor in place: the diagonal
// entries are replaced by their absolute value (sign-flipping the diagonal
// leaves L·Lᵀ unchanged) and clamped to at least epsilon. Off-diagonal
// entries are left unconstrained. Values only; gradients are untouched.
func (m *GmmFull) ConstrainParameters(epsilon float64) {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	numDims := m.numDims
	flat := m.scaleTril.Value().Flat()
	for k := 0; k < m.numComponents; k++ {
		for i := 0; i < numDims; i++ {
			idx := k*numDims*numDims + i*numDims + i
			diag := math.Abs(flat[idx])
			if diag < epsilon {
				diag = epsilon
			}
			flat[idx] = diag
		}
	}
}

// ComponentParameters returns the means and scale-factor variables.
func (m *GmmFull) ComponentParameters() []*variables.Variable {
	return []*variables.Variable{m.means, m.scaleTril}
}

// Variables returns every learnable variable: logits, means, scale factors
// and the feature embedding.
func (m *GmmFull) Variables() []*variables.Variable {
	return []*variables.Variable{m.logits, m.means, m.scaleTril, m.embedding}
}

// CovarianceMatrices materializes Lₖ·Lₖᵀ for every component.
func (m *GmmFull) CovarianceMatrices() *tensors.Tensor {
	numDims := m.numDims
	out := tensors.FromShape(m.numComponents, numDims, numDims)
	var cov mat.Dense
	for k := 0; k < m.numComponents; k++ {
		tril := m.trilView(k)
		cov.Reset()
		cov.Mul(tril, tril.T())
		for i := 0; i < numDims; i++ {
			for j := 0; j < numDims; j++ {
				out.Set(cov.At(i, j), k, i, j)
			}
		}
	}
	return out
}
