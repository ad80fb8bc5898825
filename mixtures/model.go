// Package mixtures implements gradient-trainable Gaussian mixture models for
// unsupervised structure discovery.
//
// Two covariance parameterizations are provided: GmmFull keeps one learnable
// lower-triangular factor per component (covariance = L·Lᵀ), GmmDiagonal
// keeps one learnable scale vector per component (covariance = diag(scale²)).
// Both embed incoming feature vectors through a bias-free linear map into the
// working dimensionality before density evaluation.
//
// Training follows a strict two-phase cycle, serialized per batch:
//
//	loss, sample, err := model.Forward(batch) // differentiable evaluation
//	optimizer.Step(model.Variables())         // gradient update
//	model.ConstrainParameters(epsilon)        // non-differentiable projection
//
// Forward accumulates closed-form gradients of the mean negative
// log-likelihood into every variable's Grad. ConstrainParameters repairs the
// covariance parameters in place (values only, gradients untouched) so the
// next Forward never sees a singular or indefinite covariance. Skipping or
// reordering the projection risks an invalid covariance entering the next
// loss evaluation.
package mixtures

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"

	"github.com/SepKfr/cluster-forecasting/tensors"
	"github.com/SepKfr/cluster-forecasting/variables"
)

// DefaultEpsilon is the smallest value the covariance-factor diagonals are
// clamped to by ConstrainParameters. It keeps every component's covariance
// invertible without noticeably biasing the fit.
const DefaultEpsilon = 1e-6

// Model is the contract every concrete mixture family implements.
type Model interface {
	// Forward embeds the batch (leading axes arbitrary, last axis =
	// NumFeatures), evaluates the mean negative log-likelihood of all
	// positions under the current mixture, and draws one sample per position.
	// The sample preserves the batch's leading axes with NumDims as the last
	// axis. Gradients of the loss are accumulated into every variable's Grad.
	Forward(batch *tensors.Tensor) (loss float64, sample *tensors.Tensor, err error)

	// ConstrainParameters projects the covariance parameters back into the
	// valid region: absolute value then clamp-to-epsilon of the factor
	// diagonal (full) or of every diagonal scale (diagonal). It mutates
	// values directly and never touches gradients. epsilon <= 0 selects
	// DefaultEpsilon.
	ConstrainParameters(epsilon float64)

	// ComponentParameters returns the learnable component-level variables
	// (means and scale representation), excluding the mixing logits. Callers
	// use this to give component shape/location a different learning rate
	// than the mixing weights.
	ComponentParameters() []*variables.Variable

	// MixtureParameters returns the mixing-logit variable.
	MixtureParameters() []*variables.Variable

	// Variables returns every learnable variable of the model, including the
	// feature embedding.
	Variables() []*variables.Variable

	// Probs returns the mixing probabilities derived from the logits via
	// softmax: length NumComponents, entries in (0, 1], summing to 1.
	Probs() []float64

	// CovarianceMatrices materializes the per-component covariance matrices
	// as a [NumComponents, NumDims, NumDims] tensor, regardless of the
	// internal parameterization.
	CovarianceMatrices() *tensors.Tensor

	// NumComponents returns the number of mixture components.
	NumComponents() int

	// NumDims returns the working dimensionality the components live in.
	NumDims() int
}

// Config carries the construction parameters shared by all mixture families.
type Config struct {
	// NumComponents is the number of component distributions. Required > 0.
	NumComponents int

	// NumDims is the working dimensionality in which components live, after
	// feature embedding. Required > 0.
	NumDims int

	// NumFeatures is the dimensionality of incoming feature vectors, mapped
	// to NumDims by the learnable embedding. Required > 0.
	NumFeatures int

	// InitRadius bounds the magnitude of randomly initialized component
	// means: each coordinate is drawn uniformly from [-InitRadius,
	// InitRadius]. Must be >= 0.
	InitRadius float64

	// InitialMeans optionally fixes the initial component means instead of
	// random initialization. When set it must be NumComponents rows of
	// NumDims values.
	InitialMeans [][]float64

	// Seed seeds the model's pseudo-random source (initialization and
	// sampling). Zero draws a seed from the clock.
	Seed uint64
}

func (c Config) validate() error {
	if c.NumComponents <= 0 {
		return errors.Errorf("NumComponents must be positive, got %d", c.NumComponents)
	}
	if c.NumDims <= 0 {
		return errors.Errorf("NumDims must be positive, got %d", c.NumDims)
	}
	if c.NumFeatures <= 0 {
		return errors.Errorf("NumFeatures must be positive, got %d", c.NumFeatures)
	}
	if c.InitRadius < 0 {
		return errors.Errorf("InitRadius must be non-negative, got %g", c.InitRadius)
	}
	if c.InitialMeans != nil {
		if len(c.InitialMeans) != c.NumComponents {
			return errors.Errorf("InitialMeans has %d rows, want NumComponents=%d",
				len(c.InitialMeans), c.NumComponents)
		}
		for i, row := range c.InitialMeans {
			if len(row) != c.NumDims {
				return errors.Errorf("InitialMeans row %d has %d values, want NumDims=%d",
					i, len(row), c.NumDims)
			}
		}
	}
	return nil
}

func (c Config) rand() *rand.Rand {
	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// mixtureBase holds the state shared by every mixture family: the component
// count, the working dimensionality, the initialization radius and the
// learnable mixing logits. The mixing probability vector is always derived
// from the logits by softmax, never stored, so it is a valid simplex point by
// construction.
type mixtureBase struct {
	numComponents int
	numDims       int
	numFeatures   int
	initRadius    float64

	logits *variables.Variable // [numComponents]
	rnd    *rand.Rand
}

func newMixtureBase(config Config) (mixtureBase, error) {
	if err := config.validate(); err != nil {
		return mixtureBase{}, errors.WithMessage(err, "invalid mixture configuration")
	}
	return mixtureBase{
		numComponents: config.NumComponents,
		numDims:       config.NumDims,
		numFeatures:   config.NumFeatures,
		initRadius:    config.InitRadius,
		logits:        variables.New("logits", tensors.FromShape(config.NumComponents)),
		rnd:           config.rand(),
	}, nil
}

func (m *mixtureBase) NumComponents() int { return m.numComponents }
func (m *mixtureBase) NumDims() int       { return m.numDims }

func (m *mixtureBase) MixtureParameters() []*variables.Variable {
	return []*variables.Variable{m.logits}
}

// Probs returns softmax(logits).
func (m *mixtureBase) Probs() []float64 {
	return softmax(m.logits.Value().Flat())
}

// initMeans builds the [numComponents, numDims] means variable, from the
// caller-supplied rows when present, otherwise uniformly within the
// initialization radius.
func (m *mixtureBase) initMeans(config Config) *variables.Variable {
	means := tensors.FromShape(m.numComponents, m.numDims)
	if config.InitialMeans != nil {
		for k, row := range config.InitialMeans {
			for d, v := range row {
				means.Set(v, k, d)
			}
		}
	} else {
		flat := means.Flat()
		for i := range flat {
			flat[i] = m.initRadius * (2*m.rnd.Float64() - 1)
		}
	}
	return variables.New("means", means)
}

// initEmbedding builds the [numDims, numFeatures] bias-free linear embedding,
// initialized uniformly in [-1/sqrt(numFeatures), 1/sqrt(numFeatures)].
func (m *mixtureBase) initEmbedding() *variables.Variable {
	embedding := tensors.FromShape(m.numDims, m.numFeatures)
	bound := 1 / math.Sqrt(float64(m.numFeatures))
	flat := embedding.Flat()
	for i := range flat {
		flat[i] = bound * (2*m.rnd.Float64() - 1)
	}
	return variables.New("embedding", embedding)
}

// checkBatch validates the batch shape and returns its leading dimensions and
// the flattened row count.
func (m *mixtureBase) checkBatch(batch *tensors.Tensor) (lead []int, numRows int, err error) {
	if batch == nil {
		return nil, 0, errors.New("batch must not be nil")
	}
	if batch.Rank() < 2 {
		return nil, 0, errors.Errorf("batch must have at least 2 axes, got rank %d", batch.Rank())
	}
	if batch.Dim(-1) != m.numFeatures {
		return nil, 0, errors.Errorf("batch feature axis has size %d, model expects NumFeatures=%d",
			batch.Dim(-1), m.numFeatures)
	}
	lead = batch.Dimensions()
	lead = lead[:len(lead)-1]
	numRows = batch.Size() / batch.Dim(-1)
	return lead, numRows, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}
	probs := make([]float64, len(logits))
	var total float64
	for i, l := range logits {
		probs[i] = math.Exp(l - maxLogit)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}

func logSoftmax(logits []float64) []float64 {
	probs := softmax(logits)
	for i, p := range probs {
		probs[i] = math.Log(p)
	}
	return probs
}
