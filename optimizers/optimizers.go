// Package optimizers implements gradient-descent optimizers over the
// learnable variables of a model. They all implement optimizers.Interface.
//
// The caller owns the ordering discipline: zero the gradients, run the
// model's forward evaluation (which accumulates gradients), call Step, then
// run the model's parameter-constraint projection before the next forward
// pass.
package optimizers

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/SepKfr/cluster-forecasting/variables"
)

// Interface implemented by all optimizers.
type Interface interface {
	// Step applies one update to every trainable variable, consuming the
	// gradients accumulated since the last ZeroGrad.
	Step(vars []*variables.Variable)

	// Reset clears all internal optimizer state (momenta, step counters), as
	// if freshly constructed.
	Reset()
}

// KnownOptimizers maps optimizer names to their default constructors, as an
// easy quick-start point for flag-driven configuration.
var KnownOptimizers = map[string]func(learningRate float64) Interface{
	"sgd":  func(lr float64) Interface { return NewSGD(lr) },
	"adam": func(lr float64) Interface { return NewAdam(lr) },
}

// Names returns the sorted names of KnownOptimizers.
func Names() []string {
	names := maps.Keys(KnownOptimizers)
	slices.Sort(names)
	return names
}

// ByName returns a fresh optimizer given its name in KnownOptimizers.
func ByName(name string, learningRate float64) (Interface, error) {
	builder, found := KnownOptimizers[name]
	if !found {
		return nil, errors.Errorf("unknown optimizer %q, valid values are %v", name, maps.Keys(KnownOptimizers))
	}
	return builder(learningRate), nil
}

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	// LearningRate scales each update.
	LearningRate float64

	// Momentum in [0, 1); zero disables the velocity term.
	Momentum float64

	velocity map[*variables.Variable][]float64
}

// NewSGD creates plain stochastic gradient descent (no momentum).
func NewSGD(learningRate float64) *SGD {
	return &SGD{LearningRate: learningRate}
}

// WithMomentum sets the momentum coefficient and returns the optimizer.
func (o *SGD) WithMomentum(momentum float64) *SGD {
	o.Momentum = momentum
	return o
}

// Step implements Interface.
func (o *SGD) Step(vars []*variables.Variable) {
	for _, v := range vars {
		if !v.Trainable() {
			continue
		}
		value := v.Value().Flat()
		grad := v.Grad()
		if o.Momentum == 0 {
			for i := range value {
				value[i] -= o.LearningRate * grad[i]
			}
			continue
		}
		if o.velocity == nil {
			o.velocity = make(map[*variables.Variable][]float64)
		}
		velocity, found := o.velocity[v]
		if !found {
			velocity = make([]float64, len(value))
			o.velocity[v] = velocity
		}
		for i := range value {
			velocity[i] = o.Momentum*velocity[i] + grad[i]
			value[i] -= o.LearningRate * velocity[i]
		}
	}
}

// Reset implements Interface.
func (o *SGD) Reset() { o.velocity = nil }

// Adam implements the Adam optimizer (Kingma & Ba, 2014) with bias-corrected
// first and second moment estimates.
type Adam struct {
	// LearningRate scales each update.
	LearningRate float64

	// Beta1 and Beta2 are the exponential decay rates of the first and
	// second moment estimates.
	Beta1, Beta2 float64

	// Epsilon guards the denominator against division by zero.
	Epsilon float64

	step    int
	moment1 map[*variables.Variable][]float64
	moment2 map[*variables.Variable][]float64
}

// NewAdam creates an Adam optimizer with the usual defaults
// (beta1=0.9, beta2=0.999, epsilon=1e-8).
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Step implements Interface.
func (o *Adam) Step(vars []*variables.Variable) {
	if o.moment1 == nil {
		o.moment1 = make(map[*variables.Variable][]float64)
		o.moment2 = make(map[*variables.Variable][]float64)
	}
	o.step++
	correction1 := 1 - math.Pow(o.Beta1, float64(o.step))
	correction2 := 1 - math.Pow(o.Beta2, float64(o.step))
	for _, v := range vars {
		if !v.Trainable() {
			continue
		}
		value := v.Value().Flat()
		grad := v.Grad()
		m1, found := o.moment1[v]
		if !found {
			m1 = make([]float64, len(value))
			o.moment1[v] = m1
		}
		m2, found := o.moment2[v]
		if !found {
			m2 = make([]float64, len(value))
			o.moment2[v] = m2
		}
		for i := range value {
			m1[i] = o.Beta1*m1[i] + (1-o.Beta1)*grad[i]
			m2[i] = o.Beta2*m2[i] + (1-o.Beta2)*grad[i]*grad[i]
			mHat := m1[i] / correction1
			vHat := m2[i] / correction2
			value[i] -= o.LearningRate * mHat / (math.Sqrt(vHat) + o.Epsilon)
		}
	}
}

// Reset implements Interface.
func (o *Adam) Reset() {
	o.step = 0
	o.moment1 = nil
	o.moment2 = nil
}
