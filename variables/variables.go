// Package variables defines the learnable state shared by models and
// optimizers: a named value tensor with an accumulated gradient of the same
// size.
//
// Models write gradients during their forward evaluation, optimizers consume
// them in Step, and the (non-differentiable) constraint projections mutate
// values directly without ever touching gradients. See the mixtures package
// for the ordering discipline this supports.
package variables

import (
	"github.com/SepKfr/cluster-forecasting/tensors"
)

// Variable is a learnable tensor plus the gradient of the current loss with
// respect to it. The gradient is stored flat, aligned with Value().Flat().
type Variable struct {
	name      string
	value     *tensors.Tensor
	grad      []float64
	trainable bool
}

// New creates a trainable Variable wrapping value. The value tensor is used
// directly, not copied.
func New(name string, value *tensors.Tensor) *Variable {
	return &Variable{
		name:      name,
		value:     value,
		grad:      make([]float64, value.Size()),
		trainable: true,
	}
}

// Name returns the variable name, unique within its owning model.
func (v *Variable) Name() string { return v.name }

// Value returns the value tensor. The backing data may be mutated in place;
// views held by the owning model observe the change.
func (v *Variable) Value() *tensors.Tensor { return v.value }

// Grad returns the accumulated gradient, aligned element-wise with
// Value().Flat().
func (v *Variable) Grad() []float64 { return v.grad }

// Size returns the number of scalar parameters held.
func (v *Variable) Size() int { return v.value.Size() }

// Trainable reports whether optimizers should update this variable.
func (v *Variable) Trainable() bool { return v.trainable }

// SetTrainable marks the variable as (non-)trainable and returns it.
func (v *Variable) SetTrainable(trainable bool) *Variable {
	v.trainable = trainable
	return v
}

// ZeroGrad resets the accumulated gradient to zero.
func (v *Variable) ZeroGrad() {
	for i := range v.grad {
		v.grad[i] = 0
	}
}

// ZeroGradAll resets the gradients of all the given variables.
func ZeroGradAll(vars []*Variable) {
	for _, v := range vars {
		v.ZeroGrad()
	}
}

// NumParameters returns the total number of scalar parameters in vars.
func NumParameters(vars []*Variable) int {
	total := 0
	for _, v := range vars {
		total += v.Size()
	}
	return total
}
