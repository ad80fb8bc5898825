package variables_test

import (
	"testing"

	"github.com/SepKfr/cluster-forecasting/tensors"
	"github.com/SepKfr/cluster-forecasting/variables"
	"github.com/stretchr/testify/assert"
)

func TestVariable(t *testing.T) {
	v := variables.New("weights", tensors.FromShape(2, 3))
	assert.Equal(t, "weights", v.Name())
	assert.Equal(t, 6, v.Size())
	assert.True(t, v.Trainable())
	assert.Len(t, v.Grad(), 6)

	v.Grad()[3] = 1.5
	v.ZeroGrad()
	assert.Equal(t, 0.0, v.Grad()[3])

	v.SetTrainable(false)
	assert.False(t, v.Trainable())
}

func TestHelpers(t *testing.T) {
	a := variables.New("a", tensors.FromShape(4))
	b := variables.New("b", tensors.FromShape(2, 2, 2))
	vars := []*variables.Variable{a, b}

	assert.Equal(t, 12, variables.NumParameters(vars))

	a.Grad()[0] = 1
	b.Grad()[7] = -2
	variables.ZeroGradAll(vars)
	assert.Equal(t, 0.0, a.Grad()[0])
	assert.Equal(t, 0.0, b.Grad()[7])
}
