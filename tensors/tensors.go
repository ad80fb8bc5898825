// Package tensors implements a minimal dense float64 tensor: a flat backing
// slice plus a list of dimensions.
//
// It exists because batches of windowed time series are naturally rank-3
// (batch, time, features) while gonum's mat package is strictly 2-D. The last
// axis is always the "feature axis"; Matrix collapses all leading axes into
// rows so gonum can operate on the result, sharing the backing data.
package tensors

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense rank-N tensor of float64 values in row-major order.
type Tensor struct {
	dims []int
	data []float64
}

// FromFlatDataAndDimensions creates a Tensor backed by data, which is used
// directly (not copied). The product of the dimensions must match len(data).
func FromFlatDataAndDimensions(data []float64, dimensions ...int) *Tensor {
	size := checkDimensions(dimensions)
	if size != len(data) {
		panic(errors.Errorf("tensors: data has %d elements, dimensions %v require %d",
			len(data), dimensions, size))
	}
	return &Tensor{dims: dimensions, data: data}
}

// FromShape creates a zero-initialized Tensor with the given dimensions.
func FromShape(dimensions ...int) *Tensor {
	size := checkDimensions(dimensions)
	return &Tensor{dims: dimensions, data: make([]float64, size)}
}

func checkDimensions(dimensions []int) int {
	if len(dimensions) == 0 {
		panic(errors.New("tensors: at least one dimension is required"))
	}
	size := 1
	for _, dim := range dimensions {
		if dim <= 0 {
			panic(errors.Errorf("tensors: invalid dimensions %v, they must all be positive", dimensions))
		}
		size *= dim
	}
	return size
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.dims) }

// Dimensions returns a copy of the tensor's dimensions.
func (t *Tensor) Dimensions() []int {
	dims := make([]int, len(t.dims))
	copy(dims, t.dims)
	return dims
}

// Dim returns the size of axis i. Negative values index from the end, so
// Dim(-1) is the feature axis.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.dims)
	}
	return t.dims[i]
}

// Size returns the total number of elements.
func (t *Tensor) Size() int { return len(t.data) }

// Flat returns the backing slice. Mutations are visible to every view of the
// tensor.
func (t *Tensor) Flat() []float64 { return t.data }

// At returns the element at the given indices, one per axis.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.flatIndex(indices)]
}

// Set assigns value to the element at the given indices, one per axis.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.flatIndex(indices)] = value
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.dims) {
		panic(errors.Errorf("tensors: got %d indices for a rank-%d tensor", len(indices), len(t.dims)))
	}
	flat := 0
	for axis, index := range indices {
		if index < 0 || index >= t.dims[axis] {
			panic(errors.Errorf("tensors: index %d out of range for axis %d with size %d",
				index, axis, t.dims[axis]))
		}
		flat = flat*t.dims[axis] + index
	}
	return flat
}

// Reshape returns a view with the given dimensions sharing the same backing
// data. The total number of elements must not change.
func (t *Tensor) Reshape(dimensions ...int) *Tensor {
	return FromFlatDataAndDimensions(t.data, dimensions...)
}

// Matrix returns a 2-D gonum view of the tensor: all leading axes collapsed
// into rows, the last axis as columns. The view shares the backing data.
func (t *Tensor) Matrix() *mat.Dense {
	cols := t.dims[len(t.dims)-1]
	rows := len(t.data) / cols
	return mat.NewDense(rows, cols, t.data)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return FromFlatDataAndDimensions(data, t.Dimensions()...)
}
