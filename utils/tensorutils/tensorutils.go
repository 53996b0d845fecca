// Package tensorutils provides utilities for building and reading
// Gorgonia nodes and tensors.
package tensorutils

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Prod returns the number of elements in a tensor of the given shape
func Prod(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}

// Equal returns whether two shapes are equal
func Equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NewNode returns a new float64 input node of the given shape holding
// data. If data is nil, the node is filled with zeroes.
func NewNode(g *G.ExprGraph, name string, data []float64,
	shape ...int) (*G.Node, error) {
	size := Prod(shape)
	if data == nil {
		data = make([]float64, size)
	}
	if len(data) != size {
		return nil, fmt.Errorf("newNode: invalid number of values for "+
			"shape %v \n\twant(%v) \n\thave(%v)", shape, size, len(data))
	}

	value := tensor.New(
		tensor.WithShape(shape...),
		tensor.WithBacking(data),
	)
	return G.NewTensor(g, tensor.Float64, len(shape), G.WithShape(shape...),
		G.WithName(name), G.WithValue(value)), nil
}

// Zeros returns a new float64 input node of zeroes
func Zeros(g *G.ExprGraph, name string, shape ...int) *G.Node {
	return G.NewTensor(g, tensor.Float64, len(shape), G.WithShape(shape...),
		G.WithName(name), G.WithInit(G.Zeroes()))
}

// Float64s returns a copy of the backing data of a float64 value
func Float64s(v G.Value) ([]float64, error) {
	if v == nil {
		return nil, fmt.Errorf("float64s: nil value")
	}

	switch data := v.Data().(type) {
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out, nil
	case float64:
		return []float64{data}, nil
	default:
		return nil, fmt.Errorf("float64s: value has dtype %v, want float64",
			v.Dtype())
	}
}

// Transpose returns the row-major (cols, rows) transpose of the
// row-major (rows, cols) matrix data
func Transpose(data []float64, rows, cols int) []float64 {
	out := make([]float64, len(data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = data[i*cols+j]
		}
	}
	return out
}

// Slice implements tensor.Slice for slicing nodes and tensors.
//
// Given a tensor T and a Slice S, T.Slice(..., S, ...) is equivalent to
// T[..., S.start:S.end:S.step, ...]
type Slice struct {
	start, end, step int
}

// NewSlice returns a new Slice over [start, end) with the given step
func NewSlice(start, end, step int) Slice {
	return Slice{start, end, step}
}

// Start returns the start index of the slice
func (s Slice) Start() int { return s.start }

// End returns the end index of the slice
func (s Slice) End() int { return s.end }

// Step returns the step of the slice
func (s Slice) Step() int { return s.step }
