package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// simpleBodySize is the number of features output by a SimpleBody
const simpleBodySize = 128

// SimpleBody is a single fully connected layer with a ReLU activation.
// Observations with more than one dimension are flattened first.
type SimpleBody struct {
	inputShape []int
	layer      *fcLayer
}

// NewSimpleBody returns a new SimpleBody. It implements BodyFunc.
func NewSimpleBody(g *G.ExprGraph, inputShape []int, noisy bool,
	sigmaInit float64, rng *rand.Rand) (Body, error) {
	if len(inputShape) == 0 || tensorutils.Prod(inputShape) <= 0 {
		return nil, fmt.Errorf("newSimpleBody: %w: invalid input shape %v",
			ErrConfig, inputShape)
	}

	name := fmt.Sprintf("simpleBody%d", nextID())
	l, err := NewLinear(g, tensorutils.Prod(inputShape), simpleBodySize, noisy,
		sigmaInit, nil, name+"_fc", rng)
	if err != nil {
		return nil, fmt.Errorf("newSimpleBody: %w", err)
	}

	return &SimpleBody{
		inputShape: append([]int(nil), inputShape...),
		layer:      &fcLayer{Linear: l, act: ReLU()},
	}, nil
}

// Fwd adds the forward pass of the body to the computational graph
func (s *SimpleBody) Fwd(x *G.Node) (*G.Node, error) {
	shape := x.Shape()
	if shape.Dims() != len(s.inputShape)+1 ||
		!tensorutils.Equal(shape[1:], s.inputShape) {
		return nil, fmt.Errorf("fwd: %w: invalid observation shape "+
			"\n\twant(batch, %v) \n\thave(%v)", ErrShape, s.inputShape, shape)
	}

	if shape.Dims() > 2 {
		var err error
		x, err = G.Reshape(x, tensor.Shape{shape[0], s.layer.In()})
		if err != nil {
			return nil, fmt.Errorf("fwd: could not flatten observations: %w",
				err)
		}
	}
	return s.layer.fwd(x)
}

// FeatureSize returns the number of features output by the body
func (s *SimpleBody) FeatureSize() int {
	return simpleBodySize
}

// InputShape returns the shape of a single observation
func (s *SimpleBody) InputShape() []int {
	return append([]int(nil), s.inputShape...)
}

// Learnables returns the learnable nodes of the body
func (s *SimpleBody) Learnables() G.Nodes {
	return s.layer.Learnables()
}

// SampleNoise resamples the noise of the body's layer if it is noisy
func (s *SimpleBody) SampleNoise() error {
	return s.layer.SampleNoise()
}
