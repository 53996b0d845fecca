package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// convSpec describes a single square convolution layer
type convSpec struct {
	out, kernel, stride int
}

// convInitFn returns the weight and bias initializers of a convolution
// layer with the given number of inputs to each output unit
type convInitFn func(fanIn int) (weights, bias G.InitWFn, err error)

// conv2d implements a 2D convolution layer with a ReLU activation and
// no padding
type conv2d struct {
	convSpec
	in int

	filter *G.Node // (out, in, kernel, kernel)
	bias   *G.Node // (1, out, 1, 1)
}

func newConv2d(g *G.ExprGraph, in int, spec convSpec, init convInitFn,
	name string) (*conv2d, error) {
	if in <= 0 || spec.out <= 0 || spec.kernel <= 0 || spec.stride <= 0 {
		return nil, fmt.Errorf("newConv2d: %w: layer %v must have positive "+
			"channels, kernel and stride", ErrConfig, name)
	}

	weightInit, biasInit, err := init(in * spec.kernel * spec.kernel)
	if err != nil {
		return nil, fmt.Errorf("newConv2d: %w", err)
	}

	return &conv2d{
		convSpec: spec,
		in:       in,
		filter: newParam(g, name+"_filter", weightInit, spec.out, in,
			spec.kernel, spec.kernel),
		bias: newParam(g, name+"_b", biasInit, 1, spec.out, 1, 1),
	}, nil
}

// fwd adds the convolution, bias and ReLU to the computational graph
func (c *conv2d) fwd(x *G.Node) (*G.Node, error) {
	kernel := tensor.Shape{c.kernel, c.kernel}
	out, err := G.Conv2d(x, c.filter, kernel, []int{0, 0},
		[]int{c.stride, c.stride}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("fwd: could not convolve: %w", err)
	}

	// Broadcast the bias over the batch and both spatial dimensions
	out, err = G.BroadcastAdd(out, c.bias, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, fmt.Errorf("fwd: could not add bias: %w", err)
	}
	return G.Rectify(out)
}

// outSize returns the spatial size of the output for an input of
// spatial size size
func (c *conv2d) outSize(size int) int {
	return (size-c.kernel)/c.stride + 1
}

// convNet is a stack of conv2d layers whose output is flattened to a
// (batch, features) matrix
type convNet struct {
	inputShape  []int
	layers      []*conv2d
	featureSize int
}

// newConvNet returns a new convNet for observations of shape
// (channels, height, width)
func newConvNet(g *G.ExprGraph, inputShape []int, specs []convSpec,
	init convInitFn, name string) (*convNet, error) {
	if len(inputShape) != 3 {
		return nil, fmt.Errorf("newConvNet: %w: input shape must be "+
			"(channels, height, width), have %v", ErrConfig, inputShape)
	}

	layers := make([]*conv2d, len(specs))
	channels, height, width := inputShape[0], inputShape[1], inputShape[2]
	for i, spec := range specs {
		layer, err := newConv2d(g, channels, spec, init,
			fmt.Sprintf("%v_conv%d", name, i))
		if err != nil {
			return nil, fmt.Errorf("newConvNet: %w", err)
		}
		layers[i] = layer

		channels = spec.out
		height = layer.outSize(height)
		width = layer.outSize(width)
		if height <= 0 || width <= 0 {
			return nil, fmt.Errorf("newConvNet: %w: input shape %v is too "+
				"small for convolution layer %v", ErrConfig, inputShape, i)
		}
	}

	return &convNet{
		inputShape:  append([]int(nil), inputShape...),
		layers:      layers,
		featureSize: channels * height * width,
	}, nil
}

// fwd adds the forward pass of the convNet to the computational graph
func (c *convNet) fwd(x *G.Node) (*G.Node, error) {
	shape := x.Shape()
	if shape.Dims() != 4 || !tensorutils.Equal(shape[1:], c.inputShape) {
		return nil, fmt.Errorf("fwd: %w: convolution input \n\twant(batch, "+
			"%v) \n\thave(%v)", ErrShape, c.inputShape, shape)
	}
	batch := shape[0]

	var err error
	for i, l := range c.layers {
		if x, err = l.fwd(x); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %w"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	return G.Reshape(x, tensor.Shape{batch, c.featureSize})
}

func (c *convNet) learnables() G.Nodes {
	learnables := make(G.Nodes, 0, 2*len(c.layers))
	for _, l := range c.layers {
		learnables = append(learnables, l.filter, l.bias)
	}
	return learnables
}
