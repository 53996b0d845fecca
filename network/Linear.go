package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/initwfn"
	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Linear is a fully connected layer computing x·W + b on a batch of
// inputs x with shape (batch, In()).
//
// Plain and noisy layers both implement Linear so that networks can
// build either kind without branching at each call site.
type Linear interface {
	Fwd(x *G.Node) (*G.Node, error)

	// SampleNoise resamples the exploration noise of the layer. It is
	// a no-op for layers which are not noisy.
	SampleNoise() error
	Noisy() bool

	// Weights and Bias return the (In(), Out()) weight node and the
	// (1, Out()) bias node. For noisy layers these are the means.
	Weights() *G.Node
	Bias() *G.Node

	Learnables() G.Nodes
	In() int
	Out() int
}

// NewLinear returns a new Linear layer with in inputs and out outputs.
// If noisy is true, a NoisyLinear layer with initial standard deviation
// scale sigmaInit is returned, otherwise a plain layer whose weights
// are initialized with init is returned. If init is nil, weights and
// biases are drawn uniformly from [-1/√in, 1/√in].
func NewLinear(g *G.ExprGraph, in, out int, noisy bool, sigmaInit float64,
	init G.InitWFn, name string, rng *rand.Rand) (Linear, error) {
	if noisy {
		l, err := NewNoisyLinear(g, in, out, sigmaInit, name, rng)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return newLinear(g, in, out, init, name, rng)
}

// linear implements a plain fully connected layer
type linear struct {
	in, out int
	weights *G.Node
	bias    *G.Node
}

func newLinear(g *G.ExprGraph, in, out int, init G.InitWFn, name string,
	rng *rand.Rand) (*linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("newLinear: %w: layer %v must have positive "+
			"sizes, have (%v, %v)", ErrConfig, name, in, out)
	}

	fanIn, err := initwfn.NewFanInUniform(in, rng.Uint64())
	if err != nil {
		return nil, fmt.Errorf("newLinear: %w", err)
	}
	biasInit := fanIn.InitWFn()
	if init == nil {
		init = biasInit
	}

	return &linear{
		in:      in,
		out:     out,
		weights: newParam(g, name+"_W", init, in, out),
		bias:    newParam(g, name+"_b", biasInit, 1, out),
	}, nil
}

// Fwd adds the forward pass of the layer to the computational graph
func (l *linear) Fwd(x *G.Node) (*G.Node, error) {
	if err := checkLinearInput(x, l.in); err != nil {
		return nil, err
	}
	return affine(x, l.weights, l.bias)
}

func (l *linear) SampleNoise() error  { return nil }
func (l *linear) Noisy() bool         { return false }
func (l *linear) Weights() *G.Node    { return l.weights }
func (l *linear) Bias() *G.Node       { return l.bias }
func (l *linear) Learnables() G.Nodes { return G.Nodes{l.weights, l.bias} }
func (l *linear) In() int             { return l.in }
func (l *linear) Out() int            { return l.out }

// affine computes x·w + b, broadcasting the (1, n) bias b to all
// samples along the batch dimension
func affine(x, w, b *G.Node) (*G.Node, error) {
	out, err := G.Mul(x, w)
	if err != nil {
		return nil, fmt.Errorf("affine: could not multiply weights: %w", err)
	}
	out, err = G.BroadcastAdd(out, b, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("affine: could not add bias: %w", err)
	}
	return out, nil
}

func checkLinearInput(x *G.Node, in int) error {
	if !x.IsMatrix() || x.Shape()[1] != in {
		return fmt.Errorf("fwd: %w: linear layer input \n\twant(batch, %v) "+
			"\n\thave(%v)", ErrShape, in, x.Shape())
	}
	return nil
}

// newParam returns a new float64 leaf node initialized by init
func newParam(g *G.ExprGraph, name string, init G.InitWFn,
	shape ...int) *G.Node {
	return G.NewTensor(g, tensor.Float64, len(shape), G.WithShape(shape...),
		G.WithName(name), G.WithInit(init))
}

// setParam overwrites the value of the parameter node n with values
// drawn from init
func setParam(n *G.Node, init *initwfn.InitWFn) error {
	values, err := init.Values(n.Shape()...)
	if err != nil {
		return err
	}
	return setValue(n, values)
}

// setValue overwrites the value of the node n
func setValue(n *G.Node, values []float64) error {
	if len(values) != tensorutils.Prod(n.Shape()) {
		return fmt.Errorf("setValue: %w: node %v has shape %v but %v values "+
			"were given", ErrShape, n.Name(), n.Shape(), len(values))
	}
	t := tensor.New(tensor.WithShape(n.Shape().Clone()...),
		tensor.WithBacking(values))
	return G.Let(n, t)
}
