package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/initwfn"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// ConvTrunk is the fixed three layer convolutional feature extractor of
// an ActorCritic. Filters are orthogonal with ReLU gain and biases are
// zero.
type ConvTrunk struct {
	net *convNet
}

// NewConvTrunk returns a new ConvTrunk for observations of shape
// (channels, height, width) whose last layer has convOut channels
func NewConvTrunk(g *G.ExprGraph, inputShape []int, convOut int,
	rng *rand.Rand) (*ConvTrunk, error) {
	if convOut <= 0 {
		return nil, fmt.Errorf("newConvTrunk: %w: output channels must be "+
			"positive, have %v", ErrConfig, convOut)
	}

	layers := []convSpec{
		{out: 32, kernel: 8, stride: 4},
		{out: 64, kernel: 4, stride: 2},
		{out: convOut, kernel: 3, stride: 1},
	}
	init := func(int) (G.InitWFn, G.InitWFn, error) {
		ortho, err := initwfn.NewOrthogonal(initwfn.ReLUGain, rng.Uint64())
		if err != nil {
			return nil, nil, err
		}
		return ortho.InitWFn(), G.Zeroes(), nil
	}

	net, err := newConvNet(g, inputShape, layers, init,
		fmt.Sprintf("trunk%d", nextID()))
	if err != nil {
		return nil, fmt.Errorf("newConvTrunk: %w", err)
	}
	return &ConvTrunk{net: net}, nil
}

// Fwd adds the forward pass of the trunk to the computational graph,
// returning a (batch, FeatureSize()) node
func (c *ConvTrunk) Fwd(x *G.Node) (*G.Node, error) {
	return c.net.fwd(x)
}

// FeatureSize returns the number of features output by the trunk
func (c *ConvTrunk) FeatureSize() int {
	return c.net.featureSize
}

// InputShape returns the shape of a single observation
func (c *ConvTrunk) InputShape() []int {
	return append([]int(nil), c.net.inputShape...)
}

// Learnables returns the learnable nodes of the trunk
func (c *ConvTrunk) Learnables() G.Nodes {
	return c.net.learnables()
}
