package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/initwfn"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// atariLayers are the convolution layers of an AtariBody
var atariLayers = []convSpec{
	{out: 32, kernel: 8, stride: 4},
	{out: 64, kernel: 4, stride: 2},
	{out: 64, kernel: 3, stride: 1},
}

// AtariBody is a three layer convolutional feature extractor for image
// observations of shape (channels, height, width). It has no noisy
// layers.
type AtariBody struct {
	net *convNet
}

// NewAtariBody returns a new AtariBody. It implements BodyFunc. The
// noisy and sigmaInit arguments are ignored.
func NewAtariBody(g *G.ExprGraph, inputShape []int, noisy bool,
	sigmaInit float64, rng *rand.Rand) (Body, error) {
	init := func(fanIn int) (G.InitWFn, G.InitWFn, error) {
		u, err := initwfn.NewFanInUniform(fanIn, rng.Uint64())
		if err != nil {
			return nil, nil, err
		}
		return u.InitWFn(), u.InitWFn(), nil
	}

	net, err := newConvNet(g, inputShape, atariLayers, init,
		fmt.Sprintf("atariBody%d", nextID()))
	if err != nil {
		return nil, fmt.Errorf("newAtariBody: %w", err)
	}
	return &AtariBody{net: net}, nil
}

// Fwd adds the forward pass of the body to the computational graph
func (a *AtariBody) Fwd(x *G.Node) (*G.Node, error) {
	return a.net.fwd(x)
}

// FeatureSize returns the number of features output by the body
func (a *AtariBody) FeatureSize() int {
	return a.net.featureSize
}

// InputShape returns the shape of a single observation
func (a *AtariBody) InputShape() []int {
	return append([]int(nil), a.net.inputShape...)
}

// Learnables returns the learnable nodes of the body
func (a *AtariBody) Learnables() G.Nodes {
	return a.net.learnables()
}

// SampleNoise is a no-op
func (a *AtariBody) SampleNoise() error {
	return nil
}
