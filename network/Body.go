package network

import (
	"fmt"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// Body is a feature extractor which maps a batch of observations of
// shape (batch, InputShape()...) to a (batch, FeatureSize()) matrix of
// features.
type Body interface {
	Fwd(x *G.Node) (*G.Node, error)

	// FeatureSize is known at construction so that heads can be sized
	// before any forward pass is built
	FeatureSize() int
	InputShape() []int

	Learnables() G.Nodes

	// SampleNoise resamples the noise of any noisy layers in the body
	// and is a no-op otherwise
	SampleNoise() error
}

// BodyFunc constructs a Body on the graph g for observations of shape
// inputShape. Bodies which support noisy layers use them when noisy is
// true.
type BodyFunc func(g *G.ExprGraph, inputShape []int, noisy bool,
	sigmaInit float64, rng *rand.Rand) (Body, error)

// BodyType names a BodyFunc so that bodies can be chosen in
// configuration files
type BodyType string

// Available body types
const (
	Simple BodyType = "Simple"
	Atari  BodyType = "Atari"
)

// Func returns the BodyFunc of the BodyType. The zero BodyType is
// Simple.
func (b BodyType) Func() (BodyFunc, error) {
	switch b {
	case Simple, "":
		return NewSimpleBody, nil
	case Atari:
		return NewAtariBody, nil
	default:
		return nil, fmt.Errorf("func: %w: unknown body type %v", ErrConfig, b)
	}
}
