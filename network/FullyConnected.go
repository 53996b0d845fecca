package network

import (
	"fmt"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// hiddenSize is the width of the hidden layer of each fully connected
// stream of a head
const hiddenSize = 512

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	Linear
	act *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := f.Fwd(x)
	if err != nil {
		return nil, err
	}
	return f.Activation().fwd(x)
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

// fcStack is a feed forward stack of fully connected layers
type fcStack []*fcLayer

// newFCStack returns a new two layer stream features -> hidden ->
// outputs with a ReLU between the layers and no output activation.
// If noisy is true, both layers are noisy.
func newFCStack(g *G.ExprGraph, features, hidden, outputs int, noisy bool,
	sigmaInit float64, init G.InitWFn, name string,
	rng *rand.Rand) (fcStack, error) {
	sizes := []int{features, hidden, outputs}
	activations := []*Activation{ReLU(), Identity()}

	stack := make(fcStack, len(activations))
	for i := range stack {
		layerName := fmt.Sprintf("%v_fc%d", name, i)
		l, err := NewLinear(g, sizes[i], sizes[i+1], noisy, sigmaInit, init,
			layerName, rng)
		if err != nil {
			return nil, fmt.Errorf("newFCStack: could not create layer %v: %w",
				i, err)
		}
		stack[i] = &fcLayer{Linear: l, act: activations[i]}
	}
	return stack, nil
}

// fwd performs the forward pass of the stack
func (s fcStack) fwd(x *G.Node) (*G.Node, error) {
	var err error
	for i, l := range s {
		if x, err = l.fwd(x); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %w"
			return nil, fmt.Errorf(msg, i, err)
		}
	}
	return x, nil
}

// sampleNoise resamples the noise of each layer, first to last
func (s fcStack) sampleNoise() error {
	for i, l := range s {
		if err := l.SampleNoise(); err != nil {
			return fmt.Errorf("sampleNoise: layer %v: %w", i, err)
		}
	}
	return nil
}

// learnables returns the learnables of each layer, first to last
func (s fcStack) learnables() G.Nodes {
	learnables := make(G.Nodes, 0, 4*len(s))
	for _, l := range s {
		learnables = append(learnables, l.Learnables()...)
	}
	return learnables
}
