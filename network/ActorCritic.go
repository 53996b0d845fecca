package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// ActorCritic is a convolutional actor-critic network made of a
// ConvTrunk followed by a PolicyHead, optionally recurrent.
type ActorCritic struct {
	g     *G.ExprGraph
	name  string
	trunk *ConvTrunk
	head  *PolicyHead

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewActorCritic returns a new ActorCritic on the graph g for image
// observations of shape (channels, height, width). The last convolution
// layer has convOut channels. The linear layer before the heads has
// gruSize units, or 512 units followed by a GRU cell with gruSize units
// if recurrent. If noisy is true, the linear layers are noisy with
// initial standard deviation scale sigmaInit. All randomness is derived
// from seed.
func NewActorCritic(g *G.ExprGraph, inputShape []int, numActions, convOut,
	gruSize int, recurrent, noisy bool, sigmaInit float64,
	seed uint64) (*ActorCritic, error) {
	rng := rand.New(rand.NewSource(seed))

	trunk, err := NewConvTrunk(g, inputShape, convOut, rng)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %w", err)
	}
	head, err := NewPolicyHead(g, trunk.FeatureSize(), numActions, gruSize,
		recurrent, noisy, sigmaInit, rng)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %w", err)
	}

	name := fmt.Sprintf("actorCritic%d", nextID())
	logger.WithFields(logrus.Fields{
		"name":      name,
		"actions":   numActions,
		"features":  trunk.FeatureSize(),
		"gruSize":   gruSize,
		"recurrent": recurrent,
		"noisy":     noisy,
	}).Debug("built actor-critic network")

	return &ActorCritic{
		g:     g,
		name:  name,
		trunk: trunk,
		head:  head,
	}, nil
}

// Fwd adds the forward pass of the network on the observations x to
// the computational graph. See PolicyHead.Fwd for the shapes of states
// and masks.
//
// Fwd returns the (batch, actions) logits, the (batch, 1) values and
// the updated states.
func (a *ActorCritic) Fwd(x, states, masks *G.Node) (logits, value,
	newStates *G.Node, err error) {
	features, err := a.trunk.Fwd(x)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fwd: trunk: %w", err)
	}
	return a.head.Fwd(features, states, masks)
}

// InitStates returns a new zero state node of shape (n, StateSize())
// on the network's graph
func (a *ActorCritic) InitStates(n int) *G.Node {
	name := fmt.Sprintf("%v_states_%d", a.name, nextID())
	return tensorutils.Zeros(a.g, name, n, a.StateSize())
}

// StateSize returns the size of the recurrent state, or 1 if the
// network is not recurrent
func (a *ActorCritic) StateSize() int {
	return a.head.StateSize()
}

// Recurrent returns whether the network carries a recurrent state
func (a *ActorCritic) Recurrent() bool {
	return a.head.recurrent
}

// NumActions returns the number of actions
func (a *ActorCritic) NumActions() int {
	return a.head.numActions
}

// InputShape returns the shape of a single observation
func (a *ActorCritic) InputShape() []int {
	return a.trunk.InputShape()
}

// Graph returns the computational graph of the network
func (a *ActorCritic) Graph() *G.ExprGraph {
	return a.g
}

// SampleNoise resamples the noise of the head. It is a no-op if the
// network is not noisy.
func (a *ActorCritic) SampleNoise() error {
	return a.head.SampleNoise()
}

// Learnables returns the learnable nodes of the network
func (a *ActorCritic) Learnables() G.Nodes {
	// Lazy instantiation
	if a.learnables == nil {
		learnables := append(G.Nodes{}, a.trunk.Learnables()...)
		a.learnables = append(learnables, a.head.Learnables()...)
	}
	return a.learnables
}

// Model returns the learnable nodes with their gradients
func (a *ActorCritic) Model() []G.ValueGrad {
	// Lazy instantiation
	if a.model == nil {
		a.model = model(a.Learnables())
	}
	return a.model
}
