package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/initwfn"
	"github.com/samuelfneumann/rlnet/utils/op"
	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// Orthogonal gains of the PolicyHead layers
const (
	criticGain = 1.0
	actorGain  = 0.01
)

// recurrentInputSize is the width of the layer feeding the GRU cell of
// a recurrent PolicyHead
const recurrentInputSize = 512

// PolicyHead maps features to policy logits and a state value. A
// recurrent PolicyHead carries a GRU state between calls, which is
// multiplied by a 0/1 mask before every update so that it is reset at
// episode boundaries.
type PolicyHead struct {
	recurrent  bool
	gruSize    int
	numActions int
	noisy      bool

	fc1    *fcLayer
	gru    *gruCell
	critic Linear
	actor  Linear
}

// NewPolicyHead returns a new PolicyHead taking features inputs. All
// linear layers have orthogonal weights and zero biases. If noisy is
// true, the linear layers are noisy with initial standard deviation
// scale sigmaInit, and their means are initialized orthogonally.
func NewPolicyHead(g *G.ExprGraph, features, numActions, gruSize int,
	recurrent, noisy bool, sigmaInit float64,
	rng *rand.Rand) (*PolicyHead, error) {
	if numActions <= 0 {
		return nil, fmt.Errorf("newPolicyHead: %w: number of actions must "+
			"be positive, have %v", ErrConfig, numActions)
	}
	if gruSize <= 0 {
		return nil, fmt.Errorf("newPolicyHead: %w: gru size must be "+
			"positive, have %v", ErrConfig, gruSize)
	}

	name := fmt.Sprintf("policy%d", nextID())
	hidden := gruSize
	if recurrent {
		hidden = recurrentInputSize
	}

	fc1, err := NewLinear(g, features, hidden, noisy, sigmaInit, nil,
		name+"_fc1", rng)
	if err != nil {
		return nil, fmt.Errorf("newPolicyHead: %w", err)
	}
	if err := layerInit(fc1, initwfn.ReLUGain, rng.Uint64()); err != nil {
		return nil, fmt.Errorf("newPolicyHead: %w", err)
	}

	var gru *gruCell
	if recurrent {
		gru, err = newGRUCell(g, hidden, gruSize, name+"_gru", rng)
		if err != nil {
			return nil, fmt.Errorf("newPolicyHead: %w", err)
		}
		if err := gru.initOrthogonal(1, rng.Uint64()); err != nil {
			return nil, fmt.Errorf("newPolicyHead: %w", err)
		}
	}

	critic, err := NewLinear(g, gruSize, 1, noisy, sigmaInit, nil,
		name+"_critic", rng)
	if err != nil {
		return nil, fmt.Errorf("newPolicyHead: %w", err)
	}
	if err := layerInit(critic, criticGain, rng.Uint64()); err != nil {
		return nil, fmt.Errorf("newPolicyHead: %w", err)
	}

	actor, err := NewLinear(g, gruSize, numActions, noisy, sigmaInit, nil,
		name+"_actor", rng)
	if err != nil {
		return nil, fmt.Errorf("newPolicyHead: %w", err)
	}
	if err := layerInit(actor, actorGain, rng.Uint64()); err != nil {
		return nil, fmt.Errorf("newPolicyHead: %w", err)
	}

	return &PolicyHead{
		recurrent:  recurrent,
		gruSize:    gruSize,
		numActions: numActions,
		noisy:      noisy,
		fc1:        &fcLayer{Linear: fc1, act: ReLU()},
		gru:        gru,
		critic:     critic,
		actor:      actor,
	}, nil
}

// layerInit sets the weights of l to an orthogonal matrix scaled by
// gain and its bias to zero. Noisy layers have their means set.
func layerInit(l Linear, gain float64, seed uint64) error {
	ortho, err := initwfn.NewOrthogonal(gain, seed)
	if err != nil {
		return fmt.Errorf("layerInit: %w", err)
	}

	// Weights are stored as (in, out), so draw an (out, in) matrix with
	// orthonormal rows and transpose it
	weights, err := ortho.Values(l.Out(), l.In())
	if err != nil {
		return fmt.Errorf("layerInit: %w", err)
	}
	weights = tensorutils.Transpose(weights, l.Out(), l.In())
	if err := setValue(l.Weights(), weights); err != nil {
		return fmt.Errorf("layerInit: %w", err)
	}

	zeroes, err := initwfn.NewZeroes()
	if err != nil {
		return fmt.Errorf("layerInit: %w", err)
	}
	if err := setParam(l.Bias(), zeroes); err != nil {
		return fmt.Errorf("layerInit: %w", err)
	}
	return nil
}

// Fwd adds the forward pass of the head to the computational graph.
//
// Non-recurrent heads return states unchanged and ignore masks, so
// both may be nil. Recurrent heads take states of shape (N, gru size)
// and masks of shape (batch, 1). If batch is N, a single update is made.
// If batch is T·N, x holds T consecutive timesteps of N environments,
// where row t·N + n is timestep t of environment n, and the updates are
// made in order of t. Any other batch size is an error.
//
// Fwd returns the (batch, actions) logits, the (batch, 1) values and
// the updated states.
func (p *PolicyHead) Fwd(x, states, masks *G.Node) (logits, value,
	newStates *G.Node, err error) {
	x, err = p.fc1.fwd(x)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fwd: fc1: %w", err)
	}

	newStates = states
	if p.recurrent {
		if x, newStates, err = p.recur(x, states, masks); err != nil {
			return nil, nil, nil, fmt.Errorf("fwd: %w", err)
		}
	}

	if value, err = p.critic.Fwd(x); err != nil {
		return nil, nil, nil, fmt.Errorf("fwd: critic: %w", err)
	}
	if logits, err = p.actor.Fwd(x); err != nil {
		return nil, nil, nil, fmt.Errorf("fwd: actor: %w", err)
	}
	return logits, value, newStates, nil
}

// recur runs the masked GRU updates over x, returning the state after
// each row of x and the final states
func (p *PolicyHead) recur(x, states, masks *G.Node) (*G.Node, *G.Node,
	error) {
	if states == nil || masks == nil {
		return nil, nil, fmt.Errorf("recur: %w: recurrent head needs states "+
			"and masks", ErrShape)
	}
	if err := checkLinearInput(states, p.gruSize); err != nil {
		return nil, nil, fmt.Errorf("recur: states: %w", err)
	}

	batch, n := x.Shape()[0], states.Shape()[0]
	if !tensorutils.Equal(masks.Shape(), []int{batch, 1}) {
		return nil, nil, fmt.Errorf("recur: %w: invalid mask shape "+
			"\n\twant(%v) \n\thave(%v)", ErrShape, []int{batch, 1},
			masks.Shape())
	}
	if batch%n != 0 {
		return nil, nil, fmt.Errorf("recur: %w: input batch %v is not a "+
			"multiple of state batch %v", ErrShape, batch, n)
	}

	if batch == n {
		h, err := p.maskedStep(x, states, masks)
		if err != nil {
			return nil, nil, fmt.Errorf("recur: %w", err)
		}
		return h, h, nil
	}

	steps := batch / n
	outputs := make([]*G.Node, steps)
	h := states
	for t := range outputs {
		xt, err := op.SliceRows(x, t*n, (t+1)*n)
		if err != nil {
			return nil, nil, fmt.Errorf("recur: timestep %v: %w", t, err)
		}
		mt, err := op.SliceRows(masks, t*n, (t+1)*n)
		if err != nil {
			return nil, nil, fmt.Errorf("recur: timestep %v: %w", t, err)
		}
		if h, err = p.maskedStep(xt, h, mt); err != nil {
			return nil, nil, fmt.Errorf("recur: timestep %v: %w", t, err)
		}
		outputs[t] = h
	}

	out, err := G.Concat(0, outputs...)
	if err != nil {
		return nil, nil, fmt.Errorf("recur: could not concatenate "+
			"timesteps: %w", err)
	}
	return out, h, nil
}

// maskedStep computes a GRU update on the states h scaled row-wise by
// the (N, 1) masks m
func (p *PolicyHead) maskedStep(x, h, m *G.Node) (*G.Node, error) {
	masked, err := G.BroadcastHadamardProd(h, m, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("maskedStep: could not mask states: %w", err)
	}
	return p.gru.step(x, masked)
}

// StateSize returns the size of the recurrent state, or 1 if the head
// is not recurrent
func (p *PolicyHead) StateSize() int {
	if p.recurrent {
		return p.gruSize
	}
	return 1
}

// SampleNoise resamples the noise of the critic, then the actor, then
// fc1. It is a no-op if the head is not noisy.
func (p *PolicyHead) SampleNoise() error {
	if !p.noisy {
		return nil
	}
	for _, l := range []Linear{p.critic, p.actor, p.fc1} {
		if err := l.SampleNoise(); err != nil {
			return fmt.Errorf("sampleNoise: %w", err)
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the head
func (p *PolicyHead) Learnables() G.Nodes {
	learnables := append(G.Nodes{}, p.fc1.Learnables()...)
	if p.gru != nil {
		learnables = append(learnables, p.gru.learnables()...)
	}
	learnables = append(learnables, p.critic.Learnables()...)
	return append(learnables, p.actor.Learnables()...)
}
