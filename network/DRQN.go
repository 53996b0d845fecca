package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DRQN is a recurrent action-value network. Each observation of a
// batch of sequences is passed through a Body, the features are
// processed in order by a single layer GRU (in both directions if
// bidirectional) and a linear head maps the GRU output at each
// timestep to one value per action.
//
// The hidden state is owned by the caller and threaded explicitly
// through calls to Fwd.
type DRQN struct {
	g             *G.ExprGraph
	name          string
	numActions    int
	gruSize       int
	bidirectional bool
	noisy         bool

	body  Body
	cells []*gruCell // forward then backward direction
	head  Linear

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewDRQN returns a new DRQN on the graph g for observations of shape
// inputShape. The body is built by body, or is a SimpleBody if body is
// nil. If noisy is true, the body and head use noisy linear layers with
// initial standard deviation scale sigmaInit. If init is not nil, it
// initializes the weights of a plain head. All randomness is derived
// from seed.
func NewDRQN(g *G.ExprGraph, inputShape []int, numActions, gruSize int,
	bidirectional, noisy bool, sigmaInit float64, body BodyFunc,
	init G.InitWFn, seed uint64) (*DRQN, error) {
	if numActions <= 0 {
		return nil, fmt.Errorf("newDRQN: %w: number of actions must be "+
			"positive, have %v", ErrConfig, numActions)
	}
	if gruSize <= 0 {
		return nil, fmt.Errorf("newDRQN: %w: gru size must be positive, "+
			"have %v", ErrConfig, gruSize)
	}
	if body == nil {
		body = NewSimpleBody
	}

	rng := rand.New(rand.NewSource(seed))
	b, err := body(g, inputShape, noisy, sigmaInit, rng)
	if err != nil {
		return nil, fmt.Errorf("newDRQN: could not create body: %w", err)
	}
	if b.FeatureSize() <= 0 {
		return nil, fmt.Errorf("newDRQN: %w: body has non-positive feature "+
			"size %v", ErrConfig, b.FeatureSize())
	}

	name := fmt.Sprintf("drqn%d", nextID())
	directions := 1
	if bidirectional {
		directions = 2
	}

	cells := make([]*gruCell, directions)
	for d := range cells {
		cells[d], err = newGRUCell(g, b.FeatureSize(), gruSize,
			fmt.Sprintf("%v_gru%d", name, d), rng)
		if err != nil {
			return nil, fmt.Errorf("newDRQN: %w", err)
		}
	}

	head, err := NewLinear(g, directions*gruSize, numActions, noisy,
		sigmaInit, init, name+"_head", rng)
	if err != nil {
		return nil, fmt.Errorf("newDRQN: could not create head: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"name":          name,
		"actions":       numActions,
		"features":      b.FeatureSize(),
		"gruSize":       gruSize,
		"bidirectional": bidirectional,
		"noisy":         noisy,
	}).Debug("built recurrent q-network")

	return &DRQN{
		g:             g,
		name:          name,
		numActions:    numActions,
		gruSize:       gruSize,
		bidirectional: bidirectional,
		noisy:         noisy,
		body:          b,
		cells:         cells,
		head:          head,
	}, nil
}

// directions returns the number of directions of the GRU
func (d *DRQN) directions() int {
	return len(d.cells)
}

// InitHidden returns a new zero hidden state node of shape
// (directions, batch, gru size) on the network's graph
func (d *DRQN) InitHidden(batch int) *G.Node {
	name := fmt.Sprintf("%v_h0_%d", d.name, nextID())
	return tensorutils.Zeros(d.g, name, d.directions(), batch, d.gruSize)
}

// Fwd adds the forward pass of the network to the computational graph.
// The observations x have shape (batch, sequence length, input shape...)
// and hidden has shape (directions, batch, gru size). If hidden is nil,
// a zero hidden state is used.
//
// Fwd returns the action values of shape (batch, sequence length,
// actions) and the final hidden state of shape (directions, batch,
// gru size).
func (d *DRQN) Fwd(x, hidden *G.Node) (*G.Node, *G.Node, error) {
	inputShape := d.body.InputShape()
	shape := x.Shape()
	if shape.Dims() != len(inputShape)+2 ||
		!tensorutils.Equal(shape[2:], inputShape) {
		return nil, nil, fmt.Errorf("fwd: %w: invalid observation shape "+
			"\n\twant(batch, sequence, %v) \n\thave(%v)", ErrShape,
			inputShape, shape)
	}
	batch, length := shape[0], shape[1]

	if hidden == nil {
		hidden = d.InitHidden(batch)
	}
	want := []int{d.directions(), batch, d.gruSize}
	if !tensorutils.Equal(hidden.Shape(), want) {
		return nil, nil, fmt.Errorf("fwd: %w: invalid hidden state shape "+
			"\n\twant(%v) \n\thave(%v)", ErrShape, want, hidden.Shape())
	}

	// Run the body on all observations at once, then split the features
	// into timesteps. Row b·length + t holds timestep t of sequence b.
	flatShape := append(tensor.Shape{batch * length}, inputShape...)
	flat, err := G.Reshape(x, flatShape)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not flatten sequences: %w",
			err)
	}
	features, err := d.body.Fwd(flat)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: body: %w", err)
	}
	features, err = G.Reshape(features, tensor.Shape{batch, length,
		features.Shape()[1]})
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %w", err)
	}
	steps, err := unstack(features, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not split timesteps: %w", err)
	}

	h0, err := d.splitHidden(hidden)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %w", err)
	}

	// Run each direction over the sequence
	outputs := make([][]*G.Node, d.directions())
	final := make([]*G.Node, d.directions())
	for dir, cell := range d.cells {
		outputs[dir], final[dir], err = cell.run(steps, h0[dir], dir == 1)
		if err != nil {
			return nil, nil, fmt.Errorf("fwd: direction %v: %w", dir, err)
		}
	}

	values := make([]*G.Node, length)
	for t := range values {
		out := outputs[0][t]
		if d.bidirectional {
			if out, err = G.Concat(1, outputs[0][t], outputs[1][t]); err != nil {
				return nil, nil, fmt.Errorf("fwd: could not concatenate "+
					"directions: %w", err)
			}
		}
		if values[t], err = d.head.Fwd(out); err != nil {
			return nil, nil, fmt.Errorf("fwd: head: %w", err)
		}
	}

	q, err := concat(1, values)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not concatenate timesteps: %w",
			err)
	}
	if q, err = G.Reshape(q, tensor.Shape{batch, length, d.numActions}); err != nil {
		return nil, nil, fmt.Errorf("fwd: could not reshape values: %w", err)
	}

	h, err := concat(0, final)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not concatenate hidden "+
			"states: %w", err)
	}
	if h, err = G.Reshape(h, tensor.Shape(want)); err != nil {
		return nil, nil, fmt.Errorf("fwd: could not reshape hidden state: %w",
			err)
	}

	return q, h, nil
}

// splitHidden splits a (directions, batch, gru size) hidden state into
// one (batch, gru size) node per direction
func (d *DRQN) splitHidden(hidden *G.Node) ([]*G.Node, error) {
	h, err := unstack(hidden, 0)
	if err != nil {
		return nil, fmt.Errorf("splitHidden: %w", err)
	}
	return h, nil
}

// unstack slices the rank 3 node x along axis, returning one rank 2
// node per index of axis
func unstack(x *G.Node, axis int) ([]*G.Node, error) {
	out := make([]*G.Node, x.Shape()[axis])
	slices := make([]tensor.Slice, axis+1)
	var err error
	for i := range out {
		slices[axis] = G.S(i)
		if out[i], err = G.Slice(x, slices...); err != nil {
			return nil, fmt.Errorf("unstack: index %v: %w", i, err)
		}
	}
	return out, nil
}

// concat concatenates nodes along axis, returning a single node as is
func concat(axis int, nodes []*G.Node) (*G.Node, error) {
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return G.Concat(axis, nodes...)
}

// NumActions returns the number of actions
func (d *DRQN) NumActions() int {
	return d.numActions
}

// GRUSize returns the size of the hidden state of each direction
func (d *DRQN) GRUSize() int {
	return d.gruSize
}

// Bidirectional returns whether the GRU runs in both directions
func (d *DRQN) Bidirectional() bool {
	return d.bidirectional
}

// InputShape returns the shape of a single observation
func (d *DRQN) InputShape() []int {
	return d.body.InputShape()
}

// Graph returns the computational graph of the network
func (d *DRQN) Graph() *G.ExprGraph {
	return d.g
}

// SampleNoise resamples the noise of the body, then the head. It is a
// no-op if the network is not noisy.
func (d *DRQN) SampleNoise() error {
	if !d.noisy {
		return nil
	}
	if err := d.body.SampleNoise(); err != nil {
		return fmt.Errorf("sampleNoise: body: %w", err)
	}
	if err := d.head.SampleNoise(); err != nil {
		return fmt.Errorf("sampleNoise: head: %w", err)
	}
	return nil
}

// Learnables returns the learnable nodes of the network
func (d *DRQN) Learnables() G.Nodes {
	// Lazy instantiation
	if d.learnables == nil {
		learnables := append(G.Nodes{}, d.body.Learnables()...)
		for _, cell := range d.cells {
			learnables = append(learnables, cell.learnables()...)
		}
		d.learnables = append(learnables, d.head.Learnables()...)
	}
	return d.learnables
}

// Model returns the learnable nodes with their gradients
func (d *DRQN) Model() []G.ValueGrad {
	// Lazy instantiation
	if d.model == nil {
		d.model = model(d.Learnables())
	}
	return d.model
}
