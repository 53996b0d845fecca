package network

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/rlnet/utils/op"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Distribution describes what a QNet predicts for each action
type Distribution int

const (
	// Expected predicts a single expected return per action
	Expected Distribution = iota

	// Categorical predicts a probability distribution over a fixed
	// support of atoms per action
	Categorical

	// Quantile predicts a fixed number of quantiles of the return
	// distribution per action
	Quantile
)

var distributionNames = map[Distribution]string{
	Expected:    "Expected",
	Categorical: "Categorical",
	Quantile:    "Quantile",
}

// String implements the fmt.Stringer interface
func (d Distribution) String() string {
	if name, ok := distributionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Distribution(%d)", int(d))
}

// MarshalText implements the encoding.TextMarshaler interface
func (d Distribution) MarshalText() ([]byte, error) {
	if _, ok := distributionNames[d]; !ok {
		return nil, fmt.Errorf("marshalText: %w: unknown distribution %d",
			ErrConfig, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (d *Distribution) UnmarshalText(text []byte) error {
	for dist, name := range distributionNames {
		if strings.EqualFold(name, string(text)) {
			*d = dist
			return nil
		}
	}
	return fmt.Errorf("unmarshalText: %w: unknown distribution %q",
		ErrConfig, text)
}

// Architecture describes the head of a QNet. Support is the number of
// atoms or quantiles and is ignored for Expected heads.
type Architecture struct {
	Dueling      bool
	Distribution Distribution
	Support      int
}

// distributional returns whether the head predicts a distribution
func (a Architecture) distributional() bool {
	return a.Distribution != Expected
}

// width returns the number of outputs per action
func (a Architecture) width() int {
	if a.distributional() {
		return a.Support
	}
	return 1
}

// QNet is a feed forward action-value network composed of a Body and
// one or two fully connected streams.
//
// The advantage stream predicts Architecture.width() values per action.
// If the architecture is dueling, a value stream predicts
// Architecture.width() values per state and the two streams are
// combined so that the advantages are zero-centred.
type QNet struct {
	g          *G.ExprGraph
	arch       Architecture
	numActions int
	noisy      bool

	body Body
	adv  fcStack
	val  fcStack

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewQNet returns a new QNet on the graph g for observations of shape
// inputShape. The body is built by body, or is a SimpleBody if body is
// nil. If noisy is true, every linear layer uses NoisyLinear with
// initial standard deviation scale sigmaInit. Weights of plain linear
// layers in the streams are initialized with init, if not nil. All
// randomness is derived from seed.
func NewQNet(g *G.ExprGraph, inputShape []int, numActions int,
	arch Architecture, noisy bool, sigmaInit float64, body BodyFunc,
	init G.InitWFn, seed uint64) (*QNet, error) {
	if numActions <= 0 {
		return nil, fmt.Errorf("newQNet: %w: number of actions must be "+
			"positive, have %v", ErrConfig, numActions)
	}
	if _, ok := distributionNames[arch.Distribution]; !ok {
		return nil, fmt.Errorf("newQNet: %w: unknown distribution %v",
			ErrConfig, arch.Distribution)
	}
	if arch.distributional() && arch.Support <= 0 {
		return nil, fmt.Errorf("newQNet: %w: %v head must have positive "+
			"support, have %v", ErrConfig, arch.Distribution, arch.Support)
	}
	if body == nil {
		body = NewSimpleBody
	}

	rng := rand.New(rand.NewSource(seed))
	b, err := body(g, inputShape, noisy, sigmaInit, rng)
	if err != nil {
		return nil, fmt.Errorf("newQNet: could not create body: %w", err)
	}
	features := b.FeatureSize()
	if features <= 0 {
		return nil, fmt.Errorf("newQNet: %w: body has non-positive feature "+
			"size %v", ErrConfig, features)
	}

	name := fmt.Sprintf("qnet%d", nextID())
	adv, err := newFCStack(g, features, hiddenSize, numActions*arch.width(),
		noisy, sigmaInit, init, name+"_adv", rng)
	if err != nil {
		return nil, fmt.Errorf("newQNet: could not create advantage "+
			"stream: %w", err)
	}

	var val fcStack
	if arch.Dueling {
		val, err = newFCStack(g, features, hiddenSize, arch.width(), noisy,
			sigmaInit, init, name+"_val", rng)
		if err != nil {
			return nil, fmt.Errorf("newQNet: could not create value "+
				"stream: %w", err)
		}
	}

	logger.WithFields(logrus.Fields{
		"name":         name,
		"dueling":      arch.Dueling,
		"distribution": arch.Distribution,
		"support":      arch.width(),
		"actions":      numActions,
		"features":     features,
		"noisy":        noisy,
	}).Debug("built q-network")

	return &QNet{
		g:          g,
		arch:       arch,
		numActions: numActions,
		noisy:      noisy,
		body:       b,
		adv:        adv,
		val:        val,
	}, nil
}

// NewDQN returns a QNet predicting one action value per action
func NewDQN(g *G.ExprGraph, inputShape []int, numActions int, noisy bool,
	sigmaInit float64, body BodyFunc, seed uint64) (*QNet, error) {
	arch := Architecture{Distribution: Expected}
	return NewQNet(g, inputShape, numActions, arch, noisy, sigmaInit, body,
		nil, seed)
}

// NewDuelingDQN returns a QNet which combines a state value and action
// advantages as value + advantage - mean(advantage), where the mean is
// taken over all advantages in the batch
func NewDuelingDQN(g *G.ExprGraph, inputShape []int, numActions int,
	noisy bool, sigmaInit float64, body BodyFunc, seed uint64) (*QNet, error) {
	arch := Architecture{Dueling: true, Distribution: Expected}
	return NewQNet(g, inputShape, numActions, arch, noisy, sigmaInit, body,
		nil, seed)
}

// NewCategoricalDQN returns a QNet predicting a probability
// distribution over atoms for each action
func NewCategoricalDQN(g *G.ExprGraph, inputShape []int, numActions,
	atoms int, noisy bool, sigmaInit float64, body BodyFunc,
	seed uint64) (*QNet, error) {
	arch := Architecture{Distribution: Categorical, Support: atoms}
	return NewQNet(g, inputShape, numActions, arch, noisy, sigmaInit, body,
		nil, seed)
}

// NewCategoricalDuelingDQN returns a dueling QNet predicting a
// probability distribution over atoms for each action
func NewCategoricalDuelingDQN(g *G.ExprGraph, inputShape []int, numActions,
	atoms int, noisy bool, sigmaInit float64, body BodyFunc,
	seed uint64) (*QNet, error) {
	arch := Architecture{Dueling: true, Distribution: Categorical,
		Support: atoms}
	return NewQNet(g, inputShape, numActions, arch, noisy, sigmaInit, body,
		nil, seed)
}

// NewQRDQN returns a QNet predicting quantiles of the return
// distribution for each action
func NewQRDQN(g *G.ExprGraph, inputShape []int, numActions, quantiles int,
	noisy bool, sigmaInit float64, body BodyFunc, seed uint64) (*QNet, error) {
	arch := Architecture{Distribution: Quantile, Support: quantiles}
	return NewQNet(g, inputShape, numActions, arch, noisy, sigmaInit, body,
		nil, seed)
}

// NewDuelingQRDQN returns a dueling QNet predicting quantiles of the
// return distribution for each action
func NewDuelingQRDQN(g *G.ExprGraph, inputShape []int, numActions,
	quantiles int, noisy bool, sigmaInit float64, body BodyFunc,
	seed uint64) (*QNet, error) {
	arch := Architecture{Dueling: true, Distribution: Quantile,
		Support: quantiles}
	return NewQNet(g, inputShape, numActions, arch, noisy, sigmaInit, body,
		nil, seed)
}

// Fwd adds the forward pass of the network on the observations x to
// the computational graph. Expected heads output a (batch, actions)
// node, distributional heads a (batch, actions, support) node.
func (q *QNet) Fwd(x *G.Node) (*G.Node, error) {
	features, err := q.body.Fwd(x)
	if err != nil {
		return nil, fmt.Errorf("fwd: body: %w", err)
	}
	batch := x.Shape()[0]

	adv, err := q.adv.fwd(features)
	if err != nil {
		return nil, fmt.Errorf("fwd: advantage stream: %w", err)
	}

	var val *G.Node
	if q.arch.Dueling {
		if val, err = q.val.fwd(features); err != nil {
			return nil, fmt.Errorf("fwd: value stream: %w", err)
		}
	}

	if !q.arch.distributional() {
		if !q.arch.Dueling {
			return adv, nil
		}
		out, err := duelExpected(adv, val)
		if err != nil {
			return nil, fmt.Errorf("fwd: %w", err)
		}
		return out, nil
	}

	out, err := G.Reshape(adv, tensor.Shape{batch, q.numActions,
		q.arch.Support})
	if err != nil {
		return nil, fmt.Errorf("fwd: could not reshape advantages: %w", err)
	}
	if q.arch.Dueling {
		val, err = G.Reshape(val, tensor.Shape{batch, 1, q.arch.Support})
		if err != nil {
			return nil, fmt.Errorf("fwd: could not reshape values: %w", err)
		}
		if out, err = duelDistributional(out, val); err != nil {
			return nil, fmt.Errorf("fwd: %w", err)
		}
	}

	if q.arch.Distribution == Categorical {
		if out, err = op.SoftMax(out, 2); err != nil {
			return nil, fmt.Errorf("fwd: could not normalize atoms: %w", err)
		}
	}
	return out, nil
}

// duelExpected computes val + adv - mean(adv) for advantages adv of
// shape (batch, actions) and values val of shape (batch, 1). The mean
// is taken over every element of adv.
func duelExpected(adv, val *G.Node) (*G.Node, error) {
	q, err := G.BroadcastAdd(adv, val, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("duelExpected: could not add value: %w", err)
	}
	mean, err := G.Mean(adv)
	if err != nil {
		return nil, fmt.Errorf("duelExpected: %w", err)
	}
	return G.Sub(q, mean)
}

// duelDistributional computes val + adv - mean(adv) for advantages adv
// of shape (batch, actions, support) and values val of shape
// (batch, 1, support). The mean is taken over the actions axis.
func duelDistributional(adv, val *G.Node) (*G.Node, error) {
	mean, err := G.Mean(adv, 1)
	if err != nil {
		return nil, fmt.Errorf("duelDistributional: %w", err)
	}
	if mean, err = op.KeepDims(mean, adv.Shape(), 1); err != nil {
		return nil, fmt.Errorf("duelDistributional: %w", err)
	}

	q, err := G.BroadcastAdd(adv, val, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("duelDistributional: could not add value: %w",
			err)
	}
	return G.BroadcastSub(q, mean, nil, []byte{1})
}

// OutputShape returns the shape of the output of Fwd for a batch of
// batch observations
func (q *QNet) OutputShape(batch int) []int {
	if q.arch.distributional() {
		return []int{batch, q.numActions, q.arch.Support}
	}
	return []int{batch, q.numActions}
}

// Architecture returns the architecture of the head
func (q *QNet) Architecture() Architecture {
	return q.arch
}

// NumActions returns the number of actions
func (q *QNet) NumActions() int {
	return q.numActions
}

// Noisy returns whether the network uses noisy linear layers
func (q *QNet) Noisy() bool {
	return q.noisy
}

// InputShape returns the shape of a single observation
func (q *QNet) InputShape() []int {
	return q.body.InputShape()
}

// Graph returns the computational graph of the network
func (q *QNet) Graph() *G.ExprGraph {
	return q.g
}

// SampleNoise resamples the noise of the body, then the advantage
// stream, then the value stream. It is a no-op if the network is not
// noisy.
func (q *QNet) SampleNoise() error {
	if !q.noisy {
		return nil
	}
	if err := q.body.SampleNoise(); err != nil {
		return fmt.Errorf("sampleNoise: body: %w", err)
	}
	if err := q.adv.sampleNoise(); err != nil {
		return fmt.Errorf("sampleNoise: advantage stream: %w", err)
	}
	if q.val != nil {
		if err := q.val.sampleNoise(); err != nil {
			return fmt.Errorf("sampleNoise: value stream: %w", err)
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the network
func (q *QNet) Learnables() G.Nodes {
	// Lazy instantiation
	if q.learnables == nil {
		learnables := append(G.Nodes{}, q.body.Learnables()...)
		learnables = append(learnables, q.adv.learnables()...)
		learnables = append(learnables, q.val.learnables()...)
		q.learnables = learnables
	}
	return q.learnables
}

// Model returns the learnable nodes with their gradients
func (q *QNet) Model() []G.ValueGrad {
	// Lazy instantiation
	if q.model == nil {
		q.model = model(q.Learnables())
	}
	return q.model
}
