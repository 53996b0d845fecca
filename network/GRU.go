package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/initwfn"
	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// gruCell implements a gated recurrent unit with reset, update and new
// gates r, z and n:
//
//	r = σ(x·W_ir + b_ir + h·W_hr + b_hr)
//	z = σ(x·W_iz + b_iz + h·W_hz + b_hz)
//	n = tanh(x·W_in + b_in + r ⊙ (h·W_hn + b_hn))
//	h' = (1 - z) ⊙ n + z ⊙ h
type gruCell struct {
	in, hidden int

	// Input weights (in, hidden) and hidden weights (hidden, hidden)
	wir, wiz, win *G.Node
	whr, whz, whn *G.Node

	// Biases (1, hidden)
	bir, biz, bin *G.Node
	bhr, bhz, bhn *G.Node

	// Gate and candidate state activations
	gateAct, stateAct *Activation
}

// newGRUCell returns a new gruCell with all weights and biases drawn
// from U(±1/√hidden)
func newGRUCell(g *G.ExprGraph, in, hidden int, name string,
	rng *rand.Rand) (*gruCell, error) {
	if in <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("newGRUCell: %w: cell %v must have positive "+
			"sizes, have (%v, %v)", ErrConfig, name, in, hidden)
	}

	u, err := initwfn.NewFanInUniform(hidden, rng.Uint64())
	if err != nil {
		return nil, fmt.Errorf("newGRUCell: %w", err)
	}
	init := u.InitWFn()

	return &gruCell{
		in:       in,
		hidden:   hidden,
		gateAct:  Sigmoid(),
		stateAct: TanH(),
		wir:      newParam(g, name+"_W_ir", init, in, hidden),
		wiz:      newParam(g, name+"_W_iz", init, in, hidden),
		win:      newParam(g, name+"_W_in", init, in, hidden),
		whr:      newParam(g, name+"_W_hr", init, hidden, hidden),
		whz:      newParam(g, name+"_W_hz", init, hidden, hidden),
		whn:      newParam(g, name+"_W_hn", init, hidden, hidden),
		bir:      newParam(g, name+"_b_ir", init, 1, hidden),
		biz:      newParam(g, name+"_b_iz", init, 1, hidden),
		bin:      newParam(g, name+"_b_in", init, 1, hidden),
		bhr:      newParam(g, name+"_b_hr", init, 1, hidden),
		bhz:      newParam(g, name+"_b_hz", init, 1, hidden),
		bhn:      newParam(g, name+"_b_hn", init, 1, hidden),
	}, nil
}

// initOrthogonal overwrites the input and hidden weights with stacked
// orthogonal matrices of shapes (3·hidden, in) and (3·hidden, hidden),
// split row-wise into the r, z and n gates, and sets all biases to zero.
func (c *gruCell) initOrthogonal(gain float64, seed uint64) error {
	ortho, err := initwfn.NewOrthogonal(gain, seed)
	if err != nil {
		return fmt.Errorf("initOrthogonal: %w", err)
	}

	blocks := []struct {
		nodes []*G.Node
		cols  int
	}{
		{[]*G.Node{c.wir, c.wiz, c.win}, c.in},
		{[]*G.Node{c.whr, c.whz, c.whn}, c.hidden},
	}
	for _, block := range blocks {
		stacked, err := ortho.Values(3*c.hidden, block.cols)
		if err != nil {
			return fmt.Errorf("initOrthogonal: %w", err)
		}
		for gate, node := range block.nodes {
			if err := setValue(node, gateBlock(stacked, gate, c.hidden,
				block.cols)); err != nil {
				return fmt.Errorf("initOrthogonal: %w", err)
			}
		}
	}

	zeroes, err := initwfn.NewZeroes()
	if err != nil {
		return fmt.Errorf("initOrthogonal: %w", err)
	}
	for _, b := range []*G.Node{c.bir, c.biz, c.bin, c.bhr, c.bhz, c.bhn} {
		if err := setParam(b, zeroes); err != nil {
			return fmt.Errorf("initOrthogonal: %w", err)
		}
	}
	return nil
}

// gateBlock returns the transpose of rows [gate·hidden, (gate+1)·hidden)
// of the row-major (3·hidden, cols) matrix stacked, as a row-major
// (cols, hidden) matrix
func gateBlock(stacked []float64, gate, hidden, cols int) []float64 {
	block := stacked[gate*hidden*cols : (gate+1)*hidden*cols]
	return tensorutils.Transpose(block, hidden, cols)
}

// step adds a single update of the hidden state h given the input x to
// the computational graph
func (c *gruCell) step(x, h *G.Node) (*G.Node, error) {
	if err := checkLinearInput(x, c.in); err != nil {
		return nil, fmt.Errorf("step: input: %w", err)
	}
	if err := checkLinearInput(h, c.hidden); err != nil {
		return nil, fmt.Errorf("step: hidden state: %w", err)
	}
	if x.Shape()[0] != h.Shape()[0] {
		return nil, fmt.Errorf("step: %w: input batch %v does not match "+
			"hidden state batch %v", ErrShape, x.Shape()[0], h.Shape()[0])
	}

	r, err := c.gate(x, h, c.wir, c.bir, c.whr, c.bhr)
	if err != nil {
		return nil, fmt.Errorf("step: reset gate: %w", err)
	}
	z, err := c.gate(x, h, c.wiz, c.biz, c.whz, c.bhz)
	if err != nil {
		return nil, fmt.Errorf("step: update gate: %w", err)
	}

	xn, err := affine(x, c.win, c.bin)
	if err != nil {
		return nil, fmt.Errorf("step: new gate: %w", err)
	}
	hn, err := affine(h, c.whn, c.bhn)
	if err != nil {
		return nil, fmt.Errorf("step: new gate: %w", err)
	}
	hn, err = G.HadamardProd(r, hn)
	if err != nil {
		return nil, fmt.Errorf("step: new gate: %w", err)
	}
	n, err := G.Add(xn, hn)
	if err != nil {
		return nil, fmt.Errorf("step: new gate: %w", err)
	}
	if n, err = c.stateAct.fwd(n); err != nil {
		return nil, fmt.Errorf("step: new gate: %w", err)
	}

	// h' = n + z ⊙ (h - n)
	diff, err := G.Sub(h, n)
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	if diff, err = G.HadamardProd(z, diff); err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	return G.Add(n, diff)
}

// gate computes σ(x·wi + bi + h·wh + bh)
func (c *gruCell) gate(x, h, wi, bi, wh, bh *G.Node) (*G.Node, error) {
	xi, err := affine(x, wi, bi)
	if err != nil {
		return nil, err
	}
	hh, err := affine(h, wh, bh)
	if err != nil {
		return nil, err
	}
	sum, err := G.Add(xi, hh)
	if err != nil {
		return nil, err
	}
	return c.gateAct.fwd(sum)
}

// run steps the cell over the inputs in order, or in reverse order if
// reverse is true, starting from hidden state h. The returned outputs
// are indexed like inputs, so outputs[t] is the hidden state after
// processing inputs[t].
func (c *gruCell) run(inputs []*G.Node, h *G.Node,
	reverse bool) ([]*G.Node, *G.Node, error) {
	outputs := make([]*G.Node, len(inputs))
	var err error
	for i := range inputs {
		t := i
		if reverse {
			t = len(inputs) - 1 - i
		}
		if h, err = c.step(inputs[t], h); err != nil {
			return nil, nil, fmt.Errorf("run: timestep %v: %w", t, err)
		}
		outputs[t] = h
	}
	return outputs, h, nil
}

func (c *gruCell) learnables() G.Nodes {
	return G.Nodes{
		c.wir, c.wiz, c.win, c.whr, c.whz, c.whn,
		c.bir, c.biz, c.bin, c.bhr, c.bhz, c.bhn,
	}
}
