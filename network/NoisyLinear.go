package network

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/rlnet/initwfn"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// NoisyLinear implements a linear layer with factorized Gaussian
// parameter noise:
//
//	W = μ_W + σ_W ⊙ ε_W,	b = μ_b + σ_b ⊙ ε_b
//
// where ε_W = f(ε_in) ⊗ f(ε_out), ε_b = f(ε_out), f(x) = sign(x)√|x|
// and ε_in, ε_out are standard normal vectors of size In() and Out().
//
// The noise is only resampled by SampleNoise, never by a forward pass,
// so repeated runs of a graph see the same noise until SampleNoise is
// called again.
type NoisyLinear struct {
	in, out int

	weightMu, weightSigma, weightEps *G.Node
	biasMu, biasSigma, biasEps       *G.Node

	// Noisy weights and bias used in the forward pass
	weights, bias *G.Node

	noise distuv.Normal
}

// NewNoisyLinear returns a new NoisyLinear layer. Means are drawn
// uniformly from [-1/√in, 1/√in] and standard deviations are set to
// sigmaInit/√in. Noise is sampled once before returning.
func NewNoisyLinear(g *G.ExprGraph, in, out int, sigmaInit float64,
	name string, rng *rand.Rand) (*NoisyLinear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("newNoisyLinear: %w: layer %v must have "+
			"positive sizes, have (%v, %v)", ErrConfig, name, in, out)
	}
	if sigmaInit < 0 {
		return nil, fmt.Errorf("newNoisyLinear: %w: sigmaInit must be "+
			"non-negative, have %v", ErrConfig, sigmaInit)
	}

	muInit, err := initwfn.NewFanInUniform(in, rng.Uint64())
	if err != nil {
		return nil, fmt.Errorf("newNoisyLinear: %w", err)
	}
	sigma, err := initwfn.NewConstant(sigmaInit / math.Sqrt(float64(in)))
	if err != nil {
		return nil, fmt.Errorf("newNoisyLinear: %w", err)
	}

	n := &NoisyLinear{
		in:          in,
		out:         out,
		weightMu:    newParam(g, name+"_W_mu", muInit.InitWFn(), in, out),
		weightSigma: newParam(g, name+"_W_sigma", sigma.InitWFn(), in, out),
		weightEps:   newParam(g, name+"_W_eps", G.Zeroes(), in, out),
		biasMu:      newParam(g, name+"_b_mu", muInit.InitWFn(), 1, out),
		biasSigma:   newParam(g, name+"_b_sigma", sigma.InitWFn(), 1, out),
		biasEps:     newParam(g, name+"_b_eps", G.Zeroes(), 1, out),
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(rng.Uint64()),
		},
	}

	if n.weights, err = perturb(n.weightMu, n.weightSigma,
		n.weightEps); err != nil {
		return nil, fmt.Errorf("newNoisyLinear: weights: %w", err)
	}
	if n.bias, err = perturb(n.biasMu, n.biasSigma, n.biasEps); err != nil {
		return nil, fmt.Errorf("newNoisyLinear: bias: %w", err)
	}

	if err := n.SampleNoise(); err != nil {
		return nil, fmt.Errorf("newNoisyLinear: %w", err)
	}
	return n, nil
}

// perturb computes mu + sigma ⊙ eps
func perturb(mu, sigma, eps *G.Node) (*G.Node, error) {
	scaled, err := G.HadamardProd(sigma, eps)
	if err != nil {
		return nil, err
	}
	return G.Add(mu, scaled)
}

// Fwd adds the forward pass of the layer to the computational graph
func (n *NoisyLinear) Fwd(x *G.Node) (*G.Node, error) {
	if err := checkLinearInput(x, n.in); err != nil {
		return nil, err
	}
	return affine(x, n.weights, n.bias)
}

// SampleNoise draws new factorized noise and stores it in the noise
// nodes of the layer.
func (n *NoisyLinear) SampleNoise() error {
	epsIn := n.scaledNoise(n.in)
	epsOut := n.scaledNoise(n.out)

	weightEps := make([]float64, n.in*n.out)
	for i, ei := range epsIn {
		for j, ej := range epsOut {
			weightEps[i*n.out+j] = ei * ej
		}
	}

	if err := setValue(n.weightEps, weightEps); err != nil {
		return fmt.Errorf("sampleNoise: %w", err)
	}
	if err := setValue(n.biasEps, epsOut); err != nil {
		return fmt.Errorf("sampleNoise: %w", err)
	}
	return nil
}

// scaledNoise returns size samples of f(x) = sign(x)√|x| for standard
// normal x
func (n *NoisyLinear) scaledNoise(size int) []float64 {
	eps := make([]float64, size)
	for i := range eps {
		x := n.noise.Rand()
		eps[i] = math.Copysign(math.Sqrt(math.Abs(x)), x)
	}
	return eps
}

// Noisy returns true
func (n *NoisyLinear) Noisy() bool {
	return true
}

// Weights returns the weight means
func (n *NoisyLinear) Weights() *G.Node {
	return n.weightMu
}

// Bias returns the bias means
func (n *NoisyLinear) Bias() *G.Node {
	return n.biasMu
}

// Learnables returns the means and standard deviations of the layer.
// Noise nodes are not learnable.
func (n *NoisyLinear) Learnables() G.Nodes {
	return G.Nodes{n.weightMu, n.weightSigma, n.biasMu, n.biasSigma}
}

// In returns the number of inputs to the layer
func (n *NoisyLinear) In() int {
	return n.in
}

// Out returns the number of outputs of the layer
func (n *NoisyLinear) Out() int {
	return n.out
}
