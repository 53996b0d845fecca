// Package network implements value-based and actor-critic neural
// network architectures as Gorgonia computational graphs.
package network

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network is implemented by every architecture in this package. Each
// architecture also has its own Fwd method, since their inputs and
// outputs differ.
type Network interface {
	Graph() *G.ExprGraph
	Learnables() G.Nodes
	Model() []G.ValueGrad

	// SampleNoise resamples the noise of all noisy layers and is a
	// no-op if the network has none
	SampleNoise() error
}

// model returns the learnables as ValueGrads
func model(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(learnables))
	for _, node := range learnables {
		model = append(model, node)
	}
	return model
}

// NumParams returns the number of scalar learnable parameters of net
func NumParams(net Network) int {
	params := 0
	for _, node := range net.Learnables() {
		params += tensorutils.Prod(node.Shape())
	}
	return params
}

// checkCompatible returns an error if the learnables of dest and
// source differ in number or shape
func checkCompatible(dest, source Network) error {
	destNodes, sourceNodes := dest.Learnables(), source.Learnables()
	if len(destNodes) != len(sourceNodes) {
		return fmt.Errorf("%w: networks have different numbers of "+
			"learnables \n\twant(%v) \n\thave(%v)", ErrShape, len(destNodes),
			len(sourceNodes))
	}
	for i := range destNodes {
		if !destNodes[i].Shape().Eq(sourceNodes[i].Shape()) {
			return fmt.Errorf("%w: learnable %v \n\twant(%v) \n\thave(%v)",
				ErrShape, i, destNodes[i].Shape(), sourceNodes[i].Shape())
		}
	}
	return nil
}

// Set sets the weights of dest to be equal to the weights of source
func Set(dest, source Network) error {
	if err := checkCompatible(dest, source); err != nil {
		return fmt.Errorf("set: %w", err)
	}

	sourceNodes := source.Learnables()
	for i, destLearnable := range dest.Learnables() {
		sourceWeights, ok := sourceNodes[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("set: learnable %v has no dense value", i)
		}
		if err := G.Let(destLearnable, sourceWeights.Clone()); err != nil {
			return fmt.Errorf("set: %w", err)
		}
	}
	return nil
}

// Polyak sets the weights of dest to be a polyak average between its
// existing weights and the weights of source:
//
//	dest ← (1 - tau) · dest + tau · source
func Polyak(dest, source Network, tau float64) error {
	if err := checkCompatible(dest, source); err != nil {
		return fmt.Errorf("polyak: %w", err)
	}

	sourceNodes := source.Learnables()
	for i, node := range dest.Learnables() {
		weights, ok := node.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("polyak: learnable %v has no dense value", i)
		}
		sourceWeights, ok := sourceNodes[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("polyak: learnable %v has no dense value", i)
		}

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return fmt.Errorf("polyak: %w", err)
		}
		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return fmt.Errorf("polyak: %w", err)
		}

		newWeights, err := weights.Add(sourceWeights)
		if err != nil {
			return fmt.Errorf("polyak: %w", err)
		}
		if err := G.Let(node, newWeights); err != nil {
			return fmt.Errorf("polyak: %w", err)
		}
	}
	return nil
}
