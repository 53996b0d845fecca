package initwfn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// Uniform implements a configuration of a weight initializer that
// draws weights from a uniform distribution. A zero Seed draws from
// Gorgonia's global source.
type UniformConfig struct {
	Low, High float64
	Seed      uint64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64, seed uint64) (*InitWFn, error) {
	config := UniformConfig{
		Low:  low,
		High: high,
		Seed: seed,
	}

	return newInitWFn(config)
}

// NewFanInUniform returns a uniform weight initializer over
// [-1/√fanIn, 1/√fanIn], the default initialization of linear,
// convolutional and recurrent layers.
func NewFanInUniform(fanIn int, seed uint64) (*InitWFn, error) {
	bound := 1 / math.Sqrt(float64(fanIn))
	return NewUniform(-bound, bound, seed)
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (u UniformConfig) Type() Type {
	return Uniform
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (u UniformConfig) Create() G.InitWFn {
	if u.Seed == 0 {
		return G.Uniform(u.Low, u.High)
	}

	dist := distuv.Uniform{Min: u.Low, Max: u.High,
		Src: rand.NewSource(u.Seed)}
	return sampler(dist.Rand)
}
