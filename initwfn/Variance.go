package initwfn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm, drawing from U(±Gain·√(6/(fanIn+fanOut))).
// A zero Seed draws from Gorgonia's global source.
type GlorotUConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64, seed uint64) (*InitWFn, error) {
	return newInitWFn(GlorotUConfig{Gain: gain, Seed: seed})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotUConfig) Create() G.InitWFn {
	if g.Seed == 0 {
		return G.GlorotU(g.Gain)
	}
	return scaled(g.Seed, func(fanIn, fanOut float64,
		src rand.Source) func() float64 {
		limit := g.Gain * math.Sqrt(6/(fanIn+fanOut))
		return distuv.Uniform{Min: -limit, Max: limit, Src: src}.Rand
	})
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm, drawing from N(0, Gain²·2/(fanIn+fanOut)).
// A zero Seed draws from Gorgonia's global source.
type GlorotNConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotN returns a new Glorot Normal weight initializer.
func NewGlorotN(gain float64, seed uint64) (*InitWFn, error) {
	return newInitWFn(GlorotNConfig{Gain: gain, Seed: seed})
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotNConfig) Create() G.InitWFn {
	if g.Seed == 0 {
		return G.GlorotN(g.Gain)
	}
	return scaled(g.Seed, func(fanIn, fanOut float64,
		src rand.Source) func() float64 {
		sigma := g.Gain * math.Sqrt(2/(fanIn+fanOut))
		return distuv.Normal{Sigma: sigma, Src: src}.Rand
	})
}

// HeUConfig implements a configuration of the He Uniform
// initialization algorithm, drawing from U(±Gain·√(3/fanIn)).
// A zero Seed draws from Gorgonia's global source.
type HeUConfig struct {
	Gain float64
	Seed uint64
}

// NewHeU returns a new He Uniform weight initializer
func NewHeU(gain float64, seed uint64) (*InitWFn, error) {
	return newInitWFn(HeUConfig{Gain: gain, Seed: seed})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (h HeUConfig) Type() Type {
	return HeU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (h HeUConfig) Create() G.InitWFn {
	if h.Seed == 0 {
		return G.HeU(h.Gain)
	}
	return scaled(h.Seed, func(fanIn, _ float64,
		src rand.Source) func() float64 {
		limit := h.Gain * math.Sqrt(3/fanIn)
		return distuv.Uniform{Min: -limit, Max: limit, Src: src}.Rand
	})
}

// HeNConfig implements a configuration of the He Normal initialization
// algorithm, drawing from N(0, Gain²/fanIn). A zero Seed draws from
// Gorgonia's global source.
type HeNConfig struct {
	Gain float64
	Seed uint64
}

// NewHeN returns a new He Normal weight initializer
func NewHeN(gain float64, seed uint64) (*InitWFn, error) {
	return newInitWFn(HeNConfig{Gain: gain, Seed: seed})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (h HeNConfig) Type() Type {
	return HeN
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (h HeNConfig) Create() G.InitWFn {
	if h.Seed == 0 {
		return G.HeN(h.Gain)
	}
	return scaled(h.Seed, func(fanIn, _ float64,
		src rand.Source) func() float64 {
		return distuv.Normal{Sigma: h.Gain / math.Sqrt(fanIn), Src: src}.Rand
	})
}

// fans returns the fan in and fan out of weights of shape s. Matrices
// are stored as (in, out) and higher rank weights, such as convolution
// filters, as (out, in, receptive field...).
func fans(s ...int) (fanIn, fanOut float64) {
	switch len(s) {
	case 0:
		return 1, 1
	case 1:
		return float64(s[0]), float64(s[0])
	case 2:
		return float64(s[0]), float64(s[1])
	default:
		receptive := tensor.Shape(s[2:]).TotalSize()
		return float64(s[1] * receptive), float64(s[0] * receptive)
	}
}

// scaled returns an InitWFn which draws each set of weights with the
// sampler that dist returns for their fans. All draws share a single
// source seeded with seed.
func scaled(seed uint64,
	dist func(fanIn, fanOut float64, src rand.Source) func() float64) G.InitWFn {
	src := rand.NewSource(seed)

	return func(dt tensor.Dtype, s ...int) interface{} {
		fanIn, fanOut := fans(s...)
		return sampler(dist(fanIn, fanOut, src))(dt, s...)
	}
}
