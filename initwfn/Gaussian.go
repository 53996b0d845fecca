package initwfn

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// Gaussian implements a configuration of a weight initializer that
// draws weights from a gaussian distribution. A zero Seed draws from
// Gorgonia's global source.
type GaussianConfig struct {
	Mean, StdDev float64
	Seed         uint64
}

// NewGaussian returns a new gaussian weight initializer
func NewGaussian(mean, stddev float64, seed uint64) (*InitWFn, error) {
	config := GaussianConfig{
		Mean:   mean,
		StdDev: stddev,
		Seed:   seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (u GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (u GaussianConfig) Create() G.InitWFn {
	if u.Seed == 0 {
		return G.Gaussian(u.Mean, u.StdDev)
	}

	dist := distuv.Normal{Mu: u.Mean, Sigma: u.StdDev,
		Src: rand.NewSource(u.Seed)}
	return sampler(dist.Rand)
}
