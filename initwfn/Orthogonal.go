package initwfn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ReLUGain is the recommended orthogonal gain for layers followed by
// a ReLU.
var ReLUGain = math.Sqrt2

// OrthogonalConfig implements a configuration of the orthogonal
// initialization algorithm. Weights of shape (rows, d1, d2, ...) are
// treated as a (rows, d1*d2*...) matrix whose rows or columns,
// whichever are fewer, are orthonormal and then scaled by Gain. A zero
// Seed seeds the weights from the global source of golang.org/x/exp/rand,
// so they differ between initializers.
type OrthogonalConfig struct {
	Gain float64
	Seed uint64
}

// NewOrthogonal returns a new orthogonal weight initializer
func NewOrthogonal(gain float64, seed uint64) (*InitWFn, error) {
	config := OrthogonalConfig{
		Gain: gain,
		Seed: seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (o OrthogonalConfig) Type() Type {
	return Orthogonal
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (o OrthogonalConfig) Create() G.InitWFn {
	seed := o.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	src := rand.NewSource(seed)

	return func(dt tensor.Dtype, s ...int) interface{} {
		values := orthogonal(src, o.Gain, s...)
		switch dt {
		case tensor.Float64:
			return values
		case tensor.Float32:
			return toFloat32(values)
		default:
			panic(fmt.Sprintf("orthogonal: dtype %v not supported", dt))
		}
	}
}

// orthogonal returns a row-major (rows, cols) semi-orthogonal matrix
// scaled by gain, where rows = s[0] and cols is the product of the
// remaining dimensions.
func orthogonal(src rand.Source, gain float64, s ...int) []float64 {
	rows, cols := 1, 1
	if len(s) > 0 {
		rows = s[0]
	}
	for _, d := range s[1:] {
		cols *= d
	}

	// QR needs a tall matrix
	m, n := rows, cols
	transpose := rows < cols
	if transpose {
		m, n = cols, rows
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	data := make([]float64, m*n)
	for i := range data {
		data[i] = normal.Rand()
	}

	var qr mat.QR
	qr.Factorize(mat.NewDense(m, n, data))

	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	out := make([]float64, rows*cols)
	for j := 0; j < n; j++ {
		// Make the decomposition unique by forcing diag(R) > 0
		sign := 1.0
		if r.At(j, j) < 0 {
			sign = -1.0
		}

		for i := 0; i < m; i++ {
			v := gain * sign * q.At(i, j)
			if transpose {
				out[j*cols+i] = v
			} else {
				out[i*cols+j] = v
			}
		}
	}
	return out
}
