package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// sampler returns a Gorgonia InitWFn which fills weights with
// successive draws from rnd.
func sampler(rnd func() float64) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		values := make([]float64, tensor.Shape(s).TotalSize())
		for i := range values {
			values[i] = rnd()
		}

		switch dt {
		case tensor.Float64:
			return values
		case tensor.Float32:
			return toFloat32(values)
		default:
			panic(fmt.Sprintf("sampler: dtype %v not supported", dt))
		}
	}
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
