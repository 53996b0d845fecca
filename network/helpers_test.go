package network

import (
	"math"
	"testing"

	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// runGraph executes all nodes of g once
func runGraph(t testing.TB, g *G.ExprGraph) {
	t.Helper()
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
}

// valuesOf returns a copy of the value of n
func valuesOf(t testing.TB, n *G.Node) []float64 {
	t.Helper()
	values, err := tensorutils.Float64s(n.Value())
	if err != nil {
		t.Fatal(err)
	}
	return values
}

// randomValues returns n values drawn uniformly from [-1, 1)
func randomValues(n int, seed uint64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	for i := range values {
		values[i] = 2*rng.Float64() - 1
	}
	return values
}

// randomNode returns a new input node of the given shape filled with
// random values
func randomNode(t testing.TB, g *G.ExprGraph, name string, seed uint64,
	shape ...int) *G.Node {
	t.Helper()
	n, err := tensorutils.NewNode(g, name, randomValues(tensorutils.Prod(shape),
		seed), shape...)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// constNode returns a new input node of the given shape filled with v
func constNode(t testing.TB, g *G.ExprGraph, name string, v float64,
	shape ...int) *G.Node {
	t.Helper()
	data := make([]float64, tensorutils.Prod(shape))
	for i := range data {
		data[i] = v
	}
	n, err := tensorutils.NewNode(g, name, data, shape...)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// checkShape fails the test if n does not have shape want
func checkShape(t testing.TB, n *G.Node, want ...int) {
	t.Helper()
	if !tensorutils.Equal(n.Shape(), want) {
		t.Errorf("shape: \n\twant(%v) \n\thave(%v)", want, n.Shape())
	}
}

// checkFinite fails the test if any value is NaN or infinite
func checkFinite(t testing.TB, values []float64) {
	t.Helper()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("value %v is not finite: %v", i, v)
		}
	}
}

// checkClose fails the test if want and have differ by more than tol
// in any element
func checkClose(t testing.TB, want, have []float64, tol float64) {
	t.Helper()
	if len(want) != len(have) {
		t.Fatalf("length: want(%v) have(%v)", len(want), len(have))
	}
	if !floats.EqualApprox(want, have, tol) {
		t.Errorf("values differ by more than %v \n\twant(%v) \n\thave(%v)",
			tol, want, have)
	}
}

// matOf returns the value of the matrix node n as a *mat.Dense
func matOf(t testing.TB, n *G.Node) *mat.Dense {
	t.Helper()
	if !n.IsMatrix() {
		t.Fatalf("node %v with shape %v is not a matrix", n.Name(), n.Shape())
	}
	shape := n.Shape()
	return mat.NewDense(shape[0], shape[1], valuesOf(t, n))
}

// affineNumeric computes x·w + b with b broadcast over rows
func affineNumeric(x, w, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(x, w)
	rows, cols := out.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, out.At(i, j)+b.At(0, j))
		}
	}
	return &out
}

// linearNumeric computes the output of the plain linear layer l
func linearNumeric(t testing.TB, l Linear, x *mat.Dense) *mat.Dense {
	t.Helper()
	if l.Noisy() {
		t.Fatal("linearNumeric: layer must not be noisy")
	}
	return affineNumeric(x, matOf(t, l.Weights()), matOf(t, l.Bias()))
}

// applyNumeric applies f to every element of x
func applyNumeric(x *mat.Dense, f func(float64) float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, x)
	return &out
}

func reluNumeric(v float64) float64 { return math.Max(v, 0) }

func sigmoidNumeric(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

// gruNumeric computes a step of the gruCell c
func gruNumeric(t testing.TB, c *gruCell, x, h *mat.Dense) *mat.Dense {
	t.Helper()
	gate := func(wi, bi, wh, bh *G.Node) *mat.Dense {
		var sum mat.Dense
		sum.Add(affineNumeric(x, matOf(t, wi), matOf(t, bi)),
			affineNumeric(h, matOf(t, wh), matOf(t, bh)))
		return applyNumeric(&sum, sigmoidNumeric)
	}
	r := gate(c.wir, c.bir, c.whr, c.bhr)
	z := gate(c.wiz, c.biz, c.whz, c.bhz)

	var n mat.Dense
	n.MulElem(r, affineNumeric(h, matOf(t, c.whn), matOf(t, c.bhn)))
	n.Add(&n, affineNumeric(x, matOf(t, c.win), matOf(t, c.bin)))
	tanhN := applyNumeric(&n, math.Tanh)

	rows, cols := h.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			zij := z.At(i, j)
			out.Set(i, j, (1-zij)*tanhN.At(i, j)+zij*h.At(i, j))
		}
	}
	return out
}

// simpleBodyNumeric computes the output of a plain SimpleBody on
// flattened observations x
func simpleBodyNumeric(t testing.TB, b Body, x *mat.Dense) *mat.Dense {
	t.Helper()
	s, ok := b.(*SimpleBody)
	if !ok {
		t.Fatalf("simpleBodyNumeric: body is %T", b)
	}
	return applyNumeric(linearNumeric(t, s.layer, x), reluNumeric)
}

// rawRows returns the row-major data of x
func rawRows(x mat.Matrix) []float64 {
	rows, cols := x.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data = append(data, x.At(i, j))
		}
	}
	return data
}

// letValues sets the value of the input node n
func letValues(t testing.TB, n *G.Node, values []float64) {
	t.Helper()
	if err := setValue(n, values); err != nil {
		t.Fatal(err)
	}
}
