package network

import (
	"errors"
	"testing"

	G "gorgonia.org/gorgonia"
)

func newTestDQN(t *testing.T, seed uint64) *QNet {
	t.Helper()
	q, err := NewDQN(G.NewGraph(), []int{6}, 2, false, 0.5, nil, seed)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestNumParams(t *testing.T) {
	q := newTestDQN(t, 1)

	// body: 6 -> 128, advantage stream: 128 -> 512 -> 2
	want := (6*128 + 128) + (128*512 + 512) + (512*2 + 2)
	if have := NumParams(q); have != want {
		t.Errorf("params: want(%v) have(%v)", want, have)
	}

	g := G.NewGraph()
	d, err := NewDuelingDQN(g, []int{6}, 2, true, 0.5, nil, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Noisy layers have a mean and standard deviation per parameter and
	// a dueling head adds a value stream: 128 -> 512 -> 1
	want = 2 * (want + (128*512 + 512) + (512*1 + 1))
	if have := NumParams(d); have != want {
		t.Errorf("noisy dueling params: want(%v) have(%v)", want, have)
	}
}

func TestSet(t *testing.T) {
	dest, source := newTestDQN(t, 1), newTestDQN(t, 2)

	if err := Set(dest, source); err != nil {
		t.Fatal(err)
	}
	sourceNodes := source.Learnables()
	for i, node := range dest.Learnables() {
		checkClose(t, valuesOf(t, sourceNodes[i]), valuesOf(t, node), 0)
	}

	// The copied weights are not shared with source
	if err := Polyak(source, newTestDQN(t, 3), 1); err != nil {
		t.Fatal(err)
	}
	if valuesOf(t, dest.Learnables()[0])[0] ==
		valuesOf(t, source.Learnables()[0])[0] {
		t.Errorf("set: destination shares weights with source")
	}
}

func TestPolyak(t *testing.T) {
	tau := 0.25
	dest, source := newTestDQN(t, 1), newTestDQN(t, 2)

	destBefore := make([][]float64, len(dest.Learnables()))
	for i, node := range dest.Learnables() {
		destBefore[i] = valuesOf(t, node)
	}

	if err := Polyak(dest, source, tau); err != nil {
		t.Fatal(err)
	}

	sourceNodes := source.Learnables()
	for i, node := range dest.Learnables() {
		sourceValues := valuesOf(t, sourceNodes[i])
		want := make([]float64, len(sourceValues))
		for j := range want {
			want[j] = (1-tau)*destBefore[i][j] + tau*sourceValues[j]
		}
		checkClose(t, want, valuesOf(t, node), 1e-12)
	}
}

func TestIncompatibleNetworks(t *testing.T) {
	g := G.NewGraph()
	dueling, err := NewDuelingDQN(g, []int{6}, 2, false, 0.5, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	g = G.NewGraph()
	wide, err := NewDQN(g, []int{6}, 3, false, 0.5, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	q := newTestDQN(t, 1)

	for _, other := range []Network{dueling, wide} {
		if err := Set(q, other); !errors.Is(err, ErrShape) {
			t.Errorf("set: want ErrShape, have %v", err)
		}
		if err := Polyak(q, other, 0.5); !errors.Is(err, ErrShape) {
			t.Errorf("polyak: want ErrShape, have %v", err)
		}
	}
}
