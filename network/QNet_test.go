package network

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// qnetConstructor builds a QNet with the given support, which is
// ignored by expected heads
type qnetConstructor func(g *G.ExprGraph, inputShape []int, numActions,
	support int, noisy bool, seed uint64) (*QNet, error)

func expected(f func(*G.ExprGraph, []int, int, bool, float64, BodyFunc,
	uint64) (*QNet, error)) qnetConstructor {
	return func(g *G.ExprGraph, inputShape []int, numActions, _ int,
		noisy bool, seed uint64) (*QNet, error) {
		return f(g, inputShape, numActions, noisy, 0.5, nil, seed)
	}
}

func distributional(f func(*G.ExprGraph, []int, int, int, bool, float64,
	BodyFunc, uint64) (*QNet, error)) qnetConstructor {
	return func(g *G.ExprGraph, inputShape []int, numActions, support int,
		noisy bool, seed uint64) (*QNet, error) {
		return f(g, inputShape, numActions, support, noisy, 0.5, nil, seed)
	}
}

var qnetConstructors = []struct {
	name   string
	create qnetConstructor
	arch   Architecture
}{
	{"DQN", expected(NewDQN), Architecture{}},
	{"DuelingDQN", expected(NewDuelingDQN), Architecture{Dueling: true}},
	{"CategoricalDQN", distributional(NewCategoricalDQN),
		Architecture{Distribution: Categorical}},
	{"CategoricalDuelingDQN", distributional(NewCategoricalDuelingDQN),
		Architecture{Dueling: true, Distribution: Categorical}},
	{"QRDQN", distributional(NewQRDQN),
		Architecture{Distribution: Quantile}},
	{"DuelingQRDQN", distributional(NewDuelingQRDQN),
		Architecture{Dueling: true, Distribution: Quantile}},
}

func TestQNetOutputShapes(t *testing.T) {
	sizes := []struct {
		batch, actions, support int
	}{
		{1, 1, 1},
		{3, 4, 5},
		{7, 2, 11},
	}

	for _, c := range qnetConstructors {
		for _, noisy := range []bool{false, true} {
			for _, size := range sizes {
				name := fmt.Sprintf("%v/noisy=%v/%v", c.name, noisy, size)
				t.Run(name, func(t *testing.T) {
					g := G.NewGraph()
					q, err := c.create(g, []int{6}, size.actions, size.support,
						noisy, 1)
					if err != nil {
						t.Fatal(err)
					}
					if q.Architecture().Dueling != c.arch.Dueling ||
						q.Architecture().Distribution != c.arch.Distribution {
						t.Errorf("architecture: want(%+v) have(%+v)", c.arch,
							q.Architecture())
					}

					x := randomNode(t, g, "x", 2, size.batch, 6)
					out, err := q.Fwd(x)
					if err != nil {
						t.Fatal(err)
					}
					checkShape(t, out, q.OutputShape(size.batch)...)
					if c.arch.Distribution == Expected {
						checkShape(t, out, size.batch, size.actions)
					} else {
						checkShape(t, out, size.batch, size.actions,
							size.support)
					}

					runGraph(t, g)
					checkFinite(t, valuesOf(t, out))
				})
			}
		}
	}
}

func TestCategoricalOutputsAreDistributions(t *testing.T) {
	batch, actions, atoms := 4, 3, 7
	for _, c := range qnetConstructors {
		if c.arch.Distribution != Categorical {
			continue
		}
		t.Run(c.name, func(t *testing.T) {
			g := G.NewGraph()
			q, err := c.create(g, []int{5}, actions, atoms, false, 3)
			if err != nil {
				t.Fatal(err)
			}

			// Large inputs spread the logits
			values := randomValues(batch*5, 4)
			for i := range values {
				values[i] *= 10
			}
			x := constNode(t, g, "x", 0, batch, 5)
			letValues(t, x, values)
			out, err := q.Fwd(x)
			if err != nil {
				t.Fatal(err)
			}
			runGraph(t, g)

			probs := valuesOf(t, out)
			for i := 0; i < batch*actions; i++ {
				dist := probs[i*atoms : (i+1)*atoms]
				for _, p := range dist {
					if p < 0 {
						t.Fatalf("negative probability %v", p)
					}
				}
				if sum := floats.Sum(dist); math.Abs(sum-1) > 1e-5 {
					t.Errorf("distribution %v sums to %v", i, sum)
				}
			}
		})
	}
}

func TestDuelingIsInvariantToAdvantageShift(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	batch, actions, support := 3, 4, 5

	for trial := 0; trial < 5; trial++ {
		shift := 20*rng.Float64() - 10
		seed := uint64(trial)

		t.Run(fmt.Sprintf("expected/%v", trial), func(t *testing.T) {
			g := G.NewGraph()
			adv := randomNode(t, g, "adv", seed, batch, actions)
			shifted := constNode(t, g, "shifted", 0, batch, actions)
			shiftedValues := valuesOf(t, adv)
			for i := range shiftedValues {
				shiftedValues[i] += shift
			}
			letValues(t, shifted, shiftedValues)
			val := randomNode(t, g, "val", seed+100, batch, 1)

			q1, err := duelExpected(adv, val)
			if err != nil {
				t.Fatal(err)
			}
			q2, err := duelExpected(shifted, val)
			if err != nil {
				t.Fatal(err)
			}
			runGraph(t, g)
			checkClose(t, valuesOf(t, q1), valuesOf(t, q2), 1e-9)
		})

		t.Run(fmt.Sprintf("distributional/%v", trial), func(t *testing.T) {
			g := G.NewGraph()
			adv := randomNode(t, g, "adv", seed, batch, actions, support)
			shifted := constNode(t, g, "shifted", 0, batch, actions, support)
			shiftedValues := valuesOf(t, adv)
			for i := range shiftedValues {
				shiftedValues[i] += shift
			}
			letValues(t, shifted, shiftedValues)
			val := randomNode(t, g, "val", seed+100, batch, 1, support)

			q1, err := duelDistributional(adv, val)
			if err != nil {
				t.Fatal(err)
			}
			q2, err := duelDistributional(shifted, val)
			if err != nil {
				t.Fatal(err)
			}
			checkShape(t, q1, batch, actions, support)
			runGraph(t, g)
			checkClose(t, valuesOf(t, q1), valuesOf(t, q2), 1e-9)
		})
	}
}

func TestDuelExpectedUsesFlattenedMean(t *testing.T) {
	g := G.NewGraph()
	adv := constNode(t, g, "adv", 0, 2, 2)
	letValues(t, adv, []float64{
		1, 3,
		5, 7,
	})
	val := constNode(t, g, "val", 0, 2, 1)
	letValues(t, val, []float64{10, 20})

	q, err := duelExpected(adv, val)
	if err != nil {
		t.Fatal(err)
	}
	runGraph(t, g)

	// The mean over all advantages is 4
	want := []float64{
		10 + 1 - 4, 10 + 3 - 4,
		20 + 5 - 4, 20 + 7 - 4,
	}
	checkClose(t, want, valuesOf(t, q), 1e-12)
}

func TestDuelDistributionalUsesActionMean(t *testing.T) {
	g := G.NewGraph()

	// (batch 1, actions 2, support 2)
	adv := constNode(t, g, "adv", 0, 1, 2, 2)
	letValues(t, adv, []float64{
		1, 2,
		5, 10,
	})
	val := constNode(t, g, "val", 0, 1, 1, 2)
	letValues(t, val, []float64{100, 200})

	q, err := duelDistributional(adv, val)
	if err != nil {
		t.Fatal(err)
	}
	runGraph(t, g)

	// Means over actions are 3 and 6
	want := []float64{
		100 + 1 - 3, 200 + 2 - 6,
		100 + 5 - 3, 200 + 10 - 6,
	}
	checkClose(t, want, valuesOf(t, q), 1e-12)
}

func TestQNetSampleNoise(t *testing.T) {
	for _, c := range qnetConstructors {
		for _, noisy := range []bool{false, true} {
			name := fmt.Sprintf("%v/noisy=%v", c.name, noisy)
			t.Run(name, func(t *testing.T) {
				g := G.NewGraph()
				q, err := c.create(g, []int{4}, 3, 5, noisy, 21)
				if err != nil {
					t.Fatal(err)
				}
				if q.Noisy() != noisy {
					t.Errorf("noisy: want(%v) have(%v)", noisy, q.Noisy())
				}

				x := randomNode(t, g, "x", 22, 2, 4)
				out, err := q.Fwd(x)
				if err != nil {
					t.Fatal(err)
				}

				vm := G.NewTapeMachine(g)
				defer vm.Close()
				if err := vm.RunAll(); err != nil {
					t.Fatal(err)
				}
				before := valuesOf(t, out)

				if err := q.SampleNoise(); err != nil {
					t.Fatal(err)
				}
				vm.Reset()
				if err := vm.RunAll(); err != nil {
					t.Fatal(err)
				}
				after := valuesOf(t, out)

				if noisy && floats.Equal(before, after) {
					t.Errorf("sampleNoise did not change the output")
				} else if !noisy && !floats.Equal(before, after) {
					t.Errorf("sampleNoise changed the output of a network " +
						"which is not noisy")
				}
			})
		}
	}
}

func TestQNetAtari(t *testing.T) {
	g := G.NewGraph()
	q, err := NewDQN(g, []int{4, 84, 84}, 6, false, 0.5, NewAtariBody, 1)
	if err != nil {
		t.Fatal(err)
	}

	x := constNode(t, g, "x", 0, 32, 4, 84, 84)
	out, err := q.Fwd(x)
	if err != nil {
		t.Fatal(err)
	}
	checkShape(t, out, 32, 6)

	runGraph(t, g)
	checkFinite(t, valuesOf(t, out))
}

func TestQNetGradientStep(t *testing.T) {
	for _, noisy := range []bool{false, true} {
		t.Run(fmt.Sprintf("noisy=%v", noisy), func(t *testing.T) {
			g := G.NewGraph()
			q, err := NewDuelingDQN(g, []int{3}, 2, noisy, 0.5, nil, 5)
			if err != nil {
				t.Fatal(err)
			}

			x := randomNode(t, g, "x", 6, 4, 3)
			out, err := q.Fwd(x)
			if err != nil {
				t.Fatal(err)
			}
			squared, err := G.Square(out)
			if err != nil {
				t.Fatal(err)
			}
			loss, err := G.Mean(squared)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := G.Grad(loss, q.Learnables()...); err != nil {
				t.Fatal(err)
			}

			before := make([][]float64, len(q.Learnables()))
			for i, n := range q.Learnables() {
				before[i] = valuesOf(t, n)
			}

			vm := G.NewTapeMachine(g, G.BindDualValues(q.Learnables()...))
			defer vm.Close()
			if err := vm.RunAll(); err != nil {
				t.Fatal(err)
			}
			solver := G.NewVanillaSolver(G.WithLearnRate(0.1))
			if err := solver.Step(q.Model()); err != nil {
				t.Fatal(err)
			}

			// The advantages are not all equal, so the final layer of the
			// advantage stream receives a non-zero gradient
			advOut := q.adv[len(q.adv)-1].Weights()
			for i, n := range q.Learnables() {
				if n != advOut {
					continue
				}
				if floats.Equal(before[i], valuesOf(t, n)) {
					t.Errorf("solver step did not change %v", n.Name())
				}
			}
		})
	}
}

func TestQNetInvalidConfiguration(t *testing.T) {
	g := G.NewGraph()
	tests := []struct {
		name   string
		create func() error
	}{
		{"no actions", func() error {
			_, err := NewDQN(g, []int{4}, 0, false, 0.5, nil, 1)
			return err
		}},
		{"no atoms", func() error {
			_, err := NewCategoricalDQN(g, []int{4}, 2, 0, false, 0.5, nil, 1)
			return err
		}},
		{"no quantiles", func() error {
			_, err := NewDuelingQRDQN(g, []int{4}, 2, -1, false, 0.5, nil, 1)
			return err
		}},
		{"unknown distribution", func() error {
			_, err := NewQNet(g, []int{4}, 2, Architecture{Distribution: 7},
				false, 0.5, nil, nil, 1)
			return err
		}},
		{"empty input", func() error {
			_, err := NewDQN(g, nil, 2, false, 0.5, nil, 1)
			return err
		}},
	}
	for _, test := range tests {
		if err := test.create(); !errors.Is(err, ErrConfig) {
			t.Errorf("%v: want ErrConfig, have %v", test.name, err)
		}
	}
}

func TestQNetInvalidObservation(t *testing.T) {
	g := G.NewGraph()
	q, err := NewDQN(g, []int{4}, 2, false, 0.5, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	x := randomNode(t, g, "x", 1, 3, 5)
	if _, err := q.Fwd(x); !errors.Is(err, ErrShape) {
		t.Errorf("want ErrShape, have %v", err)
	}
}

func TestDistributionText(t *testing.T) {
	for _, d := range []Distribution{Expected, Categorical, Quantile} {
		text, err := d.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var have Distribution
		if err := have.UnmarshalText(text); err != nil {
			t.Fatal(err)
		}
		if have != d {
			t.Errorf("want(%v) have(%v)", d, have)
		}
	}

	var d Distribution
	if err := d.UnmarshalText([]byte("Gaussian")); !errors.Is(err, ErrConfig) {
		t.Errorf("want ErrConfig for unknown distribution, have %v", err)
	}
}

func BenchmarkDQNFwd(b *testing.B) {
	g := G.NewGraph()
	q, err := NewDQN(g, []int{4, 84, 84}, 6, false, 0.5, NewAtariBody, 1)
	if err != nil {
		b.Fatal(err)
	}
	x := constNode(b, g, "x", 0, 32, 4, 84, 84)
	if _, err := q.Fwd(x); err != nil {
		b.Fatal(err)
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := vm.RunAll(); err != nil {
			b.Fatal(err)
		}
		vm.Reset()
	}
}
