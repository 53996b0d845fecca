package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/rlnet/network"
	"github.com/samuelfneumann/rlnet/utils/tensorutils"
)

func TestDescribeExamples(t *testing.T) {
	batch, length := 2, 3
	want := map[string]map[string][]int{
		"dqn.json":                 {"q": {batch, 2}},
		"categorical_dueling.json": {"q": {batch, 4, 51}},
		"qr_atari.json":            {"q": {batch, 6, 200}},
		"drqn.json": {
			"q":      {batch, length, 3},
			"hidden": {2, batch, 64},
		},
		"actor_critic.json": {
			"logits": {batch, 6},
			"value":  {batch, 1},
			"states": {batch, 256},
		},
	}

	paths, err := filepath.Glob(filepath.Join("examples", "*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != len(want) {
		t.Fatalf("example configs: want(%v) have(%v)", len(want), len(paths))
	}

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := describe(path, batch, length, 1)
			if err != nil {
				t.Fatal(err)
			}
			if s.Params <= 0 {
				t.Errorf("params: want positive, have %v", s.Params)
			}

			shapes := want[filepath.Base(path)]
			if len(s.Outputs) != len(shapes) {
				t.Fatalf("outputs: want(%v) have(%v)", len(shapes),
					len(s.Outputs))
			}
			for _, out := range s.Outputs {
				if !tensorutils.Equal(out.Shape, shapes[out.Name]) {
					t.Errorf("%v shape: want(%v) have(%v)", out.Name,
						shapes[out.Name], out.Shape)
				}
			}
		})
	}
}

func TestDescribeInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"Type": "Perceptron"}`),
		0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := describe(path, 1, 1, 1); err == nil {
		t.Errorf("want error for unknown network type")
	}
	if _, err := describe(filepath.Join(dir, "missing.json"), 1, 1,
		1); err == nil {
		t.Errorf("want error for missing file")
	}
	if _, err := describe(filepath.Join("examples", "dqn.json"), 0, 1,
		1); err == nil {
		t.Errorf("want error for empty batch")
	}
}

func TestDescribeCommand(t *testing.T) {
	defer network.SetLogger(nil)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"describe", "--batch", "3", "--log-level",
		"warn", filepath.Join("examples", "dqn.json")})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: want(2) have(%v): \n%v", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "QNet") || !strings.Contains(lines[1],
		"(3, 2)") {
		t.Errorf("unexpected description: %v", lines[1])
	}
}

func TestCheckFinite(t *testing.T) {
	if err := checkFinite("q", []float64{0, -1.5, 3e300}); err != nil {
		t.Errorf("finite values: unexpected error %v", err)
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := checkFinite("q", []float64{1, bad}); err == nil {
			t.Errorf("want error for %v", bad)
		}
	}
}
