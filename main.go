// Command rlnet builds the networks described by JSON configuration
// files and reports their parameter counts and output shapes.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/samuelfneumann/rlnet/network"
	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	logLevel string

	describeBatch  int
	describeLength int
	describeSeed   uint64
)

var log = logrus.New()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rlnet",
	Short: "Build and inspect reinforcement learning networks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		network.SetLogger(log)
		return nil
	},
	SilenceUsage: true,
}

var describeCmd = &cobra.Command{
	Use:   "describe CONFIG...",
	Short: "Build each configured network and run it on a zero batch",
	Long: `Describe reads network specifications from JSON files of the form

  {"Type": "QNet", "Config": {"InputShape": [4], "NumActions": 2}}

builds each network, runs a forward pass on an all-zero batch and
prints the number of learnable parameters and the shape of each output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CONFIG\tTYPE\tPARAMS\tOUTPUT\tSHAPE")
		for _, path := range args {
			s, err := describe(path, describeBatch, describeLength,
				describeSeed)
			if err != nil {
				return fmt.Errorf("%v: %w", path, err)
			}
			for _, out := range s.Outputs {
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", path, s.Type, s.Params,
					out.Name, out.Shape)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"logging level (debug, info, warn, error)")

	describeCmd.Flags().IntVar(&describeBatch, "batch", 1, "batch size")
	describeCmd.Flags().IntVar(&describeLength, "length", 1,
		"sequence length of recurrent q-networks")
	describeCmd.Flags().Uint64Var(&describeSeed, "seed", 0,
		"seed for weight initialization")

	rootCmd.AddCommand(describeCmd)
}

// output is a named output node of a network
type output struct {
	Name  string
	Shape tensor.Shape
}

// summary describes a built network
type summary struct {
	Type    network.Type
	Params  int
	Outputs []output
}

// loadSpec reads a network Spec from the JSON file at path
func loadSpec(path string) (network.Spec, error) {
	var spec network.Spec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("loadSpec: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("loadSpec: %w", err)
	}
	return spec, nil
}

// describe builds the network described by the Spec at path and runs a
// forward pass over an all-zero batch of observations
func describe(path string, batch, length int, seed uint64) (summary, error) {
	if batch <= 0 || length <= 0 {
		return summary{}, fmt.Errorf("describe: batch size and length must "+
			"be positive, have (%v, %v)", batch, length)
	}

	spec, err := loadSpec(path)
	if err != nil {
		return summary{}, err
	}

	g := G.NewGraph()
	net, err := spec.Create(g, seed)
	if err != nil {
		return summary{}, fmt.Errorf("describe: %w", err)
	}

	names, nodes, err := forward(net, batch, length)
	if err != nil {
		return summary{}, fmt.Errorf("describe: %w", err)
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return summary{}, fmt.Errorf("describe: %w", err)
	}

	s := summary{Type: spec.Type, Params: network.NumParams(net)}
	for i, node := range nodes {
		values, err := tensorutils.Float64s(node.Value())
		if err != nil {
			return summary{}, fmt.Errorf("describe: %w", err)
		}
		if err := checkFinite(names[i], values); err != nil {
			return summary{}, fmt.Errorf("describe: %w", err)
		}
		s.Outputs = append(s.Outputs, output{names[i], node.Shape().Clone()})
	}

	log.WithFields(logrus.Fields{
		"config": path,
		"type":   s.Type,
		"params": s.Params,
	}).Info("described network")
	return s, nil
}

// checkFinite returns an error if any of the values of the output
// name is NaN or infinite
func checkFinite(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("checkFinite: output %v has non-finite value "+
				"%v at index %v", name, v, i)
		}
	}
	return nil
}

// forward adds the forward pass of net over zero observations to its
// graph and returns the output nodes with their names
func forward(net network.Network, batch, length int) ([]string, []*G.Node,
	error) {
	g := net.Graph()
	switch n := net.(type) {
	case *network.QNet:
		x := tensorutils.Zeros(g, "x", append([]int{batch},
			n.InputShape()...)...)
		q, err := n.Fwd(x)
		return []string{"q"}, []*G.Node{q}, err

	case *network.DRQN:
		x := tensorutils.Zeros(g, "x", append([]int{batch, length},
			n.InputShape()...)...)
		q, hidden, err := n.Fwd(x, n.InitHidden(batch))
		return []string{"q", "hidden"}, []*G.Node{q, hidden}, err

	case *network.ActorCritic:
		x := tensorutils.Zeros(g, "x", append([]int{batch},
			n.InputShape()...)...)
		ones := make([]float64, batch)
		floats.AddConst(1, ones)
		masks, err := tensorutils.NewNode(g, "masks", ones, batch, 1)
		if err != nil {
			return nil, nil, err
		}
		logits, value, states, err := n.Fwd(x, n.InitStates(batch), masks)
		return []string{"logits", "value", "states"},
			[]*G.Node{logits, value, states}, err

	default:
		return nil, nil, fmt.Errorf("forward: unknown network %T", net)
	}
}
