// Package op provides extended Gorgonia graph operations.
package op

import (
	"fmt"

	"github.com/samuelfneumann/rlnet/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// KeepDims reshapes the result of a reduction of a node with shape
// like along axis along so that it has the same rank as the original
// node, with a dimension of size 1 at along.
func KeepDims(reduced *G.Node, like tensor.Shape, along int) (*G.Node,
	error) {
	if along < 0 || along >= len(like) {
		return nil, fmt.Errorf("keepDims: axis %v out of range for shape %v",
			along, like)
	}

	shape := like.Clone()
	shape[along] = 1
	return G.Reshape(reduced, shape)
}

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the given axis. The returned node has the given
// axis removed.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node, along int) (*G.Node, error) {
	max, err := G.Max(logits, along)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: could not compute max: %w", err)
	}
	keptMax, err := KeepDims(max, logits.Shape(), along)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}

	exponent, err := G.BroadcastSub(logits, keptMax, nil, []byte{byte(along)})
	if err != nil {
		return nil, fmt.Errorf("logSumExp: could not shift logits: %w", err)
	}
	exponent, err = G.Exp(exponent)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}

	sum, err := G.Sum(exponent, along)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}
	log, err := G.Log(sum)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: %w", err)
	}

	return G.Add(max, log)
}

// SoftMax computes the soft-max of logits along the given axis. The
// returned node has the same shape as logits.
func SoftMax(logits *G.Node, along int) (*G.Node, error) {
	lse, err := LogSumExp(logits, along)
	if err != nil {
		return nil, fmt.Errorf("softMax: %w", err)
	}
	lse, err = KeepDims(lse, logits.Shape(), along)
	if err != nil {
		return nil, fmt.Errorf("softMax: %w", err)
	}

	logProbs, err := G.BroadcastSub(logits, lse, nil, []byte{byte(along)})
	if err != nil {
		return nil, fmt.Errorf("softMax: could not normalize: %w", err)
	}
	return G.Exp(logProbs)
}

// SliceRows returns rows [start, end) of the matrix x as an
// (end-start, cols) matrix, keeping the row dimension when a single row
// is taken.
func SliceRows(x *G.Node, start, end int) (*G.Node, error) {
	if !x.IsMatrix() {
		return nil, fmt.Errorf("sliceRows: input must be a matrix but has "+
			"shape %v", x.Shape())
	}
	rows, cols := x.Shape()[0], x.Shape()[1]
	if start < 0 || end > rows || start >= end {
		return nil, fmt.Errorf("sliceRows: invalid rows [%v, %v) of %v",
			start, end, rows)
	}

	s, err := G.Slice(x, tensorutils.NewSlice(start, end, 1))
	if err != nil {
		return nil, fmt.Errorf("sliceRows: %w", err)
	}
	if s.Dims() == 2 {
		return s, nil
	}
	return G.Reshape(s, tensor.Shape{end - start, cols})
}
