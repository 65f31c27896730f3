package networks

import (
	"math"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gopjrt/dtypes"
)

// pairGeometry holds the dense all-pairs geometry of a batch: for small
// molecular systems an [n, n] pair table is cheaper and simpler than
// neighbor lists, and it keeps every shape static for the JIT cache.
type pairGeometry struct {
	// Diff is [b, n, n, 3]: Diff[b, i, j] points from atom i to atom j,
	// minimum-image wrapped on periodic axes.
	Diff *Node

	// Dist is [b, n, n]. The diagonal is lifted to 1 before the square
	// root so its gradient stays finite; it is excluded by Mask.
	Dist *Node

	// Mask is [b, n, n] (same dtype as coords): 1 for pairs i≠j within
	// the cutoff, 0 otherwise.
	Mask *Node

	// FC is [b, n, n]: the cosine cutoff function fc(d), already masked.
	FC *Node
}

// newPairGeometry computes the pair table for coords [b, n, 3] and cells
// [b, 3] with the given cutoff radius.
func newPairGeometry(coords, cells *Node, cutoff float64) *pairGeometry {
	g := coords.Graph()
	dtype := coords.DType()
	n := coords.Shape().Dimensions[1]

	rows := InsertAxes(coords, 2) // [b, n, 1, 3]
	cols := InsertAxes(coords, 1) // [b, 1, n, 3]
	diff := Sub(cols, rows)       // [b, n, n, 3]

	// Minimum-image wrap on axes with a positive cell length. For
	// non-periodic axes the cell is replaced by 1 and the correction
	// zeroed, keeping the expression differentiable everywhere.
	cellExp := InsertAxes(cells, 1, 1) // [b, 1, 1, 3]
	periodic := ConvertDType(GreaterThan(cellExp, ZerosLike(cellExp)), dtype)
	cellSafe := Add(cellExp, Sub(OnesLike(periodic), periodic))
	wrap := Mul(periodic, Mul(cellSafe, Round(Div(diff, cellSafe))))
	diff = Sub(diff, wrap)

	dist2 := ReduceSum(Square(diff), -1) // [b, n, n]

	// Unit diagonal keeps Sqrt differentiable at the self-pairs.
	eyeBool := Equal(Iota(g, shapes.Make(dtypes.Int32, n, n), 0), Iota(g, shapes.Make(dtypes.Int32, n, n), 1))
	eye := ExpandLeftToRank(ConvertDType(eyeBool, dtype), 3) // [1, n, n]
	dist := Sqrt(Add(dist2, eye))

	inCutoff := LessThan(dist, Scalar(g, dtype, cutoff))
	mask := Mul(ConvertDType(inCutoff, dtype), Sub(OnesLike(eye), eye))

	// Cosine cutoff: fc(d) = (cos(πd/rc)+1)/2, forced to 0 outside rc.
	fc := MulScalar(AddScalar(Cos(MulScalar(dist, math.Pi/cutoff)), 1), 0.5)
	fc = Mul(fc, mask)

	return &pairGeometry{Diff: diff, Dist: dist, Mask: mask, FC: fc}
}

// gaussianBasis expands the pair distances on nBasis Gaussians with
// centers at i·cutoff/nBasis, i = 0..nBasis-1, each damped by the
// cutoff function (a center at the cutoff itself would be damped to
// zero). Returns [b, n, n, nBasis].
func (p *pairGeometry) gaussianBasis(nBasis int, cutoff float64) *Node {
	g := p.Dist.Graph()
	dtype := p.Dist.DType()
	centers := make([]float64, nBasis)
	for i := range centers {
		centers[i] = cutoff * float64(i) / float64(nBasis)
	}
	width := cutoff / float64(nBasis)
	centersNode := ExpandLeftToRank(Const(g, centers), 4)       // [1, 1, 1, nBasis]
	centersNode = ConvertDType(centersNode, dtype)
	dExp := InsertAxes(p.Dist, -1)                              // [b, n, n, 1]
	basis := Exp(Neg(Square(DivScalar(Sub(dExp, centersNode), width))))
	return Mul(basis, InsertAxes(p.FC, -1))
}

// mlp applies a stack of dense layers with tanh activations over the
// last axis of x, reshaping through rank 2 as layers.Dense requires.
// When activateLast is false the final layer is linear -- the usual
// choice for an energy readout.
func mlp(ctx *context.Context, x *Node, sizes []int, activateLast bool) *Node {
	if len(sizes) == 0 {
		return x
	}
	dims := x.Shape().Dimensions
	features := dims[len(dims)-1]
	flat := Reshape(x, -1, features)
	for i, size := range sizes {
		flat = layers.Dense(ctx.Inf("%02d_dense", i), flat, true, size)
		if activateLast || i < len(sizes)-1 {
			flat = Tanh(flat)
		}
	}
	newDims := make([]int, len(dims))
	copy(newDims, dims[:len(dims)-1])
	newDims[len(newDims)-1] = sizes[len(sizes)-1]
	return Reshape(flat, newDims...)
}
