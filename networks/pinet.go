package networks

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// PiNetParams are the hyperparameters of the pairwise interaction
// network. The YAML keys match the parameter-file convention.
type PiNetParams struct {
	// Depth is the number of interaction blocks.
	Depth int `yaml:"depth"`

	// Rc is the cutoff radius.
	Rc float64 `yaml:"rc"`

	// NBasis is the number of Gaussian basis functions expanding the
	// pair distances.
	NBasis int `yaml:"n_basis"`

	// PPNodes, PINodes, IINodes and ENNodes are the hidden sizes of the
	// property-property, property-interaction, interaction-interaction
	// and energy-readout layer stacks.
	PPNodes []int `yaml:"pp_nodes"`
	PINodes []int `yaml:"pi_nodes"`
	IINodes []int `yaml:"ii_nodes"`
	ENNodes []int `yaml:"en_nodes"`

	// AtomTypes lists the atomic numbers the network supports.
	AtomTypes []int `yaml:"atom_types"`
}

// Validate checks the parameters are usable.
func (p *PiNetParams) Validate() error {
	if p.Depth < 1 {
		return errors.Errorf("pinet: depth must be >= 1, got %d", p.Depth)
	}
	if p.Rc <= 0 {
		return errors.Errorf("pinet: cutoff rc must be > 0, got %g", p.Rc)
	}
	if p.NBasis < 1 {
		return errors.Errorf("pinet: n_basis must be >= 1, got %d", p.NBasis)
	}
	if len(p.AtomTypes) == 0 {
		return errors.New("pinet: atom_types must list at least one element")
	}
	for _, nodes := range [][]int{p.PPNodes, p.PINodes, p.IINodes, p.ENNodes} {
		if len(nodes) == 0 {
			return errors.New("pinet: pp_nodes, pi_nodes, ii_nodes and en_nodes must all be non-empty")
		}
	}
	return nil
}

// piNet is the pairwise interaction network: atom properties are
// exchanged along pairs within the cutoff, modulated by a Gaussian
// expansion of the pair distance, and re-collected on the atoms; each
// block contributes a per-atom energy readout.
type piNet struct {
	params *PiNetParams
}

// Name implements Network.
func (net *piNet) Name() string { return TypePiNet }

// Cutoff implements Network.
func (net *piNet) Cutoff() float64 { return net.params.Rc }

// PreprocessGraph implements Network: it appends the one-hot element
// encoding to the inputs.
func (net *piNet) PreprocessGraph(_ *context.Context, inputs, labels []*Node) ([]*Node, []*Node) {
	coords, elems := inputs[0], inputs[1]
	onehot := oneHotElements(elems, net.params.AtomTypes, coords)
	return append(inputs, onehot), labels
}

// EnergyGraph implements Network.
func (net *piNet) EnergyGraph(ctx *context.Context, coords, elems, cells, onehot *Node) *Node {
	p := net.params
	if onehot == nil {
		onehot = oneHotElements(elems, p.AtomTypes, coords)
	}
	pairs := newPairGeometry(coords, cells, p.Rc)
	basis := pairs.gaussianBasis(p.NBasis, p.Rc) // [b, n, n, nBasis]
	maskExp := InsertAxes(pairs.Mask, -1)        // [b, n, n, 1]

	prop := onehot // [b, n, F]
	var energies *Node
	for block := 0; block < p.Depth; block++ {
		blockCtx := ctx.Inf("block_%03d", block)

		// PI: pair features from the properties of both ends.
		propI := InsertAxes(prop, 2)                              // [b, n, 1, F]
		propJ := InsertAxes(prop, 1)                              // [b, 1, n, F]
		n := prop.Shape().Dimensions[1]
		propI = BroadcastToDims(propI, prop.Shape().Dimensions[0], n, n, prop.Shape().Dimensions[2])
		propJ = BroadcastToDims(propJ, prop.Shape().Dimensions[0], n, n, prop.Shape().Dimensions[2])
		pair := Concatenate([]*Node{propI, propJ}, -1)            // [b, n, n, 2F]
		pair = mlp(blockCtx.In("pi"), pair, p.PINodes, true)

		// Modulate by the distance basis, projected to the pair width.
		weights := mlp(blockCtx.In("basis"), basis, []int{p.PINodes[len(p.PINodes)-1]}, false)
		pair = Mul(pair, weights)

		// II: transform the pair features.
		pair = mlp(blockCtx.In("ii"), pair, p.IINodes, true)
		pair = Mul(pair, maskExp)

		// IP: collect pair features back onto the atoms.
		collected := ReduceSum(pair, 2) // [b, n, iiLast]

		// PP: update the atom properties.
		prop = mlp(blockCtx.In("pp"), collected, p.PPNodes, true)

		// EN: per-atom energy readout for this block.
		en := mlp(blockCtx.In("en"), prop, append(append([]int{}, p.ENNodes...), 1), false)
		en = ReduceSum(en, -1) // [b, n]
		if energies == nil {
			energies = en
		} else {
			energies = Add(energies, en)
		}
	}
	return ReduceSum(energies, -1) // [b]
}
