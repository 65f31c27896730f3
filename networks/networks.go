// Package networks defines the closed set of atomic neural-network
// architectures the potential models can use: PiNet, a pairwise
// interaction message-passing network, and BPNN, a Behler–Parrinello
// symmetry-function network.
//
// Each network is a graph-building component composed entirely of GoMLX
// ops and layers: given batched coordinates, atomic numbers and cells it
// returns one (internal-unit) energy per structure. Forces and stress
// are not the networks' business -- they are derived by the model from
// the energy graph via automatic differentiation.
package networks

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Network is one of the supported architectures, already bound to its
// hyperparameters.
type Network interface {
	// Name of the architecture ("pinet" or "bpnn").
	Name() string

	// EnergyGraph returns one energy per structure, shaped [batchSize],
	// in the model's internal units.
	//
	// coords is [b, n, 3] (Float64), elems is [b, n] (Int32), cells is
	// [b, 3] (Float64, zeros for non-periodic structures). onehot is the
	// precomputed element encoding produced by PreprocessGraph, or nil
	// when the pipeline did not preprocess.
	EnergyGraph(ctx *context.Context, coords, elems, cells, onehot *Node) *Node

	// PreprocessGraph is the network's dataset preprocessing: it appends
	// the coordinate-independent element encoding to the inputs, so it is
	// computed once and cached instead of on every training step.
	// It matches data.MapGraphFn.
	PreprocessGraph(ctx *context.Context, inputs, labels []*Node) (mappedInputs, mappedLabels []*Node)

	// Cutoff radius, in the same distance units as the coordinates.
	Cutoff() float64
}

// Spec is the parsed network selection: a closed, tagged union resolved
// at configuration-parse time, instead of a by-name lookup at run time.
type Spec struct {
	Type  string
	PiNet *PiNetParams
	BPNN  *BPNNParams
}

// Supported network type names.
const (
	TypePiNet = "pinet"
	TypeBPNN  = "bpnn"
)

// NewSpec resolves a network name and its raw parameter mapping into a
// Spec. rawParams is anything YAML-marshalable: a *yaml.Node subtree of
// the parameter file, or a map built in code.
func NewSpec(name string, rawParams any) (*Spec, error) {
	// Round-trip through YAML to decode the untyped mapping into the
	// architecture's parameter struct.
	decode := func(target any) error {
		encoded, err := yaml.Marshal(rawParams)
		if err != nil {
			return errors.Wrap(err, "re-encoding network_params")
		}
		return errors.Wrap(yaml.Unmarshal(encoded, target), "decoding network_params")
	}
	spec := &Spec{Type: name}
	switch name {
	case TypePiNet:
		spec.PiNet = &PiNetParams{}
		if err := decode(spec.PiNet); err != nil {
			return nil, err
		}
		return spec, spec.PiNet.Validate()
	case TypeBPNN:
		spec.BPNN = &BPNNParams{}
		if err := decode(spec.BPNN); err != nil {
			return nil, err
		}
		return spec, spec.BPNN.Validate()
	}
	return nil, errors.Errorf("unknown network %q, supported networks are %q and %q", name, TypePiNet, TypeBPNN)
}

// Build returns the Network for the spec.
func (s *Spec) Build() (Network, error) {
	switch s.Type {
	case TypePiNet:
		return &piNet{params: s.PiNet}, nil
	case TypeBPNN:
		return &bpNN{params: s.BPNN}, nil
	}
	return nil, errors.Errorf("invalid network spec type %q", s.Type)
}

// oneHotElements encodes atomic numbers [b, n] (Int32) against the given
// element list, returning [b, n, len(elements)] with the same dtype as
// dtypeRef. Atoms of elements not listed encode to all zeros and
// therefore contribute nothing downstream.
func oneHotElements(elems *Node, elements []int, dtypeRef *Node) *Node {
	g := elems.Graph()
	if len(elements) == 0 {
		exceptions.Panicf("networks: empty element list for one-hot encoding")
	}
	types := make([]int32, len(elements))
	for i, z := range elements {
		types[i] = int32(z)
	}
	typesNode := ExpandLeftToRank(Const(g, types), 3) // [1, 1, E]
	expanded := InsertAxes(elems, -1)                 // [b, n, 1]
	hot := Equal(expanded, typesNode)                 // [b, n, E]
	return ConvertDType(hot, dtypeRef.DType())
}
