package networks

import (
	"math"
	"sort"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Symmetry function type names.
const (
	SFTypeG2 = "G2"
	SFTypeG3 = "G3"
	SFTypeG4 = "G4"
)

// SymmetryFunction describes one family of Behler–Parrinello symmetry
// functions. I is the atomic number of the center atom the features
// describe, J (and K for the angular types) the atomic numbers of the
// neighbors. The parameter lists are parallel: entry m of each list
// defines feature m of the family.
type SymmetryFunction struct {
	Type string `yaml:"type"`
	I    int    `yaml:"i"`
	J    int    `yaml:"j"`
	K    int    `yaml:"k"`

	// Eta is the Gaussian width parameter, used by all types.
	Eta []float64 `yaml:"eta"`

	// Rs is the radial shift, used by G2.
	Rs []float64 `yaml:"Rs"`

	// Lambd (±1) and Zeta shape the angular term of G3 and G4.
	Lambd []float64 `yaml:"lambd"`
	Zeta  []float64 `yaml:"zeta"`
}

// count returns the number of features the family defines.
func (sf *SymmetryFunction) count() int { return len(sf.Eta) }

func (sf *SymmetryFunction) validate() error {
	switch sf.Type {
	case SFTypeG2:
		if len(sf.Eta) == 0 || len(sf.Eta) != len(sf.Rs) {
			return errors.Errorf("bpnn: G2 requires parallel non-empty eta and Rs lists, got %d and %d entries",
				len(sf.Eta), len(sf.Rs))
		}
	case SFTypeG3, SFTypeG4:
		if len(sf.Eta) == 0 || len(sf.Eta) != len(sf.Lambd) || len(sf.Eta) != len(sf.Zeta) {
			return errors.Errorf("bpnn: %s requires parallel non-empty eta, lambd and zeta lists, got %d, %d and %d entries",
				sf.Type, len(sf.Eta), len(sf.Lambd), len(sf.Zeta))
		}
	default:
		return errors.Errorf("bpnn: unknown symmetry function type %q", sf.Type)
	}
	return nil
}

// BPNNParams are the hyperparameters of the Behler–Parrinello network:
// a symmetry-function fingerprint per atom, fed to one subnetwork per
// element.
type BPNNParams struct {
	// SFSpec lists the symmetry function families making up the
	// fingerprints.
	SFSpec []SymmetryFunction `yaml:"sf_spec"`

	// NNSpec maps each supported atomic number to the hidden layer sizes
	// of its subnetwork.
	NNSpec map[int][]int `yaml:"nn_spec"`

	// Rc is the cutoff radius.
	Rc float64 `yaml:"rc"`
}

// Validate checks the parameters are usable.
func (p *BPNNParams) Validate() error {
	if p.Rc <= 0 {
		return errors.Errorf("bpnn: cutoff rc must be > 0, got %g", p.Rc)
	}
	if len(p.NNSpec) == 0 {
		return errors.New("bpnn: nn_spec must map at least one element")
	}
	if len(p.SFSpec) == 0 {
		return errors.New("bpnn: sf_spec must list at least one symmetry function")
	}
	perElement := make(map[int]int)
	for i := range p.SFSpec {
		sf := &p.SFSpec[i]
		if err := sf.validate(); err != nil {
			return err
		}
		if _, ok := p.NNSpec[sf.I]; !ok {
			return errors.Errorf("bpnn: symmetry function centered on element %d, which nn_spec does not map", sf.I)
		}
		perElement[sf.I] += sf.count()
	}
	for z := range p.NNSpec {
		if perElement[z] == 0 {
			return errors.Errorf("bpnn: element %d has a subnetwork but no symmetry function centered on it", z)
		}
	}
	return nil
}

// elements returns the supported atomic numbers in ascending order, so
// variable scopes and one-hot columns are deterministic.
func (p *BPNNParams) elements() []int {
	elements := make([]int, 0, len(p.NNSpec))
	for z := range p.NNSpec {
		elements = append(elements, z)
	}
	sort.Ints(elements)
	return elements
}

// bpNN is the Behler–Parrinello network.
type bpNN struct {
	params *BPNNParams
}

// Name implements Network.
func (net *bpNN) Name() string { return TypeBPNN }

// Cutoff implements Network.
func (net *bpNN) Cutoff() float64 { return net.params.Rc }

// PreprocessGraph implements Network. The fingerprints depend on the
// coordinates, and force training needs their gradients, so nothing can
// be precomputed: the inputs pass through unchanged.
func (net *bpNN) PreprocessGraph(_ *context.Context, inputs, labels []*Node) ([]*Node, []*Node) {
	return inputs, labels
}

// EnergyGraph implements Network. The onehot input is unused, all
// element selection happens through masks computed here.
func (net *bpNN) EnergyGraph(ctx *context.Context, coords, elems, cells, onehot *Node) *Node {
	p := net.params
	g := coords.Graph()
	dtype := coords.DType()
	pairs := newPairGeometry(coords, cells, p.Rc)

	elemMask := func(z int) *Node { // [b, n]
		return ConvertDType(Equal(elems, Const(g, int32(z))), dtype)
	}

	// Fingerprint pieces per center element, concatenated below in
	// SFSpec order.
	features := make(map[int][]*Node)
	for i := range p.SFSpec {
		sf := &p.SFSpec[i]
		var feat *Node
		switch sf.Type {
		case SFTypeG2:
			feat = g2Features(pairs, elemMask(sf.J), sf.Eta, sf.Rs)
		case SFTypeG3:
			feat = angularFeatures(pairs, elemMask(sf.J), elemMask(sf.K), sf.Eta, sf.Lambd, sf.Zeta, true)
		case SFTypeG4:
			feat = angularFeatures(pairs, elemMask(sf.J), elemMask(sf.K), sf.Eta, sf.Lambd, sf.Zeta, false)
		}
		features[sf.I] = append(features[sf.I], feat)
	}

	// One subnetwork per element, applied to every atom and masked to the
	// atoms of that element.
	var total *Node
	for _, z := range p.elements() {
		fingerprint := Concatenate(features[z], -1) // [b, n, F_z]
		sizes := append(append([]int{}, p.NNSpec[z]...), 1)
		en := mlp(ctx.Inf("element_%03d", z), fingerprint, sizes, false)
		en = ReduceSum(en, -1) // [b, n]
		en = Mul(en, elemMask(z))
		if total == nil {
			total = en
		} else {
			total = Add(total, en)
		}
	}
	return ReduceSum(total, -1) // [b]
}

// g2Features computes the radial G2 family:
//
//	G2_m(i) = Σ_j exp(-η_m (d_ij - Rs_m)²) fc(d_ij)
//
// restricted to neighbors j with the given element mask. Returns
// [b, n, m].
func g2Features(pairs *pairGeometry, neighborMask *Node, eta, rs []float64) *Node {
	g := pairs.Dist.Graph()
	dtype := pairs.Dist.DType()
	d := InsertAxes(pairs.Dist, -1) // [b, n, n, 1]
	etaN := ExpandLeftToRank(ConvertDType(Const(g, eta), dtype), 4)
	rsN := ExpandLeftToRank(ConvertDType(Const(g, rs), dtype), 4)
	gauss := Exp(Neg(Mul(etaN, Square(Sub(d, rsN))))) // [b, n, n, m]
	weight := Mul(pairs.FC, InsertAxes(neighborMask, 1))
	return ReduceSum(Mul(gauss, InsertAxes(weight, -1)), 2) // [b, n, m]
}

// angularFeatures computes the angular G3 (withJK=true) and G4 families:
//
//	G_m(i) = 2^(1-ζ_m) Σ_{j,k≠j} (1 + λ_m cosθ_ijk)^ζ_m
//	         exp(-η_m (d_ij² + d_ik² [+ d_jk²])) fc_ij fc_ik [fc_jk]
//
// restricted to neighbor elements by the two masks. The sum runs over
// ordered pairs with both (j=J, k=K) orientations half-weighted, so
// mixed element pairs count once. Returns [b, n, m].
func angularFeatures(pairs *pairGeometry, maskJ, maskK *Node, eta, lambd, zeta []float64, withJK bool) *Node {
	g := pairs.Dist.Graph()
	dtype := pairs.Dist.DType()
	n := pairs.Dist.Shape().Dimensions[1]

	dij := InsertAxes(pairs.Dist, -1) // [b, i, j, 1]
	dik := InsertAxes(pairs.Dist, 2)  // [b, i, 1, k]
	djk := InsertAxes(pairs.Dist, 1)  // [b, 1, j, k]
	dot := Einsum("bijx,bikx->bijk", pairs.Diff, pairs.Diff)
	cos := Div(dot, Mul(dij, dik))

	dist2 := Add(Square(dij), Square(dik))
	weight := Mul(InsertAxes(pairs.FC, -1), InsertAxes(pairs.FC, 2))
	if withJK {
		dist2 = Add(dist2, Square(djk))
		weight = Mul(weight, InsertAxes(pairs.FC, 1))
	} else {
		// fc_jk already excludes j==k for G3; G4 needs it explicitly.
		eyeJK := Equal(Iota(g, shapes.Make(dtypes.Int32, n, n), 0), Iota(g, shapes.Make(dtypes.Int32, n, n), 1))
		notEye := OneMinus(ExpandLeftToRank(ConvertDType(eyeJK, dtype), 4)) // [1, 1, n, n]
		weight = Mul(weight, notEye)
	}

	// Element selection over both orientations, half-weighted.
	mjJ := InsertAxes(maskJ, 1, -1) // [b, 1, n, 1] on the j axis
	mkJ := InsertAxes(maskK, 1, -1)
	mjK := InsertAxes(maskJ, 1, 1) // [b, 1, 1, n] on the k axis
	mkK := InsertAxes(maskK, 1, 1)
	weight = Mul(weight, MulScalar(Add(Mul(mjJ, mkK), Mul(mkJ, mjK)), 0.5))

	feats := make([]*Node, len(eta))
	for m := range eta {
		angular := Max(AddScalar(MulScalar(cos, lambd[m]), 1), ZerosLike(cos))
		angular = Pow(angular, Scalar(g, dtype, zeta[m]))
		radial := Exp(MulScalar(dist2, -eta[m]))
		term := Mul(Mul(angular, radial), weight)
		perAtom := ReduceSum(term, -1, -2) // [b, n]
		perAtom = MulScalar(perAtom, math.Pow(2, 1-zeta[m]))
		feats[m] = InsertAxes(perAtom, -1)
	}
	return Concatenate(feats, -1) // [b, n, m]
}
