package potential

import (
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/pkg/errors"

	"github.com/gomlx/pinn/atomic"
)

// Result of one Calculator evaluation, in output units (physical model
// outputs multiplied by e_unit).
type Result struct {
	// Energy of the structure.
	Energy float64

	// Forces on each atom, the negative energy gradient w.r.t. its
	// position.
	Forces [][3]float64

	// Stress is the virial stress tensor, (1/V) dE/dε for a symmetric
	// strain ε. Only set for periodic structures.
	Stress [3][3]float64

	// Pressure is the mean of the stress diagonal, so that dE = ∫P dV
	// along isotropic deformations. Only set for periodic structures.
	Pressure float64
}

// Calculator evaluates a trained potential on single structures.
//
// The computation graph is JIT-compiled per atom count: repeated calls
// with same-sized structures reuse the compiled graph.
type Calculator struct {
	backend backends.Backend
	config  *Config
	model   *Model
	exec    *context.Exec
}

// NewCalculator builds a calculator from an already parsed
// configuration, restoring the trained variables from cfg.ModelDir.
func NewCalculator(backend backends.Backend, cfg *Config) (*Calculator, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	ctx := context.New()
	handler, err := checkpoints.Build(ctx).Dir(cfg.ModelDir).ExcludeParams(ParamConfig).Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "potential: checkpoints in %q", cfg.ModelDir)
	}
	hasCheckpoint, err := handler.HasCheckpoints()
	if err != nil {
		return nil, err
	}
	if !hasCheckpoint {
		return nil, errors.Errorf("potential: no checkpoint found in %q", cfg.ModelDir)
	}
	c := &Calculator{backend: backend, config: cfg, model: model}
	// Reuse asserts every variable was restored from the checkpoint:
	// building the graph fails loudly instead of silently initializing a
	// fresh model.
	c.exec = context.MustNewExec(backend, ctx.In("model").Reuse(), c.calculateGraph)
	return c, nil
}

// Load builds a calculator from a model directory alone: the
// configuration is restored from the checkpoint.
func Load(backend backends.Backend, modelDir string) (*Calculator, error) {
	ctx := context.New()
	if _, err := checkpoints.Build(ctx).Dir(modelDir).Done(); err != nil {
		return nil, errors.WithMessagef(err, "potential: checkpoints in %q", modelDir)
	}
	configText := context.GetParamOr(ctx, ParamConfig, "")
	if configText == "" {
		return nil, errors.Errorf("potential: checkpoint in %q carries no configuration", modelDir)
	}
	cfg, err := ParseConfig([]byte(configText))
	if err != nil {
		return nil, err
	}
	cfg.ModelDir = modelDir
	return NewCalculator(backend, cfg)
}

// Config the calculator was built from.
func (c *Calculator) Config() *Config { return c.config }

// calculateGraph builds the evaluation graph for one structure: output
// energy [1], forces [1, n, 3] and the strain derivative dE/dε [3, 3].
//
// The strain input is always zero; it exists as a differentiation point.
// Positions (and the cell diagonal) are deformed by (I + ε) before the
// energy is evaluated, so dE/dε at ε=0 is the virial, and stress is that
// divided by the cell volume.
func (c *Calculator) calculateGraph(ctx *context.Context, coords, elems, cells, strain *Node) []*Node {
	g := coords.Graph()
	dtype := coords.DType()
	params := c.config.Params

	eye := DiagonalWithValue(Scalar(g, dtype, 1), 3)
	deform := Add(eye, strain)
	deformed := Einsum("bnx,xy->bny", coords, deform)
	diag := ReduceSum(Mul(strain, eye), -1) // [3]
	cellsDeformed := Mul(cells, AddScalar(diag, 1))

	energy := c.model.Network().EnergyGraph(ctx.In("network"), deformed, elems, cellsDeformed, nil)
	energy = MulScalar(energy, params.EScale)
	if len(params.EDress) > 0 {
		energy = Add(energy, c.model.dressGraph(elems, energy))
	}
	energy = MulScalar(energy, params.EUnit)

	total := ReduceAllSum(energy)
	grads := Gradient(total, coords, strain)
	forces := Neg(grads[0])
	virial := grads[1]
	return []*Node{energy, forces, virial}
}

// Calculate evaluates the potential on one structure.
func (c *Calculator) Calculate(a *atomic.Atoms) (*Result, error) {
	n := a.Len()
	coords := make([]float64, 0, n*3)
	elems := make([]int32, 0, n)
	for i := range a.Positions {
		coords = append(coords, a.Positions[i][0], a.Positions[i][1], a.Positions[i][2])
		elems = append(elems, int32(a.Numbers[i]))
	}
	cell := [3]float64{}
	if a.PBC {
		cell = a.Cell
	}
	coordsT := tensors.FromFlatDataAndDimensions(coords, 1, n, 3)
	elemsT := tensors.FromFlatDataAndDimensions(elems, 1, n)
	cellsT := tensors.FromFlatDataAndDimensions(cell[:], 1, 3)
	strainT := tensors.FromFlatDataAndDimensions(make([]float64, 9), 3, 3)

	outputs, err := c.exec.Exec(coordsT, elemsT, cellsT, strainT)
	if err != nil {
		return nil, errors.WithMessage(err, "potential: evaluating structure")
	}
	result := &Result{}
	result.Energy = tensors.MustCopyFlatData[float64](outputs[0])[0]
	forcesFlat := tensors.MustCopyFlatData[float64](outputs[1])
	result.Forces = make([][3]float64, n)
	for i := range result.Forces {
		copy(result.Forces[i][:], forcesFlat[i*3:i*3+3])
	}
	if a.PBC {
		volume := a.Volume()
		if volume <= 0 {
			return nil, errors.New("potential: periodic structure with non-positive cell volume")
		}
		virialFlat := tensors.MustCopyFlatData[float64](outputs[2])
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				result.Stress[i][j] = virialFlat[i*3+j] / volume
			}
		}
		result.Pressure = (result.Stress[0][0] + result.Stress[1][1] + result.Stress[2][2]) / 3
	}
	return result, nil
}
