package potential

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate"

	"github.com/gomlx/pinn/atomic"
	"github.com/gomlx/pinn/dataio"
)

// The consistency tests train a small model on an analytic Lennard-Jones
// reference and then check properties that must hold for any potential
// whose forces and stress are exact derivatives of its energy:
//
//  1. the reported RMSE metrics match a recomputation through the
//     Calculator, across the unit conversions;
//  2. energy is conserved: the energy difference along a path equals
//     minus the integrated force;
//  3. the virial pressure is consistent: the energy difference along an
//     isotropic expansion equals the integrated pressure over volume.
//
// None of these depend on the model fitting the reference well -- they
// are identities of the differentiation, so a short training run is
// enough.

const ljCutoff = 5.0

func linspace(from, to float64, n int) []float64 {
	xs := make([]float64, n)
	step := (to - from) / float64(n-1)
	for i := range xs {
		xs[i] = from + float64(i)*step
	}
	return xs
}

// scanStructure is an H3 triangle with the first atom at (x, 0, 0).
func scanStructure(x float64) *atomic.Atoms {
	return atomic.New([]int{1, 1, 1}, [][3]float64{
		{x, 0, 0},
		{0, 1, 0},
		{1, 1, 0},
	})
}

// scanRecords labels the scan structures with the analytic reference.
func scanRecords(t *testing.T, lj *atomic.LennardJones, xs []float64) *dataio.Records {
	structures := make([]*atomic.Atoms, len(xs))
	energies := make([]float64, len(xs))
	forces := make([][][3]float64, len(xs))
	for i, x := range xs {
		structures[i] = scanStructure(x)
		energies[i] = lj.Energy(structures[i])
		forces[i] = lj.Forces(structures[i])
	}
	r, err := dataio.FromAtoms(structures, energies, forces)
	require.NoError(t, err)
	return r
}

func TestPotentialConsistency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training-based consistency tests in -short mode")
	}
	backend := graphtest.BuildTestBackend()
	lj := atomic.NewLennardJones(ljCutoff)

	testCases := []struct {
		name       string
		configYAML string
		preprocess bool
	}{
		{"pinet", pinetConfigYAML, true},
		{"bpnn", bpnnConfigYAML, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tc.configYAML))
			require.NoError(t, err)
			modelDir := t.TempDir()
			cfg.ModelDir = modelDir

			dataDir := t.TempDir()
			trainPath := filepath.Join(dataDir, "train.rec")
			evalPath := filepath.Join(dataDir, "eval.rec")
			require.NoError(t, scanRecords(t, lj, linspace(-5, 0, 1000)).Save(trainPath))
			evalXs := linspace(-5, 0, 200)
			require.NoError(t, scanRecords(t, lj, evalXs).Save(evalPath))

			results, err := TrainAndEvaluate(backend, cfg, &TrainOptions{
				TrainData:     trainPath,
				EvalData:      evalPath,
				TrainSteps:    1000,
				BatchSize:     50,
				Preprocess:    tc.preprocess,
				CacheData:     true,
				ShuffleBuffer: 100,
				RegenDress:    true,
				Quiet:         true,
			})
			require.NoError(t, err)
			require.Contains(t, results, MetricEnergyRMSE)
			require.Contains(t, results, MetricForceRMSE)

			calc, err := NewCalculator(backend, cfg)
			require.NoError(t, err)

			t.Run("rmse-consistency", func(t *testing.T) {
				eUnit, eScale := cfg.Params.EUnit, cfg.Params.EScale
				var seE, seF float64
				countF := 0
				for _, x := range evalXs {
					a := scanStructure(x)
					res, err := calc.Calculate(a)
					require.NoError(t, err)
					dE := res.Energy/eUnit - lj.Energy(a)
					seE += dE * dE
					refForces := lj.Forces(a)
					for i := range refForces {
						for k := 0; k < 3; k++ {
							dF := res.Forces[i][k]/eUnit - refForces[i][k]
							seF += dF * dF
							countF++
						}
					}
				}
				rmseE := math.Sqrt(seE / float64(len(evalXs)))
				rmseF := math.Sqrt(seF / float64(countF))
				// The trainer's metrics are in internal units: scaling by
				// e_scale must reproduce the physical-unit RMSEs.
				assert.InEpsilon(t, rmseE, results[MetricEnergyRMSE]*eScale, 1e-2)
				assert.InEpsilon(t, rmseF, results[MetricForceRMSE]*eScale, 1e-2)
			})

			t.Run("energy-conservation", func(t *testing.T) {
				xs := linspace(-6, -3, 500)
				energies := make([]float64, len(xs))
				forcesX := make([]float64, len(xs))
				for i, x := range xs {
					res, err := calc.Calculate(scanStructure(x))
					require.NoError(t, err)
					energies[i] = res.Energy
					forcesX[i] = res.Forces[0][0]
				}
				dE := energies[len(energies)-1] - energies[0]
				work := integrate.Trapezoidal(xs, forcesX)
				assert.InDelta(t, dE, -work, math.Max(1e-3, 1e-2*math.Abs(dE)),
					"energy change must equal minus the integrated force")
			})

			t.Run("virial-pressure", func(t *testing.T) {
				base := scanStructure(0)
				base.SetCell([3]float64{3, 3, 3}, false)
				ls := linspace(3, 3.5, 500)
				energies := make([]float64, len(ls))
				pressures := make([]float64, len(ls))
				volumes := make([]float64, len(ls))
				for i, l := range ls {
					a := base.Copy()
					a.SetCell([3]float64{l, l, l}, true)
					res, err := calc.Calculate(a)
					require.NoError(t, err)
					energies[i] = res.Energy
					pressures[i] = res.Pressure
					volumes[i] = a.Volume()
				}
				dE := energies[len(energies)-1] - energies[0]
				work := integrate.Trapezoidal(volumes, pressures)
				assert.InDelta(t, dE, work, math.Max(1e-3, 1e-2*math.Abs(dE)),
					"energy change must equal the integrated pressure over volume")
			})

			t.Run("reload-from-model-dir", func(t *testing.T) {
				loaded, err := Load(backend, modelDir)
				require.NoError(t, err)
				assert.Equal(t, cfg.Spec.Type, loaded.Config().Spec.Type)
				a := scanStructure(-2.5)
				want, err := calc.Calculate(a)
				require.NoError(t, err)
				got, err := loaded.Calculate(a)
				require.NoError(t, err)
				assert.InDelta(t, want.Energy, got.Energy, 1e-9)
				for i := range want.Forces {
					for k := 0; k < 3; k++ {
						assert.InDelta(t, want.Forces[i][k], got.Forces[i][k], 1e-9)
					}
				}
			})
		})
	}
}
