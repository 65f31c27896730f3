package potential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/pinn/atomic"
	"github.com/gomlx/pinn/dataio"
)

// compositionRecords builds structures whose energies are exactly
// composition-linear: E = Σ_z count(z)·baseline(z) + noise.
func compositionRecords(t *testing.T, baselines map[int]float64, noise []float64) *dataio.Records {
	compositions := [][]int{
		{1, 1, 8},
		{1, 8, 8},
		{8, 8, 8},
		{1, 1, 1},
	}
	structures := make([]*atomic.Atoms, len(compositions))
	energies := make([]float64, len(compositions))
	forces := make([][][3]float64, len(compositions))
	for i, numbers := range compositions {
		positions := make([][3]float64, len(numbers))
		for j := range positions {
			positions[j] = [3]float64{float64(j), 0, 0}
		}
		structures[i] = atomic.New(numbers, positions)
		for _, z := range numbers {
			energies[i] += baselines[z]
		}
		if noise != nil {
			energies[i] += noise[i]
		}
		forces[i] = make([][3]float64, len(numbers))
	}
	r, err := dataio.FromAtoms(structures, energies, forces)
	require.NoError(t, err)
	return r
}

func TestFitDressRecoversBaselines(t *testing.T) {
	baselines := map[int]float64{1: -0.5, 8: 2.75}
	records := compositionRecords(t, baselines, nil)
	dress, err := FitDress(records, []int{1, 8})
	require.NoError(t, err)
	assert.InDelta(t, -0.5, dress[1], 1e-10)
	assert.InDelta(t, 2.75, dress[8], 1e-10)
}

func TestRegenDressOnlyRefitsConfiguredElements(t *testing.T) {
	baselines := map[int]float64{1: -0.5, 8: 2.75}
	records := compositionRecords(t, baselines, []float64{0.01, -0.02, 0.015, -0.005})

	cfg := &Config{}
	cfg.Params.EDress = map[int]float64{1: 0}
	require.NoError(t, RegenDress(cfg, records))

	// Only hydrogen was configured, so only hydrogen is refit: the
	// oxygen contribution folds into the fit error, not into new keys.
	assert.Len(t, cfg.Params.EDress, 1)
	assert.Contains(t, cfg.Params.EDress, 1)

	// The stored value moves off its initial 0 to the one-column least
	// squares of the noisy energies against the hydrogen counts
	// (2, 1, 0, 3): Σ nᵢEᵢ / Σ nᵢ².
	expected := (2*1.76 + 1*4.98 + 3*(-1.505)) / 14.0
	assert.InDelta(t, expected, cfg.Params.EDress[1], 1e-9)

	// With no configured dress, nothing happens.
	cfg = &Config{}
	require.NoError(t, RegenDress(cfg, records))
	assert.Empty(t, cfg.Params.EDress)
}
