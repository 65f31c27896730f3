package atomic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStructure() *Atoms {
	return New([]int{1, 1, 1}, [][3]float64{
		{-1.7, 0, 0},
		{0, 1, 0},
		{1, 1, 0},
	})
}

func TestLennardJonesForcesAreNegativeGradient(t *testing.T) {
	lj := NewLennardJones(3.0)
	a := testStructure()
	forces := lj.Forces(a)

	const h = 1e-6
	for i := 0; i < a.Len(); i++ {
		for k := 0; k < 3; k++ {
			plus := a.Copy()
			plus.Positions[i][k] += h
			minus := a.Copy()
			minus.Positions[i][k] -= h
			numeric := -(lj.Energy(plus) - lj.Energy(minus)) / (2 * h)
			assert.InDeltaf(t, numeric, forces[i][k], 1e-5,
				"force on atom %d, axis %d", i, k)
		}
	}
}

func TestLennardJonesEnergyContinuousAtCutoff(t *testing.T) {
	lj := NewLennardJones(3.0)
	inside := New([]int{1, 1}, [][3]float64{{0, 0, 0}, {2.999999, 0, 0}})
	outside := New([]int{1, 1}, [][3]float64{{0, 0, 0}, {3.000001, 0, 0}})
	require.Equal(t, 0.0, lj.Energy(outside))
	assert.InDelta(t, 0.0, lj.Energy(inside), 1e-4)
}

func TestLennardJonesMinimumImage(t *testing.T) {
	lj := NewLennardJones(3.0)

	// Two atoms on opposite sides of a periodic cell: their true
	// separation is through the boundary.
	periodic := New([]int{1, 1}, [][3]float64{{0.1, 0, 0}, {9.9, 0, 0}})
	periodic.SetCell([3]float64{10, 10, 10}, false)
	direct := New([]int{1, 1}, [][3]float64{{0, 0, 0}, {0.2, 0, 0}})
	assert.InDelta(t, lj.Energy(direct), lj.Energy(periodic), 1e-12)

	// Without periodicity they are out of range of each other.
	free := New([]int{1, 1}, [][3]float64{{0.1, 0, 0}, {9.9, 0, 0}})
	assert.Equal(t, 0.0, lj.Energy(free))
}

func TestSetCellScalesAtoms(t *testing.T) {
	a := testStructure()
	a.SetCell([3]float64{3, 3, 3}, false)
	require.Equal(t, 27.0, a.Volume())

	b := a.Copy()
	b.SetCell([3]float64{6, 6, 6}, true)
	assert.Equal(t, 216.0, b.Volume())
	for i := range a.Positions {
		for k := 0; k < 3; k++ {
			assert.InDelta(t, 2*a.Positions[i][k], b.Positions[i][k], 1e-12)
		}
	}
}
