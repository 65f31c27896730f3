// Package atomic holds the minimal atomistic types used by the potential
// models: an Atoms structure (positions, atomic numbers and an optional
// orthorhombic periodic cell) and an analytic Lennard-Jones reference
// calculator used to synthesize training data and to validate trained
// potentials.
//
// It is not a general-purpose simulation library: only what the training
// driver and its physical-consistency tests need.
package atomic

import "math"

// Atoms describes one atomic structure.
//
// Cell holds the lengths of an orthorhombic periodic cell. A zero cell
// means the structure is non-periodic. Only orthorhombic cells are
// supported by the models in this repository.
type Atoms struct {
	// Positions in Å, one [3] vector per atom.
	Positions [][3]float64

	// Numbers are the atomic numbers (e.g. 1 for hydrogen), aligned with Positions.
	Numbers []int

	// Cell lengths in Å. All zeros for non-periodic structures.
	Cell [3]float64

	// PBC indicates whether the cell is periodic.
	PBC bool
}

// New creates a non-periodic structure with the given atomic numbers and positions.
func New(numbers []int, positions [][3]float64) *Atoms {
	a := &Atoms{
		Positions: make([][3]float64, len(positions)),
		Numbers:   make([]int, len(numbers)),
	}
	copy(a.Positions, positions)
	copy(a.Numbers, numbers)
	return a
}

// Len returns the number of atoms.
func (a *Atoms) Len() int { return len(a.Numbers) }

// Copy returns a deep copy of the structure.
func (a *Atoms) Copy() *Atoms {
	b := &Atoms{
		Positions: make([][3]float64, len(a.Positions)),
		Numbers:   make([]int, len(a.Numbers)),
		Cell:      a.Cell,
		PBC:       a.PBC,
	}
	copy(b.Positions, a.Positions)
	copy(b.Numbers, a.Numbers)
	return b
}

// SetCell sets an orthorhombic cell and marks the structure periodic.
// If scaleAtoms is true the atom positions are rescaled with the cell,
// keeping their fractional coordinates -- the same convention as an
// isotropic expansion of the structure.
func (a *Atoms) SetCell(cell [3]float64, scaleAtoms bool) {
	if scaleAtoms && a.PBC {
		for i := range a.Positions {
			for d := 0; d < 3; d++ {
				if a.Cell[d] != 0 {
					a.Positions[i][d] *= cell[d] / a.Cell[d]
				}
			}
		}
	}
	a.Cell = cell
	a.PBC = true
}

// Volume of the periodic cell. Returns 0 for non-periodic structures.
func (a *Atoms) Volume() float64 {
	if !a.PBC {
		return 0
	}
	return a.Cell[0] * a.Cell[1] * a.Cell[2]
}

// displacement returns the vector from atom i to atom j, applying the
// minimum-image convention on periodic axes.
func (a *Atoms) displacement(i, j int) [3]float64 {
	var d [3]float64
	for k := 0; k < 3; k++ {
		d[k] = a.Positions[j][k] - a.Positions[i][k]
		if a.PBC && a.Cell[k] > 0 {
			l := a.Cell[k]
			d[k] -= l * math.Round(d[k]/l)
		}
	}
	return d
}
