package atomic

import "math"

// LennardJones is the analytic 12-6 pairwise reference potential:
//
//	E = Σ_{i<j} 4ε[(σ/r)¹² - (σ/r)⁶] - shift
//
// truncated at Cutoff, with the pair energy shifted so it is continuous
// (zero) at the cutoff. Forces are the exact analytic gradient, so the
// data it generates is strictly energy-conserving -- which is what the
// consistency tests rely on.
type LennardJones struct {
	Epsilon float64
	Sigma   float64
	Cutoff  float64
}

// NewLennardJones returns a LJ calculator with ε=σ=1 and the given cutoff.
func NewLennardJones(cutoff float64) *LennardJones {
	return &LennardJones{Epsilon: 1, Sigma: 1, Cutoff: cutoff}
}

// pairEnergy of two atoms at squared distance r2, already inside the cutoff.
func (lj *LennardJones) pairEnergy(r2 float64) float64 {
	c6 := math.Pow(lj.Sigma*lj.Sigma/r2, 3)
	c12 := c6 * c6
	return 4 * lj.Epsilon * (c12 - c6)
}

// shift is the pair energy at the cutoff, subtracted from every pair so
// the potential goes continuously to zero at Cutoff.
func (lj *LennardJones) shift() float64 {
	return lj.pairEnergy(lj.Cutoff * lj.Cutoff)
}

// Energy returns the total potential energy of the structure.
func (lj *LennardJones) Energy(a *Atoms) float64 {
	rc2 := lj.Cutoff * lj.Cutoff
	shift := lj.shift()
	var e float64
	n := a.Len()
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			d := a.displacement(i, j)
			r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
			if r2 >= rc2 {
				continue
			}
			e += lj.pairEnergy(r2) - shift
		}
	}
	return e
}

// Forces returns the analytic forces, one [3] vector per atom.
func (lj *LennardJones) Forces(a *Atoms) [][3]float64 {
	rc2 := lj.Cutoff * lj.Cutoff
	n := a.Len()
	forces := make([][3]float64, n)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			d := a.displacement(i, j)
			r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
			if r2 >= rc2 {
				continue
			}
			c6 := math.Pow(lj.Sigma*lj.Sigma/r2, 3)
			c12 := c6 * c6
			// dE/dr² = -(24ε/r²)(2(σ/r)¹² - (σ/r)⁶) / 2
			f := 24 * lj.Epsilon * (2*c12 - c6) / r2
			for k := 0; k < 3; k++ {
				// d points from i to j; force on j is along +d.
				forces[j][k] += f * d[k]
				forces[i][k] -= f * d[k]
			}
		}
	}
	return forces
}
