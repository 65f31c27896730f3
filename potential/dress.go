package potential

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/gomlx/pinn/dataio"
)

// FitDress solves the least-squares problem
//
//	energies ≈ Σ_z count(z) · dress(z)
//
// over the given elements, returning the per-element baseline that best
// explains the dataset energies by composition alone.
func FitDress(records *dataio.Records, elements []int) (map[int]float64, error) {
	if len(elements) == 0 {
		return nil, errors.New("potential: no elements to fit a dress for")
	}
	counts := records.ElementCounts(elements)
	energies := records.EnergiesSlice()
	numExamples := len(counts)
	if numExamples < len(elements) {
		return nil, errors.Errorf("potential: %d examples cannot determine %d per-element baselines",
			numExamples, len(elements))
	}
	flat := make([]float64, 0, numExamples*len(elements))
	for _, row := range counts {
		flat = append(flat, row...)
	}
	a := mat.NewDense(numExamples, len(elements), flat)
	b := mat.NewVecDense(numExamples, energies)

	var qr mat.QR
	qr.Factorize(a)
	var solution mat.VecDense
	if err := qr.SolveVecTo(&solution, false, b); err != nil {
		return nil, errors.Wrap(err, "potential: dress least-squares solve")
	}
	dress := make(map[int]float64, len(elements))
	for i, z := range elements {
		dress[z] = solution.AtVec(i)
	}
	return dress, nil
}

// RegenDress refits the configured energy dress on the training data:
// only elements already present in the configuration's dress are
// refit, so the set of dressed elements is an explicit modeling choice
// while their values track the dataset.
func RegenDress(cfg *Config, records *dataio.Records) error {
	if len(cfg.Params.EDress) == 0 {
		return nil
	}
	elements := make([]int, 0, len(cfg.Params.EDress))
	for z := range cfg.Params.EDress {
		elements = append(elements, z)
	}
	sort.Ints(elements)
	dress, err := FitDress(records, elements)
	if err != nil {
		return err
	}
	cfg.Params.EDress = dress
	return nil
}
