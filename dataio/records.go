// Package dataio implements the on-disk dataset format for potential
// training and the assembly of train.Dataset pipelines from it.
//
// A dataset file holds a fixed-size collection of atomic structures in
// columnar form (coordinates, atomic numbers, cells, energies, forces),
// gob-serialized with the tensors' own serialization. All structures in
// one file must have the same number of atoms -- batches keep static
// shapes, so the JIT-compiled training graph is reused across steps.
package dataio

import (
	"encoding/gob"
	"os"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/pinn/atomic"
)

// Records is a columnar dataset of atomic structures with energy and
// force labels. Inputs to the model are (Coords, Elems, Cells), labels
// are (Energies, Forces).
type Records struct {
	// Coords is shaped [numExamples, numAtoms, 3], dtype Float64.
	Coords *tensors.Tensor

	// Elems is shaped [numExamples, numAtoms], dtype Int32, holding atomic numbers.
	Elems *tensors.Tensor

	// Cells is shaped [numExamples, 3], dtype Float64: orthorhombic cell
	// lengths, all zeros for non-periodic structures.
	Cells *tensors.Tensor

	// Energies is shaped [numExamples], dtype Float64.
	Energies *tensors.Tensor

	// Forces is shaped [numExamples, numAtoms, 3], dtype Float64.
	Forces *tensors.Tensor
}

// recordsHeader is the fixed preamble of a dataset file.
type recordsHeader struct {
	Version     int
	NumExamples int
	NumAtoms    int
}

const recordsVersion = 1

// FromAtoms builds Records from structures and their labels. All
// structures must have the same number of atoms.
func FromAtoms(structures []*atomic.Atoms, energies []float64, forces [][][3]float64) (*Records, error) {
	numExamples := len(structures)
	if numExamples == 0 {
		return nil, errors.New("dataio.FromAtoms: no structures given")
	}
	if len(energies) != numExamples || len(forces) != numExamples {
		return nil, errors.Errorf("dataio.FromAtoms: got %d structures, %d energies and %d forces, counts must match",
			numExamples, len(energies), len(forces))
	}
	numAtoms := structures[0].Len()
	coords := make([]float64, 0, numExamples*numAtoms*3)
	elems := make([]int32, 0, numExamples*numAtoms)
	cells := make([]float64, 0, numExamples*3)
	forcesFlat := make([]float64, 0, numExamples*numAtoms*3)
	for i, a := range structures {
		if a.Len() != numAtoms {
			return nil, errors.Errorf("dataio.FromAtoms: structure %d has %d atoms, expected %d -- all structures in one dataset must have the same size",
				i, a.Len(), numAtoms)
		}
		for _, p := range a.Positions {
			coords = append(coords, p[0], p[1], p[2])
		}
		for _, z := range a.Numbers {
			elems = append(elems, int32(z))
		}
		cells = append(cells, a.Cell[0], a.Cell[1], a.Cell[2])
		for _, f := range forces[i] {
			forcesFlat = append(forcesFlat, f[0], f[1], f[2])
		}
	}
	return &Records{
		Coords:   tensors.FromFlatDataAndDimensions(coords, numExamples, numAtoms, 3),
		Elems:    tensors.FromFlatDataAndDimensions(elems, numExamples, numAtoms),
		Cells:    tensors.FromFlatDataAndDimensions(cells, numExamples, 3),
		Energies: tensors.FromFlatDataAndDimensions(energies, numExamples),
		Forces:   tensors.FromFlatDataAndDimensions(forcesFlat, numExamples, numAtoms, 3),
	}, nil
}

// NumExamples in the dataset.
func (r *Records) NumExamples() int { return r.Coords.Shape().Dimensions[0] }

// NumAtoms per structure.
func (r *Records) NumAtoms() int { return r.Coords.Shape().Dimensions[1] }

// tensorsInOrder returns the tensors in their serialization order.
func (r *Records) tensorsInOrder() []**tensors.Tensor {
	return []**tensors.Tensor{&r.Coords, &r.Elems, &r.Cells, &r.Energies, &r.Forces}
}

// Save writes the dataset to path.
func (r *Records) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "dataio: creating %q", path)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "dataio: closing %q", path)
		}
	}()
	enc := gob.NewEncoder(f)
	header := recordsHeader{Version: recordsVersion, NumExamples: r.NumExamples(), NumAtoms: r.NumAtoms()}
	if err = enc.Encode(header); err != nil {
		return errors.Wrapf(err, "dataio: encoding header of %q", path)
	}
	for _, t := range r.tensorsInOrder() {
		if err = (*t).GobSerialize(enc); err != nil {
			return errors.Wrapf(err, "dataio: encoding %q", path)
		}
	}
	return nil
}

// Load reads a dataset from path.
func Load(path string) (r *Records, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataio: opening %q", path)
	}
	defer func() { _ = f.Close() }()
	dec := gob.NewDecoder(f)
	var header recordsHeader
	if err = dec.Decode(&header); err != nil {
		return nil, errors.Wrapf(err, "dataio: decoding header of %q", path)
	}
	if header.Version != recordsVersion {
		return nil, errors.Errorf("dataio: %q has version %d, this build reads version %d",
			path, header.Version, recordsVersion)
	}
	r = &Records{}
	for _, t := range r.tensorsInOrder() {
		*t, err = tensors.GobDeserialize(dec)
		if err != nil {
			return nil, errors.Wrapf(err, "dataio: decoding %q", path)
		}
	}
	if r.Coords.DType() != dtypes.Float64 || r.Elems.DType() != dtypes.Int32 {
		return nil, errors.Errorf("dataio: %q holds unexpected dtypes (%s coords, %s elems)",
			path, r.Coords.DType(), r.Elems.DType())
	}
	return r, nil
}

// ElementCounts returns, for each example, how many atoms of each of the
// given elements it contains -- the design matrix for the least-squares
// fit of per-element energy baselines.
func (r *Records) ElementCounts(elements []int) [][]float64 {
	numExamples, numAtoms := r.NumExamples(), r.NumAtoms()
	indexOf := make(map[int32]int, len(elements))
	for i, z := range elements {
		indexOf[int32(z)] = i
	}
	counts := make([][]float64, numExamples)
	tensors.MustConstFlatData(r.Elems, func(flat []int32) {
		for ex := range counts {
			row := make([]float64, len(elements))
			for _, z := range flat[ex*numAtoms : (ex+1)*numAtoms] {
				if col, found := indexOf[z]; found {
					row[col]++
				}
			}
			counts[ex] = row
		}
	})
	return counts
}

// EnergiesSlice returns a copy of the energy labels.
func (r *Records) EnergiesSlice() []float64 {
	return tensors.MustCopyFlatData[float64](r.Energies)
}
