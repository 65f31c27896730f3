package dataio

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// repeatDataset implements a train.Dataset that resets the wrapped
// dataset whenever it is exhausted, yielding batches forever.
type repeatDataset struct {
	ds train.Dataset
}

// Repeat returns a wrapper to ds that loops over it indefinitely: on
// io.EOF the wrapped dataset is Reset and reading continues. Don't use
// it with Loop.RunEpochs.
func Repeat(ds train.Dataset) train.Dataset {
	return &repeatDataset{ds: ds}
}

// Name implements train.Dataset.
func (ds *repeatDataset) Name() string {
	return fmt.Sprintf("%s [Repeat]", ds.ds.Name())
}

// Reset implements train.Dataset.
func (ds *repeatDataset) Reset() {
	ds.ds.Reset()
}

// Yield implements train.Dataset.
func (ds *repeatDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	spec, inputs, labels, err = ds.ds.Yield()
	if err == io.EOF {
		ds.ds.Reset()
		spec, inputs, labels, err = ds.ds.Yield()
	}
	return
}

// shuffleBufferDataset implements a streaming buffer shuffle: it keeps up
// to bufferSize batches in memory and yields a uniformly random one,
// immediately replacing it from the wrapped dataset.
type shuffleBufferDataset struct {
	ds         train.Dataset
	bufferSize int
	rng        *rand.Rand
	buffer     []bufferedBatch
}

type bufferedBatch struct {
	spec   any
	inputs []*tensors.Tensor
	labels []*tensors.Tensor
}

// ShuffleBuffer returns a wrapper to ds that shuffles its yields through
// a buffer of the given size. A larger buffer approximates a full
// shuffle better, at the cost of holding that many batches in memory.
func ShuffleBuffer(ds train.Dataset, bufferSize int) train.Dataset {
	return &shuffleBufferDataset{
		ds:         ds,
		bufferSize: bufferSize,
		rng:        rand.New(rand.NewSource(rand.Int63())),
	}
}

// WithRand sets the random number generator, for deterministic tests.
func (ds *shuffleBufferDataset) WithRand(rng *rand.Rand) *shuffleBufferDataset {
	ds.rng = rng
	return ds
}

// Name implements train.Dataset.
func (ds *shuffleBufferDataset) Name() string {
	return fmt.Sprintf("%s [Shuffle %d]", ds.ds.Name(), ds.bufferSize)
}

// Reset implements train.Dataset.
func (ds *shuffleBufferDataset) Reset() {
	ds.buffer = nil
	ds.ds.Reset()
}

// Yield implements train.Dataset.
func (ds *shuffleBufferDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	for len(ds.buffer) < ds.bufferSize {
		batch := bufferedBatch{}
		batch.spec, batch.inputs, batch.labels, err = ds.ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		ds.buffer = append(ds.buffer, batch)
	}
	if len(ds.buffer) == 0 {
		err = io.EOF
		return
	}
	pick := ds.rng.Intn(len(ds.buffer))
	chosen := ds.buffer[pick]
	ds.buffer[pick] = ds.buffer[len(ds.buffer)-1]
	ds.buffer = ds.buffer[:len(ds.buffer)-1]
	return chosen.spec, chosen.inputs, chosen.labels, nil
}
