package dataio

import (
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	data "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// Pipeline assembles train.Dataset values from Records, in the fixed
// order load → batch → (map) → (cache) → for training repeat + shuffle.
//
// The optional map step runs a graph function over each batch -- it is
// where label de-biasing (energy dress and scale) and a network's
// preprocessing are applied, so their results are materialized in the
// cache instead of being recomputed by the training graph every step.
type Pipeline struct {
	backend   backends.Backend
	records   *Records
	name      string
	batchSize int
	mapCtx    *context.Context
	mapFn     data.MapGraphFn
	cache     bool
}

// NewPipeline creates a pipeline over the given records. The name is
// used for progress reporting and plots.
func NewPipeline(backend backends.Backend, records *Records, name string) *Pipeline {
	return &Pipeline{backend: backend, records: records, name: name, batchSize: 1}
}

// BatchSize configures the number of structures per batch. Values < 1
// are treated as 1.
func (p *Pipeline) BatchSize(n int) *Pipeline {
	if n < 1 {
		n = 1
	}
	p.batchSize = n
	return p
}

// MapGraph sets a per-batch graph transformation, run with the given
// context (typically the transformation is stateless and the context is
// only a formality of data.MapWithGraphFn).
func (p *Pipeline) MapGraph(ctx *context.Context, fn data.MapGraphFn) *Pipeline {
	p.mapCtx = ctx
	p.mapFn = fn
	return p
}

// Cache sets whether the pipeline output (after batching and mapping) is
// materialized in memory once and served from there.
func (p *Pipeline) Cache(cache bool) *Pipeline {
	p.cache = cache
	return p
}

// base builds the shared part of the train and eval pipelines.
func (p *Pipeline) base(dropIncompleteBatch bool) (train.Dataset, error) {
	r := p.records
	mds, err := datasets.InMemoryFromData(p.backend, p.name,
		[]any{r.Coords, r.Elems, r.Cells},
		[]any{r.Energies, r.Forces})
	if err != nil {
		return nil, errors.WithMessagef(err, "dataio: building in-memory dataset %q", p.name)
	}
	var ds train.Dataset = mds.BatchSize(p.batchSize, dropIncompleteBatch)
	if p.mapFn != nil {
		ds = data.MapWithGraphFn(p.backend, p.mapCtx, ds, p.mapFn)
	}
	if p.cache {
		cached, err := datasets.InMemory(p.backend, ds, true)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataio: caching dataset %q", p.name)
		}
		cached.SetName(p.name)
		ds = cached
	}
	return ds, nil
}

// Eval returns a finite dataset that yields each batch once, in order.
func (p *Pipeline) Eval() (train.Dataset, error) {
	return p.base(false)
}

// Train returns an infinite dataset: batches repeat forever and are
// shuffled through a buffer of the given size (<= 1 disables shuffling).
// Incomplete trailing batches are dropped so all training steps see the
// same shapes.
func (p *Pipeline) Train(shuffleBuffer int) (train.Dataset, error) {
	ds, err := p.base(true)
	if err != nil {
		return nil, err
	}
	ds = Repeat(ds)
	if shuffleBuffer > 1 {
		ds = ShuffleBuffer(ds, shuffleBuffer)
	}
	return ds, nil
}
