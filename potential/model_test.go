package potential

import (
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDressGraphSkipsUnconfiguredElements(t *testing.T) {
	// The config dresses only hydrogen (e_dress {1: 0.5}).
	cfg, err := ParseConfig([]byte(pinetConfigYAML))
	require.NoError(t, err)
	model, err := NewModel(cfg)
	require.NoError(t, err)

	backend := graphtest.BuildTestBackend()
	exec := context.MustNewExec(backend, context.New(),
		func(_ *context.Context, elems, ref *Node) *Node {
			return model.dressGraph(elems, ref)
		})

	dressOf := func(elems []int32) float64 {
		elemsT := tensors.FromFlatDataAndDimensions(elems, 1, len(elems))
		refT := tensors.FromFlatDataAndDimensions([]float64{0}, 1)
		outputs, err := exec.Exec(elemsT, refT)
		require.NoError(t, err)
		return tensors.MustCopyFlatData[float64](outputs[0])[0]
	}

	assert.InDelta(t, 1.0, dressOf([]int32{1, 1}), 1e-12)

	// Oxygen's atomic number is past the end of the baseline table; it
	// must contribute 0, not the baseline of the last dressed element.
	assert.InDelta(t, 0.5, dressOf([]int32{1, 8}), 1e-12)
	assert.InDelta(t, 0.0, dressOf([]int32{8, 8}), 1e-12)
}
