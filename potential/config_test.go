package potential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/pinn/networks"
)

const pinetConfigYAML = `
network:
  name: pinet
  params:
    ii_nodes: [8, 8]
    pi_nodes: [8, 8]
    pp_nodes: [8, 8]
    en_nodes: [8, 8]
    depth: 3
    rc: 5.0
    n_basis: 5
    atom_types: [1]
model_params:
  e_dress: {1: 0.5}
  e_scale: 5.0
  e_unit: 2.0
  use_force: true
`

const bpnnConfigYAML = `
network:
  name: bpnn
  params:
    sf_spec:
      - {type: G2, i: 1, j: 1, eta: [0.1, 0.5], Rs: [1.0, 2.0]}
      - {type: G3, i: 1, j: 1, k: 1, eta: [0.1], lambd: [1.0], zeta: [1.0]}
      - {type: G4, i: 1, j: 1, k: 1, eta: [0.1], lambd: [1.0], zeta: [1.0]}
    nn_spec:
      1: [8, 8]
    rc: 5.0
model_params:
  e_dress: {1: 0.5}
  e_scale: 5.0
  e_unit: 2.0
  use_force: true
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(pinetConfigYAML))
	require.NoError(t, err)
	require.NotNil(t, cfg.Spec)
	require.Equal(t, networks.TypePiNet, cfg.Spec.Type)
	assert.Equal(t, 5.0, cfg.Spec.PiNet.Rc)
	assert.Equal(t, map[int]float64{1: 0.5}, cfg.Params.EDress)
	assert.Equal(t, 5.0, cfg.Params.EScale)
	assert.Equal(t, 2.0, cfg.Params.EUnit)
	assert.True(t, cfg.Params.UseForce)
	assert.Equal(t, 1.0, cfg.Params.FWeight, "f_weight defaults to 1")

	cfg, err = ParseConfig([]byte(bpnnConfigYAML))
	require.NoError(t, err)
	require.Equal(t, networks.TypeBPNN, cfg.Spec.Type)
	assert.Equal(t, []int{8, 8}, cfg.Spec.BPNN.NNSpec[1])
}

func TestConfigMarshalRoundTrip(t *testing.T) {
	cfg, err := ParseConfig([]byte(bpnnConfigYAML))
	require.NoError(t, err)
	cfg.ModelDir = "/tmp/model"
	cfg.Params.EDress = map[int]float64{1: -3.25}

	data, err := cfg.Marshal()
	require.NoError(t, err)
	reparsed, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/model", reparsed.ModelDir)
	assert.Equal(t, map[int]float64{1: -3.25}, reparsed.Params.EDress)
	require.Equal(t, networks.TypeBPNN, reparsed.Spec.Type)
	assert.Equal(t, []int{8, 8}, reparsed.Spec.BPNN.NNSpec[1],
		"integer nn_spec keys survive the round trip")
	assert.Equal(t, cfg.Spec.BPNN.SFSpec, reparsed.Spec.BPNN.SFSpec)
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	_, err := ParseConfig([]byte(`
network:
  name: pinet
  params: {depth: 3, rc: 5.0, n_basis: 5, atom_types: [1],
           ii_nodes: [8], pi_nodes: [8], pp_nodes: [8], en_nodes: [8]}
model_params:
  e_scale: 0.0
`))
	require.Error(t, err, "e_scale 0 would divide labels by zero")

	_, err = ParseConfig([]byte(`
network:
  name: resnet
  params: {}
`))
	require.Error(t, err, "unknown network name")
}
