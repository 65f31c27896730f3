// Package potential trains and evaluates neural-network interatomic
// potentials: models that predict the energy, forces and stress of an
// atomic structure from its coordinates, atomic numbers and cell.
//
// The model delegates all the machine learning to GoMLX: a network from
// the networks package builds the energy graph, and forces and stress
// are its automatic derivatives. Training runs in internal units -- the
// energy labels are de-biased by a per-element baseline ("dress") and
// divided by a scale -- while the Calculator reports physical outputs
// converted by a unit factor.
package potential

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gomlx/pinn/networks"
)

// ModelParams are the potential-level parameters, wrapped around
// whichever network the configuration selects.
type ModelParams struct {
	// EDress maps atomic numbers to per-atom baseline energies,
	// subtracted from the labels before scaling. May be empty.
	EDress map[int]float64 `yaml:"e_dress"`

	// EScale divides the de-biased energy labels; training happens on
	// (E - dress) / EScale. Defaults to 1.
	EScale float64 `yaml:"e_scale"`

	// EUnit converts the model's physical energies to output units:
	// the Calculator reports E * EUnit. Defaults to 1.
	EUnit float64 `yaml:"e_unit"`

	// UseForce adds the force mean-squared error to the training loss.
	UseForce bool `yaml:"use_force"`

	// FWeight is the weight of the force term in the loss. Defaults to 1.
	FWeight float64 `yaml:"f_weight"`
}

// Config is the parsed parameter file of one model.
type Config struct {
	// ModelDir is where checkpoints (and the effective parameter file)
	// live. Usually injected from the command line rather than written in
	// the file.
	ModelDir string `yaml:"model_dir"`

	// Network selects and parameterizes the architecture. Params is kept
	// as a raw YAML subtree: the selected architecture decodes it into
	// its own parameter struct, and marshaling preserves it byte-exact
	// (including integer mapping keys, as in bpnn's nn_spec).
	Network struct {
		Name   string    `yaml:"name"`
		Params yaml.Node `yaml:"params"`
	} `yaml:"network"`

	// Params are the potential-level parameters.
	Params ModelParams `yaml:"model_params"`

	// Spec is the resolved network selection, filled in by parsing.
	Spec *networks.Spec `yaml:"-"`
}

// ParamConfig is the context parameter under which the serialized
// configuration is stored, so a checkpoint directory alone is enough to
// rebuild the model.
const ParamConfig = "potential_config"

// ParseConfig parses and validates a YAML parameter file.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	cfg.Params.EScale = 1
	cfg.Params.EUnit = 1
	cfg.Params.FWeight = 1
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing parameter file")
	}
	if cfg.Params.EScale == 0 {
		return nil, errors.New("model_params.e_scale must not be 0")
	}
	if cfg.Params.EUnit == 0 {
		return nil, errors.New("model_params.e_unit must not be 0")
	}
	spec, err := networks.NewSpec(cfg.Network.Name, &cfg.Network.Params)
	if err != nil {
		return nil, err
	}
	cfg.Spec = spec
	return cfg, nil
}

// LoadConfig reads and parses the parameter file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading parameter file %q", path)
	}
	return ParseConfig(data)
}

// Marshal serializes the configuration back to YAML -- the form stored
// in the checkpoint under ParamConfig.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	return data, errors.Wrap(err, "serializing configuration")
}
