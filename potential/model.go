package potential

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	data "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"

	"github.com/gomlx/pinn/networks"
)

// Model binds a configuration to its network and provides the graph
// building functions the trainer and the Calculator share.
type Model struct {
	config *Config
	net    networks.Network
}

// NewModel builds the network selected by the configuration.
func NewModel(cfg *Config) (*Model, error) {
	net, err := cfg.Spec.Build()
	if err != nil {
		return nil, err
	}
	return &Model{config: cfg, net: net}, nil
}

// Network in use.
func (m *Model) Network() networks.Network { return m.net }

// Forward is the train.ModelFn: from inputs (coords [b, n, 3], elems
// [b, n], cells [b, 3] and optionally the preprocessed element encoding)
// it predicts internal-unit energies [b] and forces [b, n, 3].
//
// The forces are the exact negative gradient of the summed energy with
// respect to the coordinates; training on them differentiates through
// this gradient, which GoMLX supports.
func (m *Model) Forward(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	coords, elems, cells := inputs[0], inputs[1], inputs[2]
	var onehot *Node
	if len(inputs) > 3 {
		onehot = inputs[3]
	}
	energy := m.net.EnergyGraph(ctx.In("network"), coords, elems, cells, onehot)
	forces := Neg(Gradient(ReduceAllSum(energy), coords)[0])
	return []*Node{energy, forces}
}

// Loss is the train.LossFn: energy MSE, plus the weighted force MSE when
// force training is enabled.
func (m *Model) Loss(labels, predictions []*Node) *Node {
	loss := ReduceAllMean(Square(Sub(predictions[0], labels[0])))
	if m.config.Params.UseForce {
		forceMSE := ReduceAllMean(Square(Sub(predictions[1], labels[1])))
		loss = Add(loss, MulScalar(forceMSE, m.config.Params.FWeight))
	}
	return loss
}

// dressGraph returns the summed per-atom baseline energy of each
// structure, shaped [b]. Elements without a configured baseline
// contribute 0.
func (m *Model) dressGraph(elems *Node, dtypeRef *Node) *Node {
	g := elems.Graph()
	maxZ := 0
	for z := range m.config.Params.EDress {
		if z > maxZ {
			maxZ = z
		}
	}
	table := make([]float64, maxZ+1)
	for z, e := range m.config.Params.EDress {
		table[z] = e
	}
	tableNode := ConvertDType(Const(g, table), dtypeRef.DType())
	perAtom := Gather(tableNode, InsertAxes(elems, -1)) // [b, n]
	// Gather clamps out-of-range indices to the last entry: zero out
	// atoms past the end of the table so they get no baseline.
	inTable := ConvertDType(LessThan(elems, Const(g, int32(len(table)))), dtypeRef.DType())
	perAtom = Mul(perAtom, inTable)
	return ReduceSum(perAtom, -1)
}

// PipelineMapGraph returns the per-batch graph transformation applied by
// the data pipeline: labels move to internal units (energy de-biased by
// the dress and divided by e_scale, forces divided by e_scale), and with
// preprocess enabled the network's preprocessing runs over the inputs.
func (m *Model) PipelineMapGraph(preprocess bool) data.MapGraphFn {
	return func(ctx *context.Context, inputs, labels []*Node) ([]*Node, []*Node) {
		elems := inputs[1]
		energy, forces := labels[0], labels[1]
		if len(m.config.Params.EDress) > 0 {
			energy = Sub(energy, m.dressGraph(elems, energy))
		}
		scale := m.config.Params.EScale
		labels = []*Node{DivScalar(energy, scale), DivScalar(forces, scale)}
		if preprocess {
			inputs, labels = m.net.PreprocessGraph(ctx, inputs, labels)
		}
		return inputs, labels
	}
}

// rmseMetric accumulates a mean squared error and reads back its square
// root, so batches combine correctly before the root is taken.
type rmseMetric struct {
	*metrics.MeanMetric
}

func (m *rmseMetric) UpdateGraph(ctx *context.Context, labels, predictions []*Node) *Node {
	return Sqrt(m.MeanMetric.UpdateGraph(ctx, labels, predictions))
}

func newRMSEMetric(name, shortName string, index int) metrics.Interface {
	mse := func(_ *context.Context, labels, predictions []*Node) *Node {
		return ReduceAllMean(Square(Sub(predictions[index], labels[index])))
	}
	return &rmseMetric{MeanMetric: metrics.NewMeanMetric(name, shortName, "rmse", mse, nil)}
}

// Metric names reported by TrainAndEvaluate.
const (
	MetricEnergyRMSE = "Energy RMSE"
	MetricForceRMSE  = "Force RMSE"
)

// Metrics returns the evaluation metrics for the model, in internal
// units: the energy RMSE and, when force training is enabled, the force
// RMSE.
func (m *Model) Metrics() []metrics.Interface {
	list := []metrics.Interface{newRMSEMetric(MetricEnergyRMSE, "#eRMSE", 0)}
	if m.config.Params.UseForce {
		list = append(list, newRMSEMetric(MetricForceRMSE, "#fRMSE", 1))
	}
	return list
}
