package potential

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/pinn/dataio"
)

// TrainOptions control one TrainAndEvaluate run. They mirror the
// command-line flags of pinn_train.
type TrainOptions struct {
	// TrainData and EvalData are paths to dataio dataset files.
	TrainData, EvalData string

	// TrainSteps is the target global step: a restarted run continues
	// from the checkpointed step up to this total.
	TrainSteps int

	// EvalSteps caps the number of evaluation batches; 0 evaluates the
	// whole eval dataset.
	EvalSteps int

	// BatchSize for training and evaluation.
	BatchSize int

	// Preprocess runs the network's preprocessing in the data pipeline,
	// so its results are computed once instead of on every step.
	Preprocess bool

	// CacheData materializes the transformed batches in memory.
	CacheData bool

	// ShuffleBuffer is the size (in batches) of the training shuffle
	// buffer; <= 1 disables shuffling.
	ShuffleBuffer int

	// RegenDress refits the configured per-element energy baselines on
	// the training data before training.
	RegenDress bool

	// LearningRate for the Adam optimizer; <= 0 uses the default.
	LearningRate float64

	// CheckpointPeriod is the wall-clock interval between checkpoint
	// saves during training; 0 uses a default of 3 minutes.
	CheckpointPeriod time.Duration

	// Quiet disables the progress bar.
	Quiet bool
}

// numCheckpointsToKeep in the model directory.
const numCheckpointsToKeep = 3

// TrainAndEvaluate trains the configured model on the training data and
// returns the final evaluation metrics, keyed by metric name, in
// internal units. Training state is checkpointed under cfg.ModelDir and
// restored from there on restart, so the target step count is global,
// not per-invocation.
func TrainAndEvaluate(backend backends.Backend, cfg *Config, opts *TrainOptions) (map[string]float64, error) {
	if cfg.ModelDir == "" {
		return nil, errors.New("potential: configuration has no model_dir")
	}
	if opts.BatchSize < 1 {
		return nil, errors.Errorf("potential: batch size must be >= 1, got %d", opts.BatchSize)
	}
	trainRecords, err := dataio.Load(opts.TrainData)
	if err != nil {
		return nil, err
	}
	evalRecords, err := dataio.Load(opts.EvalData)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("loaded %s training and %s evaluation structures",
		humanize.Comma(int64(trainRecords.NumExamples())), humanize.Comma(int64(evalRecords.NumExamples())))

	if opts.RegenDress {
		if err = RegenDress(cfg, trainRecords); err != nil {
			return nil, err
		}
		klog.V(1).Infof("refit energy dress: %v", cfg.Params.EDress)
	}
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.New()
	if opts.LearningRate > 0 {
		ctx.SetParam(optimizers.ParamLearningRate, opts.LearningRate)
	}
	configText, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}
	ctx.SetParam(ParamConfig, string(configText))

	// The checkpoint directory holds the model variables, the global step
	// and the serialized configuration. Loading restores all three.
	checkpoint, err := checkpoints.Build(ctx).
		Dir(cfg.ModelDir).
		Keep(numCheckpointsToKeep).
		ExcludeParams(ParamConfig).
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "potential: checkpoints in %q", cfg.ModelDir)
	}

	mapFn := model.PipelineMapGraph(opts.Preprocess)
	mapCtx := context.New()
	trainDS, err := dataio.NewPipeline(backend, trainRecords, "train").
		BatchSize(opts.BatchSize).
		MapGraph(mapCtx, mapFn).
		Cache(opts.CacheData).
		Train(opts.ShuffleBuffer)
	if err != nil {
		return nil, err
	}
	evalDS, err := dataio.NewPipeline(backend, evalRecords, "eval").
		BatchSize(opts.BatchSize).
		MapGraph(mapCtx, mapFn).
		Cache(opts.CacheData).
		Eval()
	if err != nil {
		return nil, err
	}

	// Convention scope for model variables; the Calculator rebuilds the
	// same scopes when restoring a checkpoint.
	modelCtx := ctx.In("model")

	// Separate metric instances for training and evaluation: each keeps
	// its own running state.
	trainer := train.NewTrainer(backend, modelCtx, model.Forward,
		model.Loss,
		optimizers.Adam().Done(),
		model.Metrics(), // trainMetrics
		model.Metrics()) // evalMetrics
	loop := train.NewLoop(trainer)
	if !opts.Quiet {
		commandline.AttachProgressBar(loop)
	}

	period := opts.CheckpointPeriod
	if period <= 0 {
		period = 3 * time.Minute
	}
	train.PeriodicCallback(loop, period, true, "saving checkpoint", 100,
		func(loop *train.Loop, metrics []*tensors.Tensor) error {
			return checkpoint.Save()
		})

	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep > 0 {
		klog.V(1).Infof("resuming from global step %d", globalStep)
		trainer.SetContext(modelCtx.Reuse())
	}
	if globalStep < opts.TrainSteps {
		if _, err = loop.RunSteps(trainDS, opts.TrainSteps-globalStep); err != nil {
			return nil, errors.WithMessage(err, "potential: training")
		}
	}
	if err = checkpoint.Save(); err != nil {
		return nil, errors.WithMessage(err, "potential: saving final checkpoint")
	}

	if opts.EvalSteps > 0 {
		evalDS = datasets.Take(evalDS, opts.EvalSteps)
	}
	values, err := trainer.Eval(evalDS)
	if err != nil {
		return nil, errors.WithMessage(err, "potential: evaluating")
	}
	results := make(map[string]float64, len(values))
	for i, metric := range trainer.EvalMetrics() {
		value := values[i]
		if !value.Shape().IsScalar() {
			continue
		}
		results[metric.Name()] = scalarToFloat64(value)
		klog.V(1).Infof("eval %s: %s", metric.Name(), metric.PrettyPrint(value))
	}
	return results, nil
}

// scalarToFloat64 reads a scalar tensor of any float dtype.
func scalarToFloat64(t *tensors.Tensor) float64 {
	switch v := t.Value().(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		panic(fmt.Sprintf("metric value has unexpected type %T", v))
	}
}
