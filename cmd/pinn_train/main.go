// pinn_train trains a neural-network interatomic potential and reports
// its final evaluation metrics.
//
// The model is described by a YAML parameter file (see potential.Config)
// and the datasets are dataio files. Example:
//
//	pinn_train --params_file=pinet.yaml --model_dir=/tmp/pinet \
//	  --train_data=train.rec --eval_data=eval.rec \
//	  --train_steps=100000 --batch_size=50
//
// Training is resumable: the model directory holds checkpoints and the
// effective configuration, and --train_steps is a global target.
package main

import (
	"flag"
	"fmt"
	"sort"

	"github.com/gomlx/gomlx/backends"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/pinn/potential"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagModelDir      = flag.String("model_dir", "", "Directory for checkpoints and the effective configuration. Overrides model_dir from the parameter file.")
	flagParamsFile    = flag.String("params_file", "", "YAML parameter file describing the model.")
	flagTrainData     = flag.String("train_data", "", "Training dataset file.")
	flagEvalData      = flag.String("eval_data", "", "Evaluation dataset file.")
	flagTrainSteps    = flag.Int("train_steps", 1_000_000, "Global number of training steps: restarted runs continue up to this total.")
	flagEvalSteps     = flag.Int("eval_steps", 100, "Number of evaluation batches; 0 evaluates the whole eval dataset.")
	flagBatchSize     = flag.Int("batch_size", 10, "Number of structures per batch.")
	flagPreprocess    = flag.Bool("preprocess", false, "Run the network's preprocessing in the data pipeline.")
	flagCacheData     = flag.Bool("cache_data", true, "Materialize the transformed batches in memory.")
	flagShuffleBuffer = flag.Int("shuffle_buffer", 100, "Size of the training shuffle buffer, in batches; <= 1 disables shuffling.")
	flagRegenDress    = flag.Bool("regen_dress", true, "Refit the per-element energy baselines on the training data before training.")
	flagLearningRate  = flag.Float64("learning_rate", 0, "Adam learning rate; 0 uses the default.")
	flagQuiet         = flag.Bool("quiet", false, "Disable the progress bar.")
	flagBackend       = flag.String("backend", "", "GoMLX backend configuration, e.g. \"xla:cpu\". Empty uses $GOMLX_BACKEND or the default backend.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagParamsFile == "" || *flagTrainData == "" || *flagEvalData == "" {
		klog.Exit("flags --params_file, --train_data and --eval_data are required")
	}

	cfg := must.M1(potential.LoadConfig(*flagParamsFile))
	if *flagModelDir != "" {
		cfg.ModelDir = *flagModelDir
	}

	if *flagBackend != "" {
		backends.DefaultConfig = *flagBackend
	}
	backend := backends.MustNew()
	klog.V(1).Infof("backend %q: %s", backend.Name(), backend.Description())

	results := must.M1(potential.TrainAndEvaluate(backend, cfg, &potential.TrainOptions{
		TrainData:     *flagTrainData,
		EvalData:      *flagEvalData,
		TrainSteps:    *flagTrainSteps,
		EvalSteps:     *flagEvalSteps,
		BatchSize:     *flagBatchSize,
		Preprocess:    *flagPreprocess,
		CacheData:     *flagCacheData,
		ShuffleBuffer: *flagShuffleBuffer,
		RegenDress:    *flagRegenDress,
		LearningRate:  *flagLearningRate,
		Quiet:         *flagQuiet,
	}))

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s:\t%.6g\n", name, results[name])
	}
}
