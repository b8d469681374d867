// Package trainer drives training and validation: per-epoch sampling plans,
// the input pipeline, optimizer steps, metrics, summaries and persistence of
// the parameter set.
package trainer

import (
	"context"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ChizhovVadim/DeepDenoiser/internal/config"
	"github.com/ChizhovVadim/DeepDenoiser/internal/dataset"
	"github.com/ChizhovVadim/DeepDenoiser/internal/model"
	"github.com/ChizhovVadim/DeepDenoiser/internal/network"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

const (
	parametersFileName = "parameters.nn"
	summariesFileName  = "summaries.jsonl"
	lossPlotFileName   = "loss.png"
)

type Options struct {
	Validate           bool
	BatchSize          int
	Threads            int
	TrainEpochs        int
	ValidationInterval int
	DataFormat         tensor.DataFormat
}

type split struct {
	name  string
	files []string
	stats dataset.Statistics
}

type Trainer struct {
	config     *config.Config
	setup      *config.Setup
	options    Options
	rnd        *rand.Rand
	step       *Step
	params     *network.Parameters
	optimizer  *network.Optimizer
	schedule   *CosineDecayRestarts
	summaries  *SummaryWriter
	history    LossHistory
	training   split
	validation split
	globalStep int
}

// Run trains, or only validates when options.Validate is set.
func Run(ctx context.Context, cfg *config.Config, setup *config.Setup, options Options) error {
	var t, err = NewTrainer(cfg, setup, options)
	if err != nil {
		return err
	}
	defer t.Close()

	if options.Validate {
		_, err = t.Evaluate(ctx, 0)
		return err
	}
	return t.Train(ctx)
}

func NewTrainer(cfg *config.Config, setup *config.Setup, options Options) (*Trainer, error) {
	if options.BatchSize < 1 {
		return nil, errors.Errorf("batch size %d", options.BatchSize)
	}
	var t = &Trainer{
		config:   cfg,
		setup:    setup,
		options:  options,
		schedule: NewCosineDecayRestarts(cfg.LearningRate),
	}

	var seed = cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	t.rnd = rand.New(rand.NewSource(seed))

	var err error
	t.validation, err = loadSplit(cfg.BaseTFRecordsDirectory, config.ModeValidation, cfg.NumberOfSourcesPerTarget)
	if err != nil {
		return nil, err
	}
	if !options.Validate {
		t.training, err = loadSplit(cfg.BaseTFRecordsDirectory, config.ModeTraining, cfg.NumberOfSourcesPerTarget)
		if err != nil {
			return nil, err
		}
	}

	var modelOptions = setup.ModelOptions
	modelOptions.DataFormat = options.DataFormat
	m, err := model.New(setup.PredictionFeatures, modelOptions)
	if err != nil {
		return nil, err
	}
	var topology = m.Topology(cfg.Network.HiddenLayers)
	t.step = &Step{
		Model:    m,
		Backbone: network.NewPixelNetwork(topology, options.Threads),
		Setup:    setup,
	}

	err = os.MkdirAll(cfg.ModelDirectory, 0o755)
	if err != nil {
		return nil, err
	}
	t.params, err = t.loadParameters(topology)
	if err != nil {
		return nil, err
	}
	t.optimizer = network.NewOptimizer(t.rnd, topology.Size())

	t.summaries, err = NewSummaryWriter(filepath.Join(cfg.ModelDirectory, summariesFileName))
	if err != nil {
		return nil, err
	}
	log.Println("trainer ready",
		"run", t.summaries.Run(),
		"topology", topology,
		"data_format", options.DataFormat,
		"seed", seed)
	return t, nil
}

func (t *Trainer) Close() error {
	return t.summaries.Close()
}

func loadSplit(base, name string, sourcesPerTarget int) (split, error) {
	var directory = filepath.Join(base, name)
	var stats, err = dataset.LoadStatistics(directory)
	if err != nil {
		return split{}, err
	}
	if stats.NumberOfSourcesPerExample < sourcesPerTarget {
		return split{}, errors.Wrapf(ErrTooFewSources, "%v: %d sources per example, %d per target",
			name, stats.NumberOfSourcesPerExample, sourcesPerTarget)
	}
	files, err := dataset.ListFiles(directory)
	if err != nil {
		return split{}, err
	}
	return split{name: name, files: files, stats: stats}, nil
}

// loadParameters continues from the stored parameter set. A missing file
// starts a new one, except in validation only mode.
func (t *Trainer) loadParameters(topology network.Topology) (*network.Parameters, error) {
	var path = filepath.Join(t.config.ModelDirectory, parametersFileName)
	var params, err = network.LoadParameters(path)
	if err == nil {
		if params.Topology.String() != topology.String() {
			return nil, errors.Errorf("%v has topology %v, configuration needs %v", path, params.Topology, topology)
		}
		log.Println("Loaded parameters", path)
		return params, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(err, "load %v", path)
	}
	if t.options.Validate {
		return nil, errors.Wrap(err, "validation needs trained parameters")
	}
	return network.NewParameters(t.rnd, topology), nil
}

func (t *Trainer) saveParameters() error {
	var path = filepath.Join(t.config.ModelDirectory, parametersFileName)
	var err = t.params.Save(path)
	if err != nil {
		return err
	}
	log.Println("Stored parameters", path)
	return nil
}

// Train runs options.TrainEpochs epochs and validates after every
// options.ValidationInterval of them. The parameter set is stored after
// every validation.
func (t *Trainer) Train(ctx context.Context) error {
	log.Println("Train started")
	defer log.Println("Train finished")

	var interval = max(t.options.ValidationInterval, 1)

	for epoch := 0; epoch < t.options.TrainEpochs; {
		var chunk = min(interval, t.options.TrainEpochs-epoch)
		for i := 0; i < chunk; i++ {
			epoch++
			var err = t.trainEpoch(ctx, epoch)
			if err != nil {
				return err
			}
		}

		var _, err = t.Evaluate(ctx, epoch)
		if err != nil {
			return err
		}
		err = t.saveParameters()
		if err != nil {
			return err
		}
		err = t.history.Save(filepath.Join(t.config.ModelDirectory, lossPlotFileName))
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) pipeline(s split, plan *Plan, augment bool) *dataset.Pipeline {
	return &dataset.Pipeline{
		Files:            s.files,
		Loaders:          t.setup.Loaders,
		IndexTuples:      plan.IndexTuples,
		RequiredIndices:  plan.RequiredIndices,
		RGBPermutation:   plan.RGBPermutation,
		TilesHeightWidth: s.stats.TilesHeightWidth,
		Epochs:           1,
		BatchSize:        t.options.BatchSize,
		Threads:          t.options.Threads,
		Augment:          augment,
		Seed:             t.rnd.Int63(),
	}
}

// forEachBatch runs the pipeline and calls f for every batch on the calling
// side of a one batch prefetch channel.
func forEachBatch(ctx context.Context, p *dataset.Pipeline, f func(dataset.Batch) error) error {
	g, ctx := errgroup.WithContext(ctx)

	var batches = make(chan dataset.Batch, 1)

	g.Go(func() error {
		defer close(batches)
		return p.Run(ctx, batches)
	})

	g.Go(func() error {
		for batch := range batches {
			var err = f(batch)
			if err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int) error {
	var plan, err = NewPlan(t.rnd, t.training.stats.NumberOfSourcesPerExample,
		t.config.NumberOfSourceIndexTuples, t.config.NumberOfSourcesPerTarget, t.config.UseRGBPermutations)
	if err != nil {
		return err
	}
	var means = NewMetricMeans()
	err = forEachBatch(ctx, t.pipeline(t.training, plan, true), func(batch dataset.Batch) error {
		var learningRate = t.schedule.At(t.globalStep)
		var err = t.optimizer.Step(t.params, learningRate, func() (float64, error) {
			return t.step.Loss(t.params, batch)
		})
		if err != nil {
			return err
		}
		t.globalStep++

		result, err := t.step.Evaluate(t.params, batch, true)
		if err != nil {
			return err
		}
		means.Add(result, batch.Size)
		result.Scalars[lossKey] = result.Loss
		result.Scalars["learning_rate"] = learningRate
		result.Scalars["batch_size"] = float64(batch.Size)
		return t.summaries.Write(Summary{
			Mode:       config.ModeTraining,
			Step:       t.globalStep,
			Epoch:      epoch,
			Scalars:    result.Scalars,
			Histograms: result.Histograms,
		})
	})
	if err != nil {
		return err
	}

	var metrics = means.Means()
	if metrics == nil {
		return errors.Errorf("epoch %v: training produced no batches", epoch)
	}
	log.Printf("Finished Epoch %v training loss %f steps %v\n", epoch, metrics[lossKey], t.globalStep)
	t.history.AddTraining(t.globalStep, metrics[lossKey])
	return nil
}

// Evaluate runs one pass over the validation split and returns the metric
// means, including the loss.
// Validation tiles are used as stored: no flip, rotation or RGB permutation.
func (t *Trainer) Evaluate(ctx context.Context, epoch int) (map[string]float64, error) {
	var plan, err = NewPlan(t.rnd, t.validation.stats.NumberOfSourcesPerExample,
		t.config.NumberOfSourceIndexTuples, t.config.NumberOfSourcesPerTarget, false)
	if err != nil {
		return nil, err
	}
	var means = NewMetricMeans()
	err = forEachBatch(ctx, t.pipeline(t.validation, plan, false), func(batch dataset.Batch) error {
		var result, err = t.step.Evaluate(t.params, batch, false)
		if err != nil {
			return err
		}
		means.Add(result, batch.Size)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var metrics = means.Means()
	if metrics == nil {
		return nil, errors.New("validation produced no batches")
	}
	for _, key := range sortedKeys(metrics) {
		log.Printf("Validation %v: %f\n", key, metrics[key])
	}
	t.history.AddValidation(t.globalStep, metrics[lossKey])
	err = t.summaries.Write(Summary{
		Mode:    config.ModeValidation,
		Step:    t.globalStep,
		Epoch:   epoch,
		Scalars: metrics,
	})
	if err != nil {
		return nil, err
	}
	return metrics, nil
}
