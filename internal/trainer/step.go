package trainer

import (
	"github.com/ChizhovVadim/DeepDenoiser/internal/config"
	"github.com/ChizhovVadim/DeepDenoiser/internal/dataset"
	"github.com/ChizhovVadim/DeepDenoiser/internal/loss"
	"github.com/ChizhovVadim/DeepDenoiser/internal/model"
	"github.com/ChizhovVadim/DeepDenoiser/internal/network"
	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// Step evaluates the model on a batch. It holds only static objects built
// from the configuration; every call works on its own tensors.
type Step struct {
	Model    *model.Model
	Backbone model.Backbone
	Setup    *config.Setup
}

// Result of a step with loss. Histograms are filled only when requested.
type Result struct {
	Loss       float64
	Scalars    map[string]float64
	Histograms map[string]loss.Histogram
}

// Predict returns the denoised target features without touching targets.
func (s *Step) Predict(params *network.Parameters, sources map[renderpass.Pass][]*tensor.Tensor) (map[renderpass.Pass]*tensor.Tensor, error) {
	return s.Model.Predict(s.Backbone, params, sources)
}

func (s *Step) bind(params *network.Parameters, batch dataset.Batch) (*loss.Bound, error) {
	var predictions, err = s.Predict(params, batch.Sources)
	if err != nil {
		return nil, err
	}
	return loss.Bind(s.Setup.TrainingFeatures, s.Setup.CombinedFeatures, s.Setup.CombinedImage,
		predictions, batch.Targets)
}

// Loss is the total loss of the batch.
func (s *Step) Loss(params *network.Parameters, batch dataset.Batch) (float64, error) {
	var bound, err = s.bind(params, batch)
	if err != nil {
		return 0, err
	}
	return loss.TotalLoss(bound)
}

// Evaluate computes the total loss and the tracked statistics of every
// training feature.
func (s *Step) Evaluate(params *network.Parameters, batch dataset.Batch, histograms bool) (*Result, error) {
	var bound, err = s.bind(params, batch)
	if err != nil {
		return nil, err
	}
	var result = &Result{
		Scalars:    make(map[string]float64),
		Histograms: make(map[string]loss.Histogram),
	}
	result.Loss, err = loss.TotalLoss(bound)
	if err != nil {
		return nil, err
	}
	for _, e := range bound.All() {
		scalars, err := loss.TrackedScalars(e)
		if err != nil {
			return nil, err
		}
		for k, v := range scalars {
			result.Scalars[k] = v
		}
		if histograms {
			for k, v := range loss.TrackedHistograms(e) {
				result.Histograms[k] = v
			}
		}
	}
	return result, nil
}
