// Package features groups raw render-pass sources into prediction features
// and prepares them for the network: standardization, variance side
// channels, preserved sources for kernel prediction and feature flags.
package features

import (
	"fmt"

	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// PredictionFeature is the static description of a source feature.
// It is built once per run; per-step data lives in Loaded.
type PredictionFeature struct {
	Name             renderpass.Pass
	NumberOfSources  int
	PreserveSource   bool
	IsTarget         bool
	Standardization  *Standardization
	Variance         Variance
	FeatureFlags     []string
	NumberOfChannels int
}

// InputChannels is the width contributed by all sources and their variances.
func (pf *PredictionFeature) InputChannels() int {
	return pf.NumberOfSources * (pf.NumberOfChannels + pf.Variance.Channels(pf.NumberOfChannels))
}

type State int

const (
	Unloaded State = iota
	SourcesLoaded
	Standardized
)

// Loaded is the step-scoped state of a prediction feature.
type Loaded struct {
	*PredictionFeature
	State           State
	Source          []*tensor.Tensor
	PreservedSource *tensor.Tensor
	// VarianceSource is nil when variance is disabled.
	VarianceSource []*tensor.Tensor
	Prediction     *tensor.Tensor
}

// Load binds this step's sources, ordered by source index.
func (pf *PredictionFeature) Load(sources []*tensor.Tensor) (*Loaded, error) {
	if len(sources) != pf.NumberOfSources {
		return nil, fmt.Errorf("%v: %d sources, expected %d", pf.Name, len(sources), pf.NumberOfSources)
	}
	for i, s := range sources {
		if s == nil {
			return nil, fmt.Errorf("%v: source %d missing", pf.Name, i)
		}
		if s.C() != pf.NumberOfChannels {
			return nil, fmt.Errorf("%v: source %d has %d channels, expected %d", pf.Name, i, s.C(), pf.NumberOfChannels)
		}
	}
	var source = make([]*tensor.Tensor, len(sources))
	copy(source, sources)
	return &Loaded{
		PredictionFeature: pf,
		State:             SourcesLoaded,
		Source:            source,
	}, nil
}

// Standardize moves the feature from SourcesLoaded to Standardized.
// Variance is computed either on the raw or on the standardized sources.
func (lf *Loaded) Standardize() {
	if lf.State != SourcesLoaded {
		panic(fmt.Sprintf("features: standardize %v in state %d", lf.Name, lf.State))
	}
	if lf.Variance.UseVariance {
		lf.VarianceSource = make([]*tensor.Tensor, 0, lf.NumberOfSources)
	}

	if lf.Variance.UseVariance && lf.Variance.ComputeBeforeStandardization {
		for index := 0; index < lf.NumberOfSources; index++ {
			lf.appendVariance(index)
		}
	}

	if lf.PreserveSource {
		lf.PreservedSource = lf.Source[0]
	}
	if lf.Standardization != nil {
		for index := range lf.Source {
			lf.Source[index] = lf.Standardization.Standardize(lf.Source[index], index)
		}
	}

	if lf.Variance.UseVariance && !lf.Variance.ComputeBeforeStandardization {
		for index := 0; index < lf.NumberOfSources; index++ {
			lf.appendVariance(index)
		}
	}
	lf.State = Standardized
}

func (lf *Loaded) appendVariance(index int) {
	if len(lf.VarianceSource) != index {
		panic(fmt.Sprintf("features: %v variance %d computed with %d present", lf.Name, index, len(lf.VarianceSource)))
	}
	lf.VarianceSource = append(lf.VarianceSource, lf.Variance.Compute(lf.Source[index]))
}

// Inputs returns source index followed by its variance, when enabled.
func (lf *Loaded) Inputs(index int) []*tensor.Tensor {
	if lf.VarianceSource == nil {
		return []*tensor.Tensor{lf.Source[index]}
	}
	return []*tensor.Tensor{lf.Source[index], lf.VarianceSource[index]}
}

func (lf *Loaded) AddPrediction(prediction *tensor.Tensor) {
	if !lf.IsTarget {
		panic(fmt.Sprintf("features: adding a prediction for %v which is not a target", lf.Name))
	}
	lf.Prediction = prediction
}

func (lf *Loaded) PredictionInvertStandardize() {
	if lf.Standardization != nil {
		lf.Prediction = lf.Standardization.InvertStandardize(lf.Prediction)
	}
}
