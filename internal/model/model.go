// Package model assembles prediction features into backbone inputs, runs the
// backbone and turns its output back into per-feature predictions.
//
// Two architectures are supported. The combined one feeds every feature into
// a single backbone call and splits the output per target. The single-feature
// one calls the backbone once per target feature with the same parameter set.
package model

import (
	"fmt"

	"github.com/ChizhovVadim/DeepDenoiser/internal/features"
	"github.com/ChizhovVadim/DeepDenoiser/internal/network"
	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// Backbone maps an assembled input to an output of the same height and
// width. The tensor format (channels first or last) is preserved.
type Backbone interface {
	Forward(params *network.Parameters, input *tensor.Tensor) (*tensor.Tensor, error)
}

type Options struct {
	UseKernelPrediction        bool
	KernelSize                 int
	UseSingleFeaturePrediction bool
	FeatureFlags               *features.FeatureFlags
	DataFormat                 tensor.DataFormat
}

type Model struct {
	Options
	features []*features.PredictionFeature
	targets  []*features.PredictionFeature
}

// New takes the prediction features in declaration order. Targets are
// predicted, and their predictions split, in that order.
func New(predictionFeatures []*features.PredictionFeature, options Options) (*Model, error) {
	var m = &Model{
		Options:  options,
		features: predictionFeatures,
	}
	for _, pf := range predictionFeatures {
		if pf.IsTarget {
			m.targets = append(m.targets, pf)
		}
	}
	if len(m.targets) == 0 {
		return nil, fmt.Errorf("no target feature")
	}
	if options.UseKernelPrediction && (options.KernelSize < 1 || options.KernelSize%2 == 0) {
		return nil, fmt.Errorf("kernel size %d must be odd and positive", options.KernelSize)
	}
	if options.UseSingleFeaturePrediction {
		var in, out = m.singleFeatureWidths(m.targets[0])
		for _, pf := range m.targets[1:] {
			var featureIn, featureOut = m.singleFeatureWidths(pf)
			if featureIn != in || featureOut != out {
				return nil, fmt.Errorf("single feature prediction shares one network: %v has %d/%d channels, %v has %d/%d",
					m.targets[0].Name, in, out, pf.Name, featureIn, featureOut)
			}
		}
	}
	return m, nil
}

func (m *Model) Features() []*features.PredictionFeature { return m.features }

func (m *Model) Targets() []*features.PredictionFeature { return m.targets }

// outputChannels is the backbone output width for one target feature.
func (m *Model) outputChannels(pf *features.PredictionFeature) int {
	if m.UseKernelPrediction {
		return m.KernelSize * m.KernelSize
	}
	return pf.NumberOfChannels
}

func (m *Model) auxiliaryWidth() int {
	var width = 0
	for _, pf := range m.features {
		if !pf.IsTarget {
			width += pf.InputChannels()
		}
	}
	return width
}

func (m *Model) singleFeatureWidths(pf *features.PredictionFeature) (in, out int) {
	return pf.InputChannels() + m.auxiliaryWidth() + m.FeatureFlags.Channels(), m.outputChannels(pf)
}

// InputWidth is the number of channels of one backbone input.
func (m *Model) InputWidth() int {
	if m.UseSingleFeaturePrediction {
		var in, _ = m.singleFeatureWidths(m.targets[0])
		return in
	}
	var width = 0
	for _, pf := range m.features {
		width += pf.InputChannels()
	}
	return width
}

// OutputWidth is the number of channels of one backbone output.
func (m *Model) OutputWidth() int {
	if m.UseSingleFeaturePrediction {
		return m.outputChannels(m.targets[0])
	}
	var width = 0
	for _, pf := range m.targets {
		width += m.outputChannels(pf)
	}
	return width
}

// Topology is the backbone topology that fits this model.
func (m *Model) Topology(hiddenNeurons []uint32) network.Topology {
	return network.NewTopology(uint32(m.InputWidth()), uint32(m.OutputWidth()), hiddenNeurons)
}

// Predict loads and standardizes this step's sources and returns the final
// prediction of every target feature. Sources are keyed by render pass and
// ordered by source index.
func (m *Model) Predict(
	backbone Backbone,
	params *network.Parameters,
	sources map[renderpass.Pass][]*tensor.Tensor,
) (map[renderpass.Pass]*tensor.Tensor, error) {
	var loaded = make([]*features.Loaded, len(m.features))
	for i, pf := range m.features {
		var lf, err = pf.Load(sources[pf.Name])
		if err != nil {
			return nil, err
		}
		lf.Standardize()
		loaded[i] = lf
	}

	var err error
	if m.UseSingleFeaturePrediction {
		err = m.predictSingleFeatures(backbone, params, loaded)
	} else {
		err = m.predictCombinedFeatures(backbone, params, loaded)
	}
	if err != nil {
		return nil, err
	}

	var predictions = make(map[renderpass.Pass]*tensor.Tensor, len(m.targets))
	for _, lf := range loaded {
		if lf.IsTarget {
			predictions[lf.Name] = lf.Prediction
		}
	}
	return predictions, nil
}

// forward runs the backbone on a channels-last input, transposing around the
// call when the model runs channels first.
func (m *Model) forward(backbone Backbone, params *network.Parameters, input *tensor.Tensor, outputChannels int) (*tensor.Tensor, error) {
	var output, err = backbone.Forward(params, tensor.Transpose(input, m.DataFormat))
	if err != nil {
		return nil, err
	}
	output = tensor.Transpose(output, tensor.ChannelsLast)
	if output.N() != input.N() || output.H() != input.H() || output.W() != input.W() || output.C() != outputChannels {
		return nil, fmt.Errorf("backbone returned %v for input %v, expected %d channels", output, input, outputChannels)
	}
	return output, nil
}

// finish turns a raw backbone output into the final prediction: inverse
// standardization, or kernel prediction over the preserved source.
func (m *Model) finish(lf *features.Loaded, output *tensor.Tensor) {
	lf.AddPrediction(output)
	if !m.UseKernelPrediction {
		lf.PredictionInvertStandardize()
		return
	}
	if !lf.PreserveSource || lf.PreservedSource == nil {
		panic(fmt.Sprintf("model: kernel prediction for %v without preserved source", lf.Name))
	}
	lf.AddPrediction(KernelPrediction(lf.PreservedSource, lf.Prediction, m.KernelSize))
}
