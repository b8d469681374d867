package model

import (
	"github.com/ChizhovVadim/DeepDenoiser/internal/features"
	"github.com/ChizhovVadim/DeepDenoiser/internal/network"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// networkInputs groups the channels-last inputs of one backbone call.
type networkInputs struct {
	prediction          []*tensor.Tensor
	auxiliaryPrediction []*tensor.Tensor
	auxiliary           []*tensor.Tensor
}

// addTarget adds the primary source of a target feature as prediction input
// and every other source as auxiliary prediction input, each followed by its
// variance.
func (in *networkInputs) addTarget(lf *features.Loaded) {
	for index := 0; index < lf.NumberOfSources; index++ {
		if index == 0 {
			in.prediction = append(in.prediction, lf.Inputs(index)...)
		} else {
			in.auxiliaryPrediction = append(in.auxiliaryPrediction, lf.Inputs(index)...)
		}
	}
}

func (in *networkInputs) addAuxiliary(lf *features.Loaded) {
	for index := 0; index < lf.NumberOfSources; index++ {
		in.auxiliary = append(in.auxiliary, lf.Inputs(index)...)
	}
}

// concat joins prediction, auxiliary prediction and auxiliary inputs, in that
// order, followed by extra planes.
func (in *networkInputs) concat(extra ...*tensor.Tensor) *tensor.Tensor {
	var all = make([]*tensor.Tensor, 0, len(in.prediction)+len(in.auxiliaryPrediction)+len(in.auxiliary)+len(extra))
	all = append(all, in.prediction...)
	all = append(all, in.auxiliaryPrediction...)
	all = append(all, in.auxiliary...)
	for _, t := range extra {
		if t != nil {
			all = append(all, t)
		}
	}
	return tensor.Concat(all...)
}

func (m *Model) predictCombinedFeatures(backbone Backbone, params *network.Parameters, loaded []*features.Loaded) error {
	var inputs networkInputs
	for _, lf := range loaded {
		if lf.IsTarget {
			inputs.addTarget(lf)
		} else {
			inputs.addAuxiliary(lf)
		}
	}

	var outputs, err = m.forward(backbone, params, inputs.concat(), m.OutputWidth())
	if err != nil {
		return err
	}

	var targets []*features.Loaded
	var sizeSplits []int
	for _, lf := range loaded {
		if lf.IsTarget {
			targets = append(targets, lf)
			sizeSplits = append(sizeSplits, m.outputChannels(lf.PredictionFeature))
		}
	}
	for i, prediction := range tensor.Split(outputs, sizeSplits) {
		m.finish(targets[i], prediction)
	}
	return nil
}
