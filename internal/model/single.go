package model

import (
	"github.com/ChizhovVadim/DeepDenoiser/internal/features"
	"github.com/ChizhovVadim/DeepDenoiser/internal/network"
)

// predictSingleFeatures calls the backbone once per target feature. Every call
// gets the same params, so the network learns one denoising function for all
// render passes; feature flags tell it which pass it is looking at.
func (m *Model) predictSingleFeatures(backbone Backbone, params *network.Parameters, loaded []*features.Loaded) error {
	var shared networkInputs
	for _, lf := range loaded {
		if !lf.IsTarget {
			shared.addAuxiliary(lf)
		}
	}

	for _, lf := range loaded {
		if !lf.IsTarget {
			continue
		}
		var inputs = networkInputs{auxiliary: shared.auxiliary}
		inputs.addTarget(lf)
		var primary = lf.Source[0]
		var flags = m.FeatureFlags.Planes(lf.Name, primary.N(), primary.H(), primary.W())

		var output, err = m.forward(backbone, params, inputs.concat(flags), m.outputChannels(lf.PredictionFeature))
		if err != nil {
			return err
		}
		m.finish(lf, output)
	}
	return nil
}
