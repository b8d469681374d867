package config

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ChizhovVadim/DeepDenoiser/internal/dataset"
	"github.com/ChizhovVadim/DeepDenoiser/internal/features"
	"github.com/ChizhovVadim/DeepDenoiser/internal/loss"
	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
	"github.com/ChizhovVadim/DeepDenoiser/internal/model"
	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
)

// Setup is everything a run builds once from its configuration.
type Setup struct {
	PredictionFeatures []*features.PredictionFeature
	FeatureFlags       *features.FeatureFlags
	Loaders            []*dataset.FeatureLoader
	TrainingFeatures   []*loss.TrainingFeature
	CombinedFeatures   []*loss.TrainingFeature
	// CombinedImage is nil when the image loss is not used.
	CombinedImage *loss.TrainingFeature
	ModelOptions  model.Options
}

// Build validates the configuration and resolves every name through the
// render pass registry. Features are processed in name order, which fixes the
// channel order of the network input and output.
func (c *Config) Build() (*Setup, error) {
	if !c.hasMode(ModeTraining) {
		return nil, errors.New("no training mode found")
	}
	if !c.hasMode(ModeValidation) {
		return nil, errors.New("no validation mode found")
	}
	if c.NumberOfSourceIndexTuples < 1 {
		return nil, errors.Errorf("number_of_source_index_tuples %d", c.NumberOfSourceIndexTuples)
	}
	if c.NumberOfSourcesPerTarget < 1 {
		return nil, errors.Errorf("number_of_sources_per_target %d", c.NumberOfSourcesPerTarget)
	}
	if c.UseKernelPrediction && (c.KernelSize < 1 || c.KernelSize%2 == 0) {
		return nil, errors.Errorf("kernel_size %d must be odd and positive", c.KernelSize)
	}
	difference, err := ml.ParseLossDifference(c.LossDifference)
	if err != nil {
		return nil, err
	}

	var s = &Setup{}
	var names = make([]string, 0, len(c.Features))
	for name := range c.Features {
		names = append(names, name)
	}
	sort.Strings(names)

	var byPass = make(map[renderpass.Pass]*loss.TrainingFeature)
	for _, name := range names {
		var f = c.Features[name]
		pass, err := renderpass.Parse(name)
		if err != nil {
			return nil, err
		}
		if err := f.validate(pass); err != nil {
			return nil, errors.Wrap(err, name)
		}
		if !f.IsSource {
			continue
		}
		s.PredictionFeatures = append(s.PredictionFeatures, c.predictionFeature(pass, f))
		s.Loaders = append(s.Loaders, &dataset.FeatureLoader{
			Name:             pass,
			IsTarget:         f.IsTarget,
			NumberOfChannels: f.NumberOfChannels,
		})
		if f.IsTarget {
			var tf = f.trainingFeature(pass, difference)
			s.TrainingFeatures = append(s.TrainingFeatures, tf)
			byPass[pass] = tf
		}
	}
	if len(s.TrainingFeatures) == 0 {
		return nil, errors.New("no feature is both source and target")
	}
	// the mask of a direct or indirect pass comes from its color target
	for _, tf := range s.TrainingFeatures {
		if colorPass, ok := tf.Pass.ColorPass(); ok {
			if _, found := byPass[colorPass]; !found {
				return nil, errors.Errorf("%v needs %v as source and target", tf.Pass, colorPass)
			}
		}
	}

	if c.UseSingleFeaturePrediction {
		s.FeatureFlags = features.NewFeatureFlags(c.FeatureFlags)
		for _, pf := range s.PredictionFeatures {
			if !pf.IsTarget {
				continue
			}
			if err := s.FeatureFlags.AddRenderPass(pf.Name, pf.FeatureFlags); err != nil {
				return nil, err
			}
		}
		s.FeatureFlags.Freeze()
	}

	if err := c.buildCombined(s, difference, byPass); err != nil {
		return nil, err
	}

	s.ModelOptions = model.Options{
		UseKernelPrediction:        c.UseKernelPrediction,
		KernelSize:                 c.KernelSize,
		UseSingleFeaturePrediction: c.UseSingleFeaturePrediction,
		FeatureFlags:               s.FeatureFlags,
	}
	// model.New checks the shared widths of the single-feature architecture
	if _, err := model.New(s.PredictionFeatures, s.ModelOptions); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *Feature) validate(pass renderpass.Pass) error {
	if f.NumberOfChannels < 1 {
		return errors.Errorf("number_of_channels %d", f.NumberOfChannels)
	}
	if f.IsTarget && !f.IsSource {
		return errors.New("a target must also be a source")
	}
	if f.Standardization.Variance <= 0 {
		return errors.Errorf("standardization variance %v must be positive", f.Standardization.Variance)
	}
	if f.LossWeightsMasked != nil {
		if f.LossWeightsMasked.MSSSIM > 0 {
			return errors.Wrap(loss.ErrMaskedMSSSIMNotImplemented, "loss_weights_masked")
		}
		if weights(*f.LossWeightsMasked).Any() && !pass.IsDirectOrIndirect() {
			return errors.Errorf("masked loss weights on %v which has no mask", pass)
		}
	}
	if f.StatisticsMasked != nil {
		if f.StatisticsMasked.TrackMSSSIM {
			return errors.Wrap(loss.ErrMaskedMSSSIMNotImplemented, "statistics_masked")
		}
		if statistics(*f.StatisticsMasked) != (loss.Statistics{}) && !pass.IsDirectOrIndirect() {
			return errors.Errorf("masked statistics on %v which has no mask", pass)
		}
	}
	return nil
}

func (c *Config) predictionFeature(pass renderpass.Pass, f Feature) *features.PredictionFeature {
	var pf = &features.PredictionFeature{
		Name:            pass,
		NumberOfSources: c.NumberOfSourcesPerTarget,
		PreserveSource:  c.UseKernelPrediction,
		IsTarget:        f.IsTarget,
		Standardization: &features.Standardization{
			UseLog1p: f.Standardization.UseLog1p,
			Mean:     f.Standardization.Mean,
			Variance: f.Standardization.Variance,
		},
		Variance: features.Variance{
			UseVariance:                  f.FeatureVariance.UseVariance,
			RelativeVariance:             f.FeatureVariance.RelativeVariance,
			ComputeBeforeStandardization: f.FeatureVariance.ComputeBeforeStandardization,
			CompressToOneChannel:         f.FeatureVariance.CompressToOneChannel,
		},
		FeatureFlags:     f.FeatureFlags,
		NumberOfChannels: f.NumberOfChannels,
	}
	return pf
}

func (f *Feature) trainingFeature(pass renderpass.Pass, difference ml.LossDifference) *loss.TrainingFeature {
	var maskedWeights loss.Weights
	if f.LossWeightsMasked != nil {
		maskedWeights = weights(*f.LossWeightsMasked)
	}
	var maskedStatistics loss.Statistics
	if f.StatisticsMasked != nil {
		maskedStatistics = statistics(*f.StatisticsMasked)
	}
	return loss.NewSimple(pass, difference,
		weights(f.LossWeights), maskedWeights,
		statistics(f.Statistics), maskedStatistics)
}

// buildCombined creates the combined light paths that carry a loss weight or
// are needed by the combined image, and the combined image itself.
func (c *Config) buildCombined(s *Setup, difference ml.LossDifference, byPass map[renderpass.Pass]*loss.TrainingFeature) error {
	var useImage = weights(c.CombinedImage.LossWeights).Any()

	var names = make([]string, 0, len(c.CombinedFeatures))
	for name := range c.CombinedFeatures {
		names = append(names, name)
	}
	sort.Strings(names)

	var combined = make(map[renderpass.Pass]*loss.TrainingFeature)
	for _, name := range names {
		var cf = c.CombinedFeatures[name]
		lightPath, err := renderpass.ParseLightPath(name)
		if err != nil {
			return err
		}
		if !weights(cf.LossWeights).Any() && !useImage {
			continue
		}
		var colorPass, directPass, indirectPass, _ = renderpass.LightPathParts(lightPath)
		var parts [3]*loss.TrainingFeature
		for i, pass := range []renderpass.Pass{colorPass, directPass, indirectPass} {
			var tf, ok = byPass[pass]
			if !ok {
				return errors.Errorf("combined feature %v needs %v as source and target", lightPath, pass)
			}
			parts[i] = tf
		}
		var tf = loss.NewCombinedLightPath(lightPath, difference, parts[0], parts[1], parts[2],
			weights(cf.LossWeights), statistics(cf.Statistics))
		s.CombinedFeatures = append(s.CombinedFeatures, tf)
		combined[lightPath] = tf
	}

	if !useImage {
		return nil
	}
	var parts [6]*loss.TrainingFeature
	for i, pass := range renderpass.ImageParts {
		var tf, ok = combined[pass]
		if !ok {
			tf, ok = byPass[pass]
		}
		if !ok {
			return errors.Errorf("combined image needs %v", pass)
		}
		parts[i] = tf
	}
	s.CombinedImage = loss.NewCombinedImage(difference, parts,
		weights(c.CombinedImage.LossWeights), statistics(c.CombinedImage.Statistics))
	return nil
}

func weights(w LossWeights) loss.Weights {
	return loss.Weights{Mean: w.Mean, Variation: w.Variation, MSSSIM: w.MSSSIM}
}

func statistics(s Statistics) loss.Statistics {
	return loss.Statistics{
		TrackMean:                         s.TrackMean,
		TrackVariation:                    s.TrackVariation,
		TrackMSSSIM:                       s.TrackMSSSIM,
		TrackDifferenceHistogram:          s.TrackDifferenceHistogram,
		TrackVariationDifferenceHistogram: s.TrackVariationDifferenceHistogram,
	}
}
