// Package config reads the JSON run configuration and builds the feature set
// of a run from it.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

const (
	ModeTraining   = "training"
	ModeValidation = "validation"

	DefaultLearningRate = 1e-4
)

var DefaultHiddenLayers = []uint32{32, 32}

type Config struct {
	ModelDirectory             string                     `json:"model_directory"`
	BaseTFRecordsDirectory     string                     `json:"base_tfrecords_directory"`
	Modes                      []string                   `json:"modes"`
	NumberOfSourceIndexTuples  int                        `json:"number_of_source_index_tuples"`
	NumberOfSourcesPerTarget   int                        `json:"number_of_sources_per_target"`
	UseRGBPermutations         bool                       `json:"use_rgb_permutations"`
	LossDifference             string                     `json:"loss_difference"`
	UseKernelPrediction        bool                       `json:"use_kernel_predicion"`
	KernelSize                 int                        `json:"kernel_size"`
	UseSingleFeaturePrediction bool                       `json:"use_single_feature_prediction"`
	FeatureFlags               map[string]float64         `json:"feature_flags"`
	Features                   map[string]Feature         `json:"features"`
	CombinedFeatures           map[string]CombinedFeature `json:"combined_features"`
	CombinedImage              CombinedFeature            `json:"combined_image"`

	LearningRate float64 `json:"learning_rate"`
	Network      Network `json:"network"`
	Seed         int64   `json:"seed"`
}

type Feature struct {
	IsSource         bool            `json:"is_source"`
	IsTarget         bool            `json:"is_target"`
	NumberOfChannels int             `json:"number_of_channels"`
	FeatureVariance  Variance        `json:"feature_variance"`
	Standardization  Standardization `json:"standardization"`
	LossWeights      LossWeights     `json:"loss_weights"`
	// Masked weights and statistics are optional and default to zero.
	LossWeightsMasked *LossWeights `json:"loss_weights_masked"`
	Statistics        Statistics   `json:"statistics"`
	StatisticsMasked  *Statistics  `json:"statistics_masked"`
	FeatureFlags      []string     `json:"feature_flags"`
}

type Variance struct {
	UseVariance                  bool `json:"use_variance"`
	RelativeVariance             bool `json:"relative_variance"`
	ComputeBeforeStandardization bool `json:"compute_before_standardization"`
	CompressToOneChannel         bool `json:"compress_to_one_channel"`
}

type Standardization struct {
	UseLog1p bool    `json:"use_log1p"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

type LossWeights struct {
	Mean      float64 `json:"mean"`
	Variation float64 `json:"variation"`
	MSSSIM    float64 `json:"ms_ssim"`
}

type Statistics struct {
	TrackMean                         bool `json:"track_mean"`
	TrackVariation                    bool `json:"track_variation"`
	TrackMSSSIM                       bool `json:"track_ms_ssim"`
	TrackDifferenceHistogram          bool `json:"track_difference_histogram"`
	TrackVariationDifferenceHistogram bool `json:"track_variation_difference_histogram"`
}

type CombinedFeature struct {
	Statistics  Statistics  `json:"statistics"`
	LossWeights LossWeights `json:"loss_weights"`
}

type Network struct {
	HiddenLayers []uint32 `json:"hidden_layers"`
}

func Load(path string) (*Config, error) {
	var data, err = os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %v", path)
	}
	return c, nil
}

// Parse decodes, fills defaults and validates a configuration.
func Parse(data []byte) (*Config, error) {
	var c = &Config{}
	var err = json.Unmarshal(data, c)
	if err != nil {
		return nil, err
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.Network.HiddenLayers == nil {
		c.Network.HiddenLayers = DefaultHiddenLayers
	}
	if c.NumberOfSourcesPerTarget == 0 {
		c.NumberOfSourcesPerTarget = 1
	}
	if _, err = c.Build(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) hasMode(mode string) bool {
	for _, m := range c.Modes {
		if m == mode {
			return true
		}
	}
	return false
}
