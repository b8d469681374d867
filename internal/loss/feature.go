// Package loss computes the training loss and tracked metrics of predicted
// features against their targets, at three aggregation levels: a single
// feature, a combined light path and the whole image.
package loss

import (
	"fmt"

	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
)

type Kind int

const (
	Simple Kind = iota
	CombinedLightPath
	CombinedImage
)

func (k Kind) String() string {
	switch k {
	case Simple:
		return "simple"
	case CombinedLightPath:
		return "combined light path"
	case CombinedImage:
		return "combined image"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Weights struct {
	Mean      float64
	Variation float64
	MSSSIM    float64
}

func (w Weights) Any() bool {
	return w.Mean > 0 || w.Variation > 0 || w.MSSSIM > 0
}

type Statistics struct {
	TrackMean                         bool
	TrackVariation                    bool
	TrackMSSSIM                       bool
	TrackDifferenceHistogram          bool
	TrackVariationDifferenceHistogram bool
}

// TrainingFeature is one of three variants. Simple compares a predicted
// feature with its target. CombinedLightPath has Parts color, direct and
// indirect. CombinedImage has the six Parts of renderpass.ImageParts.
type TrainingFeature struct {
	Kind             Kind
	Pass             renderpass.Pass
	LossDifference   ml.LossDifference
	Weights          Weights
	MaskedWeights    Weights
	Statistics       Statistics
	MaskedStatistics Statistics
	Parts            []*TrainingFeature
}

func (f *TrainingFeature) Name() string { return string(f.Pass) }

// HasMask reports whether bound evaluations of this feature carry a mask.
func (f *TrainingFeature) HasMask() bool {
	if f.Kind != Simple {
		return false
	}
	var _, ok = f.Pass.ColorPass()
	return ok
}

func NewSimple(pass renderpass.Pass, difference ml.LossDifference,
	weights, maskedWeights Weights, statistics, maskedStatistics Statistics) *TrainingFeature {
	return &TrainingFeature{
		Kind:             Simple,
		Pass:             pass,
		LossDifference:   difference,
		Weights:          weights,
		MaskedWeights:    maskedWeights,
		Statistics:       statistics,
		MaskedStatistics: maskedStatistics,
	}
}

func NewCombinedLightPath(lightPath renderpass.Pass, difference ml.LossDifference,
	color, direct, indirect *TrainingFeature,
	weights Weights, statistics Statistics) *TrainingFeature {
	return &TrainingFeature{
		Kind:           CombinedLightPath,
		Pass:           lightPath,
		LossDifference: difference,
		Weights:        weights,
		Statistics:     statistics,
		Parts:          []*TrainingFeature{color, direct, indirect},
	}
}

// NewCombinedImage takes the parts in renderpass.ImageParts order.
func NewCombinedImage(difference ml.LossDifference, parts [6]*TrainingFeature,
	weights Weights, statistics Statistics) *TrainingFeature {
	return &TrainingFeature{
		Kind:           CombinedImage,
		Pass:           renderpass.Combined,
		LossDifference: difference,
		Weights:        weights,
		Statistics:     statistics,
		Parts:          parts[:],
	}
}
