package loss

import (
	"github.com/pkg/errors"
)

type term struct {
	name   string
	weight float64
	value  func(*Evaluation) (float64, error)
}

func scalar(f func(*Evaluation) float64) func(*Evaluation) (float64, error) {
	return func(e *Evaluation) (float64, error) { return f(e), nil }
}

// plan lists the weighted terms of a feature's loss. Terms whose weight is
// not strictly positive are left out and never evaluated.
func plan(f *TrainingFeature) []term {
	var candidates = []term{
		{"mean", f.Weights.Mean, scalar(Mean)},
		{"variation", f.Weights.Variation, scalar(Variation)},
		{"ms_ssim", f.Weights.MSSSIM, MSSSIM},
		{"masked_mean", f.MaskedWeights.Mean, scalar(MaskedMean)},
		{"masked_variation", f.MaskedWeights.Variation, scalar(MaskedVariation)},
		{"masked_ms_ssim", f.MaskedWeights.MSSSIM, MaskedMSSSIM},
	}
	var result []term
	for _, t := range candidates {
		if t.weight > 0 {
			result = append(result, t)
		}
	}
	return result
}

// Loss is the weighted sum of the planned terms of the bound feature.
func Loss(e *Evaluation) (float64, error) {
	var result = 0.0
	for _, t := range plan(e.Feature) {
		var v, err = t.value(e)
		if err != nil {
			return 0, errors.Wrapf(err, "%v %v", e.Feature.Name(), t.name)
		}
		result += t.weight * v
	}
	return result, nil
}

// TotalLoss sums the losses of every bound feature: simple, combined light
// paths and the combined image.
func TotalLoss(b *Bound) (float64, error) {
	var total = 0.0
	for _, e := range b.All() {
		var l, err = Loss(e)
		if err != nil {
			return 0, err
		}
		total += l
	}
	return total, nil
}
