package loss

import (
	"errors"

	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

var ErrMaskedMSSSIMNotImplemented = errors.New("masked ms_ssim is not implemented")

func difference(e *Evaluation, predicted, target *tensor.Tensor) *tensor.Tensor {
	var d = e.Feature.LossDifference
	var result = tensor.New(predicted.Shape[0], predicted.Shape[1], predicted.Shape[2], predicted.Shape[3])
	for i := range result.Data {
		result.Data[i] = d.Cost(predicted.Data[i], target.Data[i])
	}
	return result
}

// Difference is the elementwise loss difference of prediction and target.
func Difference(e *Evaluation) *tensor.Tensor {
	return difference(e, e.Predicted, e.Target)
}

// horizontalVariation is t[:, :, 1:] - t[:, :, :-1].
func horizontalVariation(t *tensor.Tensor) *tensor.Tensor {
	var h, w = t.Shape[1], t.Shape[2]
	return tensor.Sub(tensor.Crop(t, 0, 1, h, w-1), tensor.Crop(t, 0, 0, h, w-1))
}

// verticalVariation is t[:, 1:] - t[:, :-1].
func verticalVariation(t *tensor.Tensor) *tensor.Tensor {
	var h, w = t.Shape[1], t.Shape[2]
	return tensor.Sub(tensor.Crop(t, 1, 0, h-1, w), tensor.Crop(t, 0, 0, h-1, w))
}

// HorizontalVariationDifference is n x h x (w-1) x c.
func HorizontalVariationDifference(e *Evaluation) *tensor.Tensor {
	return difference(e, horizontalVariation(e.Predicted), horizontalVariation(e.Target))
}

// VerticalVariationDifference is n x (h-1) x w x c.
func VerticalVariationDifference(e *Evaluation) *tensor.Tensor {
	return difference(e, verticalVariation(e.Predicted), verticalVariation(e.Target))
}

// VariationDifference flattens the horizontal and the vertical variation
// differences per batch item and concatenates them: n x 1 x 1 x (h(w-1)c + (h-1)wc).
func VariationDifference(e *Evaluation) *tensor.Tensor {
	return tensor.Concat(
		tensor.Flatten(HorizontalVariationDifference(e)),
		tensor.Flatten(VerticalVariationDifference(e)))
}

func MaskedDifference(e *Evaluation) *tensor.Tensor {
	return tensor.MulChannels(Difference(e), e.Mask)
}

// maskedVariationDifferences weights each variation by the product of the
// masks of the two pixels it spans.
func maskedVariationDifferences(e *Evaluation) (horizontal, vertical *tensor.Tensor) {
	var h, w = e.Mask.Shape[1], e.Mask.Shape[2]
	var horizontalMask = tensor.Mul(tensor.Crop(e.Mask, 0, 1, h, w-1), tensor.Crop(e.Mask, 0, 0, h, w-1))
	var verticalMask = tensor.Mul(tensor.Crop(e.Mask, 1, 0, h-1, w), tensor.Crop(e.Mask, 0, 0, h-1, w))
	horizontal = tensor.MulChannels(HorizontalVariationDifference(e), horizontalMask)
	vertical = tensor.MulChannels(VerticalVariationDifference(e), verticalMask)
	return horizontal, vertical
}

func MaskedVariationDifference(e *Evaluation) *tensor.Tensor {
	var horizontal, vertical = maskedVariationDifferences(e)
	return tensor.Concat(tensor.Flatten(horizontal), tensor.Flatten(vertical))
}

func Mean(e *Evaluation) float64 {
	return tensor.Mean(Difference(e))
}

func Variation(e *Evaluation) float64 {
	return tensor.Mean(VariationDifference(e))
}

// MaskedMean is 0 when the mask is empty.
func MaskedMean(e *Evaluation) float64 {
	if !(e.MaskSum > 0) {
		return 0
	}
	return tensor.Sum(MaskedDifference(e)) / e.MaskSum
}

// MaskedVariation is 0 when the mask is empty.
func MaskedVariation(e *Evaluation) float64 {
	if !(e.MaskSum > 0) {
		return 0
	}
	return tensor.Sum(MaskedVariationDifference(e)) / e.MaskSum
}

// MSSSIM is 1 - mean multiscale structural similarity of prediction and target.
func MSSSIM(e *Evaluation) (float64, error) {
	var similarity, err = MultiscaleSSIM(e.Predicted, e.Target, msssimMaxValue, msssimPowerFactors)
	if err != nil {
		return 0, err
	}
	return 1 - similarity, nil
}

func MaskedMSSSIM(e *Evaluation) (float64, error) {
	return 0, ErrMaskedMSSSIMNotImplemented
}
