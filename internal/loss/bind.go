package loss

import (
	"fmt"

	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// Evaluation is a training feature bound to one step's tensors.
// Mask is n x h x w x 1 and nil for features without a mask.
type Evaluation struct {
	Feature   *TrainingFeature
	Predicted *tensor.Tensor
	Target    *tensor.Tensor
	Mask      *tensor.Tensor
	MaskSum   float64
}

// Bound holds every evaluation of a step.
type Bound struct {
	Simple    []*Evaluation
	Combined  []*Evaluation
	Image     *Evaluation
	byFeature map[*TrainingFeature]*Evaluation
}

// All returns the evaluations in loss order.
func (b *Bound) All() []*Evaluation {
	var result = make([]*Evaluation, 0, len(b.Simple)+len(b.Combined)+1)
	result = append(result, b.Simple...)
	result = append(result, b.Combined...)
	if b.Image != nil {
		result = append(result, b.Image)
	}
	return result
}

// Bind evaluates the feature set against this step's predictions and targets.
// Combined features are built from the bound evaluations of their parts.
func Bind(
	simple, combined []*TrainingFeature,
	image *TrainingFeature,
	predictions, targets map[renderpass.Pass]*tensor.Tensor,
) (*Bound, error) {
	var b = &Bound{byFeature: make(map[*TrainingFeature]*Evaluation)}
	for _, f := range simple {
		var e, err = bindSimple(f, predictions, targets)
		if err != nil {
			return nil, err
		}
		b.Simple = append(b.Simple, e)
		b.byFeature[f] = e
	}
	for _, f := range combined {
		var e, err = b.bindCombined(f)
		if err != nil {
			return nil, err
		}
		b.Combined = append(b.Combined, e)
		b.byFeature[f] = e
	}
	if image != nil {
		var e, err = b.bindCombined(image)
		if err != nil {
			return nil, err
		}
		b.Image = e
	}
	return b, nil
}

func bindSimple(f *TrainingFeature, predictions, targets map[renderpass.Pass]*tensor.Tensor) (*Evaluation, error) {
	var predicted, ok = predictions[f.Pass]
	if !ok {
		return nil, fmt.Errorf("no prediction for %v", f.Pass)
	}
	target, ok := targets[f.Pass]
	if !ok {
		return nil, fmt.Errorf("no target for %v", f.Pass)
	}
	if !predicted.SameShape(target) {
		return nil, fmt.Errorf("%v: prediction %v and target %v differ", f.Pass, predicted, target)
	}
	var e = &Evaluation{Feature: f, Predicted: predicted, Target: target}
	if colorPass, ok := f.Pass.ColorPass(); ok {
		var color, found = targets[colorPass]
		if !found {
			return nil, fmt.Errorf("%v: mask needs the target of %v", f.Pass, colorPass)
		}
		e.Mask = NonZeroMask(color)
		e.MaskSum = tensor.Sum(e.Mask)
	}
	return e, nil
}

func (b *Bound) bindCombined(f *TrainingFeature) (*Evaluation, error) {
	var parts = make([]*Evaluation, len(f.Parts))
	for i, p := range f.Parts {
		var e, ok = b.byFeature[p]
		if !ok {
			return nil, fmt.Errorf("%v needs %v which is not bound", f.Pass, p.Pass)
		}
		parts[i] = e
	}
	var e = &Evaluation{Feature: f}
	switch f.Kind {
	case CombinedLightPath:
		var color, direct, indirect = parts[0], parts[1], parts[2]
		e.Predicted = tensor.Mul(color.Predicted, tensor.Add(direct.Predicted, indirect.Predicted))
		e.Target = tensor.Mul(color.Target, tensor.Add(direct.Target, indirect.Target))
	case CombinedImage:
		var predicted = make([]*tensor.Tensor, len(parts))
		var target = make([]*tensor.Tensor, len(parts))
		for i, p := range parts {
			predicted[i] = p.Predicted
			target[i] = p.Target
		}
		e.Predicted = tensor.AddN(predicted...)
		e.Target = tensor.AddN(target...)
	default:
		return nil, fmt.Errorf("%v is not a combined feature", f.Pass)
	}
	return e, nil
}

// NonZeroMask is 1 where any channel of t is non-zero.
func NonZeroMask(t *tensor.Tensor) *tensor.Tensor {
	var c = t.Shape[3]
	var mask = tensor.New(t.Shape[0], t.Shape[1], t.Shape[2], 1)
	for p := range mask.Data {
		for _, v := range t.Data[p*c : (p+1)*c] {
			if v != 0 {
				mask.Data[p] = 1
				break
			}
		}
	}
	return mask
}
