package dataset

import (
	"math/rand"

	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// Augmentation transforms every source and target of a sample the same way.
type Augmentation struct {
	Flip           bool
	Rotate         int
	RGBPermutation []int
}

// RandomAugmentation draws a flip and a number of quarter turns. The RGB
// permutation is drawn per epoch by the caller and may be nil.
func RandomAugmentation(rnd *rand.Rand, rgbPermutation []int) Augmentation {
	return Augmentation{
		Flip:           rnd.Intn(2) != 0,
		Rotate:         rnd.Intn(4),
		RGBPermutation: rgbPermutation,
	}
}

func (a Augmentation) transform(pass renderpass.Pass, t *tensor.Tensor) *tensor.Tensor {
	if a.Flip {
		t = tensor.FlipLeftRight(t)
	}
	if a.Rotate != 0 {
		t = tensor.Rotate90(t, a.Rotate)
	}
	if a.RGBPermutation != nil && pass.IsRGB() && t.Shape[3] == len(a.RGBPermutation) {
		t = tensor.PermuteChannels(t, a.RGBPermutation)
	}
	return t
}

// Apply replaces the tensors of the sample with transformed copies.
func (a Augmentation) Apply(sample *Sample) {
	for pass, sources := range sample.Sources {
		var transformed = make([]*tensor.Tensor, len(sources))
		for i, s := range sources {
			transformed[i] = a.transform(pass, s)
		}
		sample.Sources[pass] = transformed
	}
	for pass, target := range sample.Targets {
		sample.Targets[pass] = a.transform(pass, target)
	}
}
