package features

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

const (
	varianceRadius  = 1
	varianceEpsilon = 1e-4
)

type Variance struct {
	UseVariance                  bool
	RelativeVariance             bool
	ComputeBeforeStandardization bool
	CompressToOneChannel         bool
}

// Channels is the width of the variance side channel for a feature with the
// given number of channels, or 0 when variance is disabled.
func (v *Variance) Channels(featureChannels int) int {
	if !v.UseVariance {
		return 0
	}
	if v.CompressToOneChannel {
		return 1
	}
	return featureChannels
}

// Compute returns the local variance of a channels-last tensor.
func (v *Variance) Compute(x *tensor.Tensor) *tensor.Tensor {
	if !v.UseVariance {
		panic("features: variance requested for a feature without variance")
	}
	return LocalVariance(x, v.RelativeVariance, v.CompressToOneChannel, varianceEpsilon)
}

// LocalVariance computes E[x^2] - E[x]^2 over a 3x3 neighborhood with edge
// replication. With relative set, the result is divided by E[x]^2 + epsilon.
func LocalVariance(x *tensor.Tensor, relative, compressToOneChannel bool, epsilon float64) *tensor.Tensor {
	var n, h, w, c = x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	var result = tensor.New(n, h, w, c)
	var window = make([]float64, 0, (2*varianceRadius+1)*(2*varianceRadius+1))
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				for ch := 0; ch < c; ch++ {
					window = window[:0]
					for dy := -varianceRadius; dy <= varianceRadius; dy++ {
						for dx := -varianceRadius; dx <= varianceRadius; dx++ {
							window = append(window, x.At(b, clamp(y+dy, h), clamp(xx+dx, w), ch))
						}
					}
					var count = float64(len(window))
					var mean = floats.Sum(window) / count
					var meanOfSquares = floats.Dot(window, window) / count
					var variance = meanOfSquares - mean*mean
					if variance < 0 {
						variance = 0
					}
					if relative {
						variance /= mean*mean + epsilon
					}
					result.Set(b, y, xx, ch, variance)
				}
			}
		}
	}
	if !compressToOneChannel || c == 1 {
		return result
	}
	var compressed = tensor.New(n, h, w, 1)
	for p := range compressed.Data {
		compressed.Data[p] = floats.Sum(result.Data[p*c:(p+1)*c]) / float64(c)
	}
	return compressed
}

func clamp(i, size int) int {
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}
