package model

import (
	"fmt"
	"math"

	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// KernelPrediction filters source with per-pixel kernels. weights is
// n x h x w x kernelSize^2 and is normalized with a softmax per pixel; the
// neighborhood of source is replicated at the image border.
func KernelPrediction(source, weights *tensor.Tensor, kernelSize int) *tensor.Tensor {
	var n, h, w, c = source.Shape[0], source.Shape[1], source.Shape[2], source.Shape[3]
	var k2 = kernelSize * kernelSize
	if weights.Shape != [4]int{n, h, w, k2} {
		panic(fmt.Sprintf("model: kernel weights %v for source %v and kernel size %d", weights, source, kernelSize))
	}
	var radius = kernelSize / 2
	var result = tensor.New(n, h, w, c)
	var kernel = make([]float64, k2)
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var offset = weights.Index(b, y, x, 0)
				softmax(kernel, weights.Data[offset:offset+k2])
				for ky := 0; ky < kernelSize; ky++ {
					var sy = clamp(y+ky-radius, h)
					for kx := 0; kx < kernelSize; kx++ {
						var sx = clamp(x+kx-radius, w)
						var weight = kernel[ky*kernelSize+kx]
						for ch := 0; ch < c; ch++ {
							result.Data[result.Index(b, y, x, ch)] += weight * source.At(b, sy, sx, ch)
						}
					}
				}
			}
		}
	}
	return result
}

func softmax(dst, logits []float64) {
	var largest = math.Inf(-1)
	for _, v := range logits {
		largest = math.Max(largest, v)
	}
	var sum = 0.0
	for i, v := range logits {
		dst[i] = math.Exp(v - largest)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
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
