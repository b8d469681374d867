package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

const (
	ssimFilterSize  = 11
	ssimFilterSigma = 1.5
	ssimK1          = 0.01
	ssimK2          = 0.03
	msssimMaxValue  = 1.0
)

// Tiles are 64 pixels wide, too small for the usual five scales: every scale
// halves the size and the last one must still fit the 11 pixel filter
// (64 / 2 / 2 = 16 > 11). Only the first three power factors are used.
var msssimPowerFactors = []float64{0.0448, 0.2856, 0.3001}

var ssimWindow = gaussianWindow(ssimFilterSize, ssimFilterSigma)

func gaussianWindow(size int, sigma float64) []float64 {
	var window = make([]float64, 0, size*size)
	var center = float64(size-1) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var dy, dx = float64(y) - center, float64(x) - center
			window = append(window, math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
		}
	}
	floats.Scale(1/floats.Sum(window), window)
	return window
}

// MultiscaleSSIM averages, over batch items, the channel mean of the
// multiscale structural similarity of two channels-last tensors.
func MultiscaleSSIM(a, b *tensor.Tensor, maxValue float64, powerFactors []float64) (float64, error) {
	if !a.SameShape(b) {
		return 0, fmt.Errorf("ms_ssim of %v and %v", a, b)
	}
	var n, h, w, c = a.Shape[0], a.Shape[1], a.Shape[2], a.Shape[3]
	var smallest = min(h, w) >> (len(powerFactors) - 1)
	if smallest < ssimFilterSize {
		return 0, fmt.Errorf("ms_ssim needs %d scales of at least %d pixels, got %dx%d", len(powerFactors), ssimFilterSize, h, w)
	}
	var perImage = make([]float64, n)
	var perChannel = make([]float64, c)
	for batch := 0; batch < n; batch++ {
		for ch := 0; ch < c; ch++ {
			var x = plane(a, batch, ch)
			var y = plane(b, batch, ch)
			var ph, pw = h, w
			var value = 1.0
			for scale, factor := range powerFactors {
				if scale > 0 {
					x, _, _ = downsample(x, ph, pw)
					y, ph, pw = downsample(y, ph, pw)
				}
				var ssim, cs = ssimPlane(x, y, ph, pw, maxValue)
				var term = cs
				if scale == len(powerFactors)-1 {
					term = ssim
				}
				value *= math.Pow(math.Max(term, 0), factor)
			}
			perChannel[ch] = value
		}
		perImage[batch] = stat.Mean(perChannel, nil)
	}
	return stat.Mean(perImage, nil), nil
}

func plane(t *tensor.Tensor, batch, channel int) []float64 {
	var h, w = t.Shape[1], t.Shape[2]
	var result = make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			result[y*w+x] = t.At(batch, y, x, channel)
		}
	}
	return result
}

// downsample is a 2x2 average pool; an odd last row or column is dropped.
func downsample(p []float64, h, w int) ([]float64, int, int) {
	var nh, nw = h / 2, w / 2
	var result = make([]float64, nh*nw)
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			result[y*nw+x] = (p[2*y*w+2*x] + p[2*y*w+2*x+1] + p[(2*y+1)*w+2*x] + p[(2*y+1)*w+2*x+1]) / 4
		}
	}
	return result, nh, nw
}

// ssimPlane returns mean ssim and mean contrast-structure over all valid
// positions of the Gaussian window.
func ssimPlane(x, y []float64, h, w int, maxValue float64) (ssim, cs float64) {
	var c1 = (ssimK1 * maxValue) * (ssimK1 * maxValue)
	var c2 = (ssimK2 * maxValue) * (ssimK2 * maxValue)
	var size = ssimFilterSize
	var wx = make([]float64, size*size)
	var wy = make([]float64, size*size)
	var wxx = make([]float64, size*size)
	var wyy = make([]float64, size*size)
	var wxy = make([]float64, size*size)
	var count = 0
	for top := 0; top+size <= h; top++ {
		for left := 0; left+size <= w; left++ {
			for dy := 0; dy < size; dy++ {
				for dx := 0; dx < size; dx++ {
					var i = dy*size + dx
					var vx, vy = x[(top+dy)*w+left+dx], y[(top+dy)*w+left+dx]
					wx[i], wy[i] = vx, vy
					wxx[i], wyy[i], wxy[i] = vx*vx, vy*vy, vx*vy
				}
			}
			var muX = stat.Mean(wx, ssimWindow)
			var muY = stat.Mean(wy, ssimWindow)
			var sigmaX = stat.Mean(wxx, ssimWindow) - muX*muX
			var sigmaY = stat.Mean(wyy, ssimWindow) - muY*muY
			var sigmaXY = stat.Mean(wxy, ssimWindow) - muX*muY
			var luminance = (2*muX*muY + c1) / (muX*muX + muY*muY + c1)
			var contrastStructure = (2*sigmaXY + c2) / (sigmaX + sigmaY + c2)
			ssim += luminance * contrastStructure
			cs += contrastStructure
			count++
		}
	}
	return ssim / float64(count), cs / float64(count)
}
