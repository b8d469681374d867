package tensor

import "fmt"

func FlipLeftRight(t *Tensor) *Tensor {
	var n, h, w, c = t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	var result = New(n, h, w, c)
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var src = t.Index(b, y, x, 0)
				var dst = result.Index(b, y, w-1-x, 0)
				copy(result.Data[dst:dst+c], t.Data[src:src+c])
			}
		}
	}
	return result
}

// Rotate90 rotates counter-clockwise k times.
func Rotate90(t *Tensor, k int) *Tensor {
	k = ((k % 4) + 4) % 4
	var result = t
	for i := 0; i < k; i++ {
		result = rotate90Once(result)
	}
	return result
}

func rotate90Once(t *Tensor) *Tensor {
	var n, h, w, c = t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	var result = New(n, w, h, c)
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var src = t.Index(b, y, x, 0)
				var dst = result.Index(b, w-1-x, y, 0)
				copy(result.Data[dst:dst+c], t.Data[src:src+c])
			}
		}
	}
	return result
}

// PermuteChannels reorders channels so that output channel i is input channel perm[i].
func PermuteChannels(t *Tensor, perm []int) *Tensor {
	var c = t.Shape[3]
	if len(perm) != c {
		panic(fmt.Sprintf("tensor: permutation %v of %d channels", perm, c))
	}
	var result = New(t.Shape[0], t.Shape[1], t.Shape[2], c)
	for p := 0; p < len(t.Data)/c; p++ {
		for i, j := range perm {
			result.Data[p*c+i] = t.Data[p*c+j]
		}
	}
	return result
}
