package tensor

import "fmt"

// Concat joins channels-last tensors along the channel axis.
func Concat(ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("tensor: concat of nothing")
	}
	var n, h, w = ts[0].Shape[0], ts[0].Shape[1], ts[0].Shape[2]
	var channels = 0
	for _, t := range ts {
		if t.Format != ChannelsLast || t.Shape[0] != n || t.Shape[1] != h || t.Shape[2] != w {
			panic(fmt.Sprintf("tensor: concat of %v and %v", ts[0], t))
		}
		channels += t.Shape[3]
	}
	var result = New(n, h, w, channels)
	var pixels = n * h * w
	var offset = 0
	for _, t := range ts {
		var c = t.Shape[3]
		for p := 0; p < pixels; p++ {
			copy(result.Data[p*channels+offset:p*channels+offset+c], t.Data[p*c:(p+1)*c])
		}
		offset += c
	}
	return result
}

// Split cuts a channels-last tensor along the channel axis.
func Split(t *Tensor, sizes []int) []*Tensor {
	if t.Format != ChannelsLast {
		panic("tensor: split requires channels_last")
	}
	var total = 0
	for _, s := range sizes {
		total += s
	}
	if total != t.Shape[3] {
		panic(fmt.Sprintf("tensor: split of %d channels into %v", t.Shape[3], sizes))
	}
	var n, h, w, channels = t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	var pixels = n * h * w
	var result = make([]*Tensor, len(sizes))
	var offset = 0
	for i, c := range sizes {
		var part = New(n, h, w, c)
		for p := 0; p < pixels; p++ {
			copy(part.Data[p*c:(p+1)*c], t.Data[p*channels+offset:p*channels+offset+c])
		}
		result[i] = part
		offset += c
	}
	return result
}

// Transpose converts between NHWC and NCHW.
func Transpose(t *Tensor, to DataFormat) *Tensor {
	if t.Format == to {
		return t
	}
	var n, h, w, c = t.N(), t.H(), t.W(), t.C()
	var data = make([]float64, len(t.Data))
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for ch := 0; ch < c; ch++ {
					var last = ((b*h+y)*w+x)*c + ch
					var first = ((b*c+ch)*h+y)*w + x
					if to == ChannelsFirst {
						data[first] = t.Data[last]
					} else {
						data[last] = t.Data[first]
					}
				}
			}
		}
	}
	if to == ChannelsFirst {
		return &Tensor{Shape: [4]int{n, c, h, w}, Format: ChannelsFirst, Data: data}
	}
	return &Tensor{Shape: [4]int{n, h, w, c}, Format: ChannelsLast, Data: data}
}

// Crop returns the channels-last window [y0, y0+height) x [x0, x0+width).
func Crop(t *Tensor, y0, x0, height, width int) *Tensor {
	var n, c = t.Shape[0], t.Shape[3]
	var result = New(n, height, width, c)
	for b := 0; b < n; b++ {
		for y := 0; y < height; y++ {
			var src = t.Index(b, y0+y, x0, 0)
			var dst = result.Index(b, y, 0, 0)
			copy(result.Data[dst:dst+width*c], t.Data[src:src+width*c])
		}
	}
	return result
}

// Flatten reshapes every batch item into a single row: N x 1 x 1 x (H*W*C).
func Flatten(t *Tensor) *Tensor {
	var n = t.Shape[0]
	return &Tensor{Shape: [4]int{n, 1, 1, len(t.Data) / n}, Data: t.Data}
}

// Stack joins single-image tensors into a batch.
func Stack(ts []*Tensor) *Tensor {
	var first = ts[0]
	var h, w, c = first.Shape[1], first.Shape[2], first.Shape[3]
	var result = &Tensor{Shape: [4]int{0, h, w, c}}
	for _, t := range ts {
		if t.Shape[1] != h || t.Shape[2] != w || t.Shape[3] != c {
			panic(fmt.Sprintf("tensor: stack of %v and %v", first, t))
		}
		result.Shape[0] += t.Shape[0]
		result.Data = append(result.Data, t.Data...)
	}
	return result
}
