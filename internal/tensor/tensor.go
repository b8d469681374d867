// Package tensor holds the batched image tensors passed between features,
// the model and the loss. Data is stored densely in the order of Shape.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

type DataFormat int

const (
	ChannelsLast DataFormat = iota
	ChannelsFirst
)

func (f DataFormat) String() string {
	if f == ChannelsFirst {
		return "channels_first"
	}
	return "channels_last"
}

// ParseDataFormat accepts the CLI spelling. The empty string means auto and
// resolves to channels_last: there is no GPU backend in this build.
func ParseDataFormat(s string) (DataFormat, error) {
	switch s {
	case "", "auto", "channels_last":
		return ChannelsLast, nil
	case "channels_first":
		return ChannelsFirst, nil
	}
	return ChannelsLast, fmt.Errorf("unknown data format %q", s)
}

// Tensor is a 4D tensor. Shape is NHWC for ChannelsLast and NCHW for ChannelsFirst.
type Tensor struct {
	Shape  [4]int
	Format DataFormat
	Data   []float64
}

func New(n, h, w, c int) *Tensor {
	return &Tensor{
		Shape: [4]int{n, h, w, c},
		Data:  make([]float64, n*h*w*c),
	}
}

func FromData(n, h, w, c int, data []float64) *Tensor {
	if len(data) != n*h*w*c {
		panic(fmt.Sprintf("tensor: %d values for shape %dx%dx%dx%d", len(data), n, h, w, c))
	}
	return &Tensor{
		Shape: [4]int{n, h, w, c},
		Data:  data,
	}
}

func Full(n, h, w, c int, value float64) *Tensor {
	var t = New(n, h, w, c)
	for i := range t.Data {
		t.Data[i] = value
	}
	return t
}

func (t *Tensor) N() int { return t.Shape[0] }

func (t *Tensor) H() int {
	if t.Format == ChannelsFirst {
		return t.Shape[2]
	}
	return t.Shape[1]
}

func (t *Tensor) W() int {
	if t.Format == ChannelsFirst {
		return t.Shape[3]
	}
	return t.Shape[2]
}

func (t *Tensor) C() int {
	if t.Format == ChannelsFirst {
		return t.Shape[1]
	}
	return t.Shape[3]
}

func (t *Tensor) Len() int { return len(t.Data) }

// Index of (n, h, w, c) in a channels-last tensor.
func (t *Tensor) Index(n, h, w, c int) int {
	return ((n*t.Shape[1]+h)*t.Shape[2]+w)*t.Shape[3] + c
}

func (t *Tensor) At(n, h, w, c int) float64 { return t.Data[t.Index(n, h, w, c)] }

func (t *Tensor) Set(n, h, w, c int, v float64) { t.Data[t.Index(n, h, w, c)] = v }

func (t *Tensor) Clone() *Tensor {
	var data = make([]float64, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Shape: t.Shape, Format: t.Format, Data: data}
}

func (t *Tensor) SameShape(o *Tensor) bool {
	return t.Shape == o.Shape && t.Format == o.Format
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor(%v %v)", t.Shape, t.Format)
}

func (t *Tensor) Map(f func(float64) float64) *Tensor {
	var result = &Tensor{Shape: t.Shape, Format: t.Format, Data: make([]float64, len(t.Data))}
	for i, v := range t.Data {
		result.Data[i] = f(v)
	}
	return result
}

func mustSameShape(op string, a, b *Tensor) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("tensor: %s of %v and %v", op, a, b))
	}
}

func Add(a, b *Tensor) *Tensor {
	mustSameShape("add", a, b)
	var result = &Tensor{Shape: a.Shape, Format: a.Format, Data: make([]float64, len(a.Data))}
	floats.AddTo(result.Data, a.Data, b.Data)
	return result
}

func Sub(a, b *Tensor) *Tensor {
	mustSameShape("sub", a, b)
	var result = &Tensor{Shape: a.Shape, Format: a.Format, Data: make([]float64, len(a.Data))}
	floats.SubTo(result.Data, a.Data, b.Data)
	return result
}

func Mul(a, b *Tensor) *Tensor {
	mustSameShape("mul", a, b)
	var result = &Tensor{Shape: a.Shape, Format: a.Format, Data: make([]float64, len(a.Data))}
	floats.MulTo(result.Data, a.Data, b.Data)
	return result
}

func AddN(ts ...*Tensor) *Tensor {
	var result = ts[0].Clone()
	for _, t := range ts[1:] {
		mustSameShape("add", result, t)
		floats.Add(result.Data, t.Data)
	}
	return result
}

func (t *Tensor) Scale(s float64) *Tensor {
	var result = t.Clone()
	floats.Scale(s, result.Data)
	return result
}

func (t *Tensor) AddConst(c float64) *Tensor {
	var result = t.Clone()
	floats.AddConst(c, result.Data)
	return result
}

func Sum(t *Tensor) float64 { return floats.Sum(t.Data) }

func Mean(t *Tensor) float64 {
	if len(t.Data) == 0 {
		return 0
	}
	return floats.Sum(t.Data) / float64(len(t.Data))
}

// MulChannels multiplies a channels-last tensor with a single channel tensor
// of the same N, H and W, broadcasting across channels.
func MulChannels(a, mask *Tensor) *Tensor {
	if mask.Shape[3] != 1 || a.Shape[0] != mask.Shape[0] || a.Shape[1] != mask.Shape[1] || a.Shape[2] != mask.Shape[2] {
		panic(fmt.Sprintf("tensor: broadcast of %v and %v", a, mask))
	}
	var result = a.Clone()
	var c = a.Shape[3]
	for p, m := range mask.Data {
		floats.Scale(m, result.Data[p*c:(p+1)*c])
	}
	return result
}
