package network

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

const leakyReLuAlpha = 0.01

// PixelNetwork runs the same dense tower on every pixel: a stack of 1x1
// convolutions with leaky ReLU hidden layers and a linear output.
type PixelNetwork struct {
	Topology Topology
	Threads  int
	layers   []Layer
}

func NewPixelNetwork(topology Topology, threads int) *PixelNetwork {
	var layers = make([]Layer, topology.LayerSize())
	var offset = 0
	for i := range layers {
		var in, out = topology.layerShape(i)
		var activationFn ml.IActivationFn = &ml.LeakyReLuActivation{Alpha: leakyReLuAlpha}
		if i == len(layers)-1 {
			activationFn = &ml.IdentityActivation{}
		}
		layers[i] = NewLayer(in, out, offset, activationFn)
		offset += layers[i].size()
	}
	if threads < 1 {
		threads = 1
	}
	return &PixelNetwork{
		Topology: topology,
		Threads:  threads,
		layers:   layers,
	}
}

// pixelLayout addresses the channel vector of pixel p of batch item b.
type pixelLayout struct {
	channels int
	pixels   int // h * w
	first    bool
}

func (l pixelLayout) index(b, p, c int) int {
	if l.first {
		return (b*l.channels+c)*l.pixels + p
	}
	return (b*l.pixels+p)*l.channels + c
}

// Forward maps an n x h x w x Inputs tensor (or its channels_first
// transpose) to n x h x w x Outputs in the same format.
func (pn *PixelNetwork) Forward(params *Parameters, input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(params.Data) != pn.Topology.Size() {
		return nil, fmt.Errorf("parameters of %v used with network %v", params.Topology, pn.Topology)
	}
	if input.C() != int(pn.Topology.Inputs) {
		return nil, fmt.Errorf("network %v got %d input channels", pn.Topology, input.C())
	}
	var n, h, w = input.N(), input.H(), input.W()
	var outputs = int(pn.Topology.Outputs)
	var output *tensor.Tensor
	if input.Format == tensor.ChannelsFirst {
		output = tensor.New(n, outputs, h, w)
		output.Format = tensor.ChannelsFirst
	} else {
		output = tensor.New(n, h, w, outputs)
	}
	var inLayout = pixelLayout{channels: input.C(), pixels: h * w, first: input.Format == tensor.ChannelsFirst}
	var outLayout = pixelLayout{channels: outputs, pixels: h * w, first: input.Format == tensor.ChannelsFirst}

	var index int32 = -1
	var wg = &sync.WaitGroup{}
	for i := 0; i < min(pn.Threads, n); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buffers = pn.newBuffers()
			for {
				var b = int(atomic.AddInt32(&index, 1))
				if b >= n {
					break
				}
				for p := 0; p < h*w; p++ {
					var x = buffers[0]
					for c := range x {
						x[c] = input.Data[inLayout.index(b, p, c)]
					}
					for l := range pn.layers {
						pn.layers[l].Forward(params.Data, buffers[l], buffers[l+1])
					}
					for c, v := range buffers[len(buffers)-1] {
						output.Data[outLayout.index(b, p, c)] = v
					}
				}
			}
		}()
	}
	wg.Wait()
	return output, nil
}

func (pn *PixelNetwork) newBuffers() [][]float64 {
	var buffers = make([][]float64, len(pn.layers)+1)
	buffers[0] = make([]float64, pn.Topology.Inputs)
	for i := range pn.layers {
		buffers[i+1] = make([]float64, pn.layers[i].outputSize)
	}
	return buffers
}
