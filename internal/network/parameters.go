// Package network is the backbone the denoiser trains: a per-pixel
// convolution tower (1x1 kernels) over the assembled input channels, its
// parameter set, a gradient-free optimizer and the parameter file format.
package network

import (
	"fmt"
	"math/rand"

	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
)

type Topology struct {
	Inputs        uint32
	Outputs       uint32
	HiddenNeurons []uint32
}

func NewTopology(inputs, outputs uint32, hiddenNeurons []uint32) Topology {
	return Topology{
		Inputs:        inputs,
		Outputs:       outputs,
		HiddenNeurons: hiddenNeurons,
	}
}

func (t *Topology) LayerSize() int {
	return len(t.HiddenNeurons) + 1
}

// layerShape returns input and output size of layer i.
func (t *Topology) layerShape(i int) (inputSize, outputSize int) {
	inputSize = int(t.Inputs)
	if i > 0 {
		inputSize = int(t.HiddenNeurons[i-1])
	}
	outputSize = int(t.Outputs)
	if i < len(t.HiddenNeurons) {
		outputSize = int(t.HiddenNeurons[i])
	}
	return inputSize, outputSize
}

// Size is the number of parameters: weights and biases of every layer.
func (t *Topology) Size() int {
	var size = 0
	for i := 0; i < t.LayerSize(); i++ {
		var in, out = t.layerShape(i)
		size += out*in + out
	}
	return size
}

func (t Topology) String() string {
	return fmt.Sprintf("%d-%v-%d", t.Inputs, t.HiddenNeurons, t.Outputs)
}

// Parameters is the weight set of one backbone. It is created once per run
// and passed explicitly into every forward pass; callers that share weights
// between several forward passes share the same *Parameters.
//
// Data holds, layer after layer, the weights (row-major, output x input)
// followed by the biases of the layer.
type Parameters struct {
	Id       uint32
	Topology Topology
	Data     []float64
}

func NewParameters(rnd *rand.Rand, topology Topology) *Parameters {
	var p = &Parameters{
		Id:       rnd.Uint32(),
		Topology: topology,
		Data:     make([]float64, topology.Size()),
	}
	var offset = 0
	for i := 0; i < topology.LayerSize(); i++ {
		var in, out = topology.layerShape(i)
		var weights = p.Data[offset : offset+out*in]
		if i < len(topology.HiddenNeurons) {
			// ReLU family
			ml.InitUniform(rnd, weights, 2.0/float64(in))
		} else {
			ml.InitUniform(rnd, weights, 2.0/float64(in+out))
		}
		offset += out*in + out
	}
	return p
}

func (p *Parameters) Clone() *Parameters {
	var data = make([]float64, len(p.Data))
	copy(data, p.Data)
	var hidden = make([]uint32, len(p.Topology.HiddenNeurons))
	copy(hidden, p.Topology.HiddenNeurons)
	return &Parameters{
		Id:       p.Id,
		Topology: NewTopology(p.Topology.Inputs, p.Topology.Outputs, hidden),
		Data:     data,
	}
}
