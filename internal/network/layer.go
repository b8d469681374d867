package network

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
)

// Layer is a dense layer applied to the channel vector of one pixel.
// Its weights live in Parameters.Data starting at offset.
type Layer struct {
	activationFn ml.IActivationFn
	inputSize    int
	outputSize   int
	offset       int
}

func NewLayer(inputSize, outputSize, offset int, activationFn ml.IActivationFn) Layer {
	return Layer{
		activationFn: activationFn,
		inputSize:    inputSize,
		outputSize:   outputSize,
		offset:       offset,
	}
}

func (layer *Layer) size() int {
	return layer.outputSize*layer.inputSize + layer.outputSize
}

func (layer *Layer) Forward(params []float64, input, output []float64) {
	var weights = params[layer.offset : layer.offset+layer.outputSize*layer.inputSize]
	var biases = params[layer.offset+layer.outputSize*layer.inputSize : layer.offset+layer.size()]
	for outputIndex := range output {
		var row = weights[outputIndex*layer.inputSize : (outputIndex+1)*layer.inputSize]
		var x = biases[outputIndex] + floats.Dot(row, input)
		output[outputIndex] = layer.activationFn.Sigma(x)
	}
}
