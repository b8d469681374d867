package network

import (
	"math/rand"

	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
)

const DefaultPerturbation = 1e-2

// Optimizer estimates the gradient by simultaneous perturbation: all
// parameters are moved by +-Perturbation at once and the loss is evaluated on
// both sides. The estimate feeds the Adam moments of ml.Gradients.
type Optimizer struct {
	Perturbation float64
	rnd          *rand.Rand
	gradients    ml.Gradients
	delta        []float64
}

func NewOptimizer(rnd *rand.Rand, size int) *Optimizer {
	return &Optimizer{
		Perturbation: DefaultPerturbation,
		rnd:          rnd,
		gradients:    ml.NewGradients(size),
		delta:        make([]float64, size),
	}
}

// Step updates params in place. lossFn must evaluate the loss with the
// current content of params.Data. Params are restored before the update, so
// lossFn never sees a partially updated set.
func (o *Optimizer) Step(params *Parameters, learningRate float64, lossFn func() (float64, error)) error {
	var data = params.Data
	for i := range o.delta {
		if o.rnd.Intn(2) == 0 {
			o.delta[i] = -1
		} else {
			o.delta[i] = 1
		}
	}
	var c = o.Perturbation

	for i := range data {
		data[i] += c * o.delta[i]
	}
	var plus, err = lossFn()
	if err != nil {
		o.restore(data, c)
		return err
	}

	for i := range data {
		data[i] -= 2 * c * o.delta[i]
	}
	minus, err := lossFn()
	o.restore(data, -c)
	if err != nil {
		return err
	}

	var scale = (plus - minus) / (2 * c)
	for i, d := range o.delta {
		// 1/delta == delta for +-1
		o.gradients.Add(i, scale*d)
	}
	o.gradients.Apply(data, learningRate)
	return nil
}

// restore undoes a perturbation by shift*delta.
func (o *Optimizer) restore(data []float64, shift float64) {
	for i := range data {
		data[i] -= shift * o.delta[i]
	}
}
