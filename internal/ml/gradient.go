package ml

import "math"

const (
	Beta1 = 0.9
	Beta2 = 0.999
)

type Gradient struct {
	Value float64
	M1    float64
	M2    float64
}

type Gradients struct {
	Data []Gradient
}

// Calculate returns the Adam update for the accumulated gradient value.
func (g *Gradient) Calculate(learningRate float64) float64 {

	if g.Value == 0 {
		// nothing to calculate
		return 0
	}

	g.M1 = g.M1*Beta1 + g.Value*(1-Beta1)
	g.M2 = g.M2*Beta2 + (g.Value*g.Value)*(1-Beta2)

	return learningRate * g.M1 / (math.Sqrt(g.M2) + 1e-8)
}

func NewGradients(size int) Gradients {
	return Gradients{
		Data: make([]Gradient, size),
	}
}

func (g *Gradients) Add(index int, delta float64) {
	g.Data[index].Value += delta
}

// Apply moves params against the accumulated gradients and resets them.
func (g *Gradients) Apply(params []float64, learningRate float64) {
	for i := range g.Data {
		params[i] -= g.Data[i].Calculate(learningRate)
		g.Data[i].Value = 0
	}
}
