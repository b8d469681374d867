package trainer

import "math"

// CosineDecayRestarts is a cosine learning rate decay with warm restarts.
// Every period is TMul times longer than the previous one and starts at
// MMul times the previous initial rate. Alpha is the floor as a fraction of
// the rate.
type CosineDecayRestarts struct {
	LearningRate    float64
	FirstDecaySteps int
	TMul            float64
	MMul            float64
	Alpha           float64
}

func NewCosineDecayRestarts(learningRate float64) *CosineDecayRestarts {
	return &CosineDecayRestarts{
		LearningRate:    learningRate,
		FirstDecaySteps: 1000,
		TMul:            1.3,
		MMul:            0.8,
		Alpha:           0.01,
	}
}

func (s *CosineDecayRestarts) At(step int) float64 {
	var fraction = float64(step) / float64(s.FirstDecaySteps)
	var restart float64
	if s.TMul == 1 {
		restart = math.Floor(fraction)
		fraction -= restart
	} else {
		restart = math.Floor(math.Log(1-fraction*(1-s.TMul)) / math.Log(s.TMul))
		var completed = (1 - math.Pow(s.TMul, restart)) / (1 - s.TMul)
		fraction = (fraction - completed) / math.Pow(s.TMul, restart)
	}
	var cosine = 0.5 * math.Pow(s.MMul, restart) * (1 + math.Cos(math.Pi*fraction))
	return s.LearningRate * ((1-s.Alpha)*cosine + s.Alpha)
}
