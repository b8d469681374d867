package ml

import (
	"fmt"
	"math"
)

// LossDifference is the elementwise difference between a prediction and its target.
type LossDifference int

const (
	Difference LossDifference = iota
	Absolute
	SmoothAbsolute
	Squared
	SMAPE
)

var lossDifferenceNames = map[string]LossDifference{
	"DIFFERENCE":      Difference,
	"ABSOLUTE":        Absolute,
	"SMOOTH_ABSOLUTE": SmoothAbsolute,
	"SQUARED":         Squared,
	"SMAPE":           SMAPE,
}

func ParseLossDifference(name string) (LossDifference, error) {
	var d, ok = lossDifferenceNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown loss difference %q", name)
	}
	return d, nil
}

func (d LossDifference) String() string {
	for name, v := range lossDifferenceNames {
		if v == d {
			return name
		}
	}
	return fmt.Sprintf("LossDifference(%d)", int(d))
}

const smapeEpsilon = 1e-2

func (d LossDifference) Cost(predicted, target float64) float64 {
	var x = predicted - target
	switch d {
	case Absolute:
		return math.Abs(x)
	case SmoothAbsolute:
		var a = math.Abs(x)
		if a < 1 {
			return 0.5 * x * x
		}
		return a - 0.5
	case Squared:
		return x * x
	case SMAPE:
		return math.Abs(x) / (math.Abs(predicted) + math.Abs(target) + smapeEpsilon)
	}
	return x
}
