package features

import (
	"math"

	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// Standardization is an invertible per-feature normalization. Every step is
// skipped when it would be the identity so no needless ops are applied.
type Standardization struct {
	UseLog1p bool
	Mean     float64
	Variance float64
}

func (s *Standardization) useMean() bool     { return s.Mean != 0 }
func (s *Standardization) useVariance() bool { return s.Variance != 1 }

// Standardize applies signed log1p, mean shift and variance scaling in that order.
// The source index is accepted for per-source statistics; the current
// statistics are shared by all sources.
func (s *Standardization) Standardize(x *tensor.Tensor, sourceIndex int) *tensor.Tensor {
	if s.UseLog1p {
		x = x.Map(ml.SignedLog1p)
	}
	if s.useMean() {
		x = x.AddConst(-s.Mean)
	}
	if s.useVariance() {
		x = x.Scale(1 / math.Sqrt(s.Variance))
	}
	return x
}

func (s *Standardization) InvertStandardize(x *tensor.Tensor) *tensor.Tensor {
	if s.useVariance() {
		x = x.Scale(math.Sqrt(s.Variance))
	}
	if s.useMean() {
		x = x.AddConst(s.Mean)
	}
	if s.UseLog1p {
		x = x.Map(ml.SignedExpm1)
	}
	return x
}
