package ml

type IActivationFn interface {
	Sigma(x float64) float64
}

type IdentityActivation struct{}

func (*IdentityActivation) Sigma(x float64) float64 { return x }

// LeakyReLuActivation scales negative inputs by Alpha.
type LeakyReLuActivation struct {
	Alpha float64
}

func (a *LeakyReLuActivation) Sigma(x float64) float64 {
	if x > 0 {
		return x
	}
	return a.Alpha * x
}
