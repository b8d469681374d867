package features

import (
	"fmt"
	"sort"

	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// FeatureFlags are constant conditioning planes injected next to the sources
// of a feature in the single-feature architecture, so the shared network can
// tell which render pass it is denoising.
type FeatureFlags struct {
	names  []string
	values map[string]float64
	passes map[renderpass.Pass]map[string]bool
	frozen bool
}

// NewFeatureFlags takes the flag vocabulary: name -> value of the plane when set.
func NewFeatureFlags(values map[string]float64) *FeatureFlags {
	var names = make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return &FeatureFlags{
		names:  names,
		values: values,
		passes: make(map[renderpass.Pass]map[string]bool),
	}
}

func (ff *FeatureFlags) AddRenderPass(pass renderpass.Pass, flagNames []string) error {
	if ff.frozen {
		return fmt.Errorf("feature flags are frozen")
	}
	var set = make(map[string]bool, len(flagNames))
	for _, name := range flagNames {
		if _, ok := ff.values[name]; !ok {
			return fmt.Errorf("unknown feature flag %q for %v", name, pass)
		}
		set[name] = true
	}
	ff.passes[pass] = set
	return nil
}

func (ff *FeatureFlags) Freeze() { ff.frozen = true }

func (ff *FeatureFlags) Channels() int {
	if ff == nil {
		return 0
	}
	return len(ff.names)
}

// Planes returns a channels-last n x h x w x Channels() tensor for the pass,
// or nil when there are no flags.
func (ff *FeatureFlags) Planes(pass renderpass.Pass, n, h, w int) *tensor.Tensor {
	if ff.Channels() == 0 {
		return nil
	}
	if !ff.frozen {
		panic("features: feature flags used before freeze")
	}
	var c = len(ff.names)
	var planes = tensor.New(n, h, w, c)
	var set = ff.passes[pass]
	for i, name := range ff.names {
		if !set[name] {
			continue
		}
		var v = ff.values[name]
		for p := 0; p < n*h*w; p++ {
			planes.Data[p*c+i] = v
		}
	}
	return planes
}
