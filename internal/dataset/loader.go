// Package dataset reads stored training examples and turns them into batches
// of per-step sources and targets.
package dataset

import (
	"fmt"

	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

// FeatureLoader knows how one render pass is stored: every example holds
// the pass for each source index and, for targets, one ground truth buffer.
type FeatureLoader struct {
	Name             renderpass.Pass
	IsTarget         bool
	NumberOfChannels int
}

// Required reports whether key is needed for the given source indices.
func (fl *FeatureLoader) Required(key string, requiredIndices []int) bool {
	if fl.IsTarget && key == renderpass.TargetKey(fl.Name) {
		return true
	}
	for _, index := range requiredIndices {
		if key == renderpass.SourceKey(fl.Name, index) {
			return true
		}
	}
	return false
}

// Deserialized holds one example's tensors of a feature, 1 x h x w x c each.
type Deserialized struct {
	*FeatureLoader
	sources map[int]*tensor.Tensor
	target  *tensor.Tensor
}

func (fl *FeatureLoader) Deserialize(example Example, requiredIndices []int, height, width int) (*Deserialized, error) {
	var d = &Deserialized{
		FeatureLoader: fl,
		sources:       make(map[int]*tensor.Tensor, len(requiredIndices)),
	}
	for _, index := range requiredIndices {
		var t, err = fl.deserialize(example, renderpass.SourceKey(fl.Name, index), height, width)
		if err != nil {
			return nil, err
		}
		d.sources[index] = t
	}
	if fl.IsTarget {
		var t, err = fl.deserialize(example, renderpass.TargetKey(fl.Name), height, width)
		if err != nil {
			return nil, err
		}
		d.target = t
	}
	return d, nil
}

func (fl *FeatureLoader) deserialize(example Example, key string, height, width int) (*tensor.Tensor, error) {
	var values, ok = example[key]
	if !ok {
		return nil, fmt.Errorf("example has no %q", key)
	}
	if len(values) != height*width*fl.NumberOfChannels {
		return nil, fmt.Errorf("%q has %d values, expected %dx%dx%d", key, len(values), height, width, fl.NumberOfChannels)
	}
	var data = make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return tensor.FromData(1, height, width, fl.NumberOfChannels, data), nil
}

// Sample is one training example: the sources selected by an index tuple and
// the targets.
type Sample struct {
	Sources map[renderpass.Pass][]*tensor.Tensor
	Targets map[renderpass.Pass]*tensor.Tensor
}

func NewSample() *Sample {
	return &Sample{
		Sources: make(map[renderpass.Pass][]*tensor.Tensor),
		Targets: make(map[renderpass.Pass]*tensor.Tensor),
	}
}

func (d *Deserialized) AddToSources(sample *Sample, indexTuple []int) {
	var sources = make([]*tensor.Tensor, len(indexTuple))
	for i, index := range indexTuple {
		sources[i] = d.sources[index]
	}
	sample.Sources[d.Name] = sources
}

func (d *Deserialized) AddToTargets(sample *Sample) {
	if d.IsTarget {
		sample.Targets[d.Name] = d.target
	}
}

// Samples expands one stored example into one sample per index tuple.
func Samples(example Example, loaders []*FeatureLoader, indexTuples [][]int, requiredIndices []int, tilesHeightWidth int) ([]*Sample, error) {
	var deserialized = make([]*Deserialized, len(loaders))
	for i, fl := range loaders {
		var d, err = fl.Deserialize(example, requiredIndices, tilesHeightWidth, tilesHeightWidth)
		if err != nil {
			return nil, err
		}
		deserialized[i] = d
	}
	var result = make([]*Sample, len(indexTuples))
	for i, indexTuple := range indexTuples {
		var sample = NewSample()
		for _, d := range deserialized {
			d.AddToSources(sample, indexTuple)
			d.AddToTargets(sample)
		}
		result[i] = sample
	}
	return result, nil
}
