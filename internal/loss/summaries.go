package loss

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

const histogramBins = 30

// TrackedScalars evaluates the metrics enabled in the feature's statistics.
func TrackedScalars(e *Evaluation) (map[string]float64, error) {
	var f = e.Feature
	var name = f.Name()
	var tracked = []struct {
		track bool
		key   string
		value func(*Evaluation) (float64, error)
	}{
		{f.Statistics.TrackMean, renderpass.MeanName(name, false), scalar(Mean)},
		{f.Statistics.TrackVariation, renderpass.VariationName(name, false), scalar(Variation)},
		{f.Statistics.TrackMSSSIM, renderpass.MSSSIMName(name, false), MSSSIM},
		{f.MaskedStatistics.TrackMean, renderpass.MeanName(name, true), scalar(MaskedMean)},
		{f.MaskedStatistics.TrackVariation, renderpass.VariationName(name, true), scalar(MaskedVariation)},
		{f.MaskedStatistics.TrackMSSSIM, renderpass.MSSSIMName(name, true), MaskedMSSSIM},
	}
	var result = make(map[string]float64)
	for _, t := range tracked {
		if !t.track {
			continue
		}
		var v, err = t.value(e)
		if err != nil {
			return nil, err
		}
		result[t.key] = v
	}
	return result, nil
}

type Histogram struct {
	Dividers []float64 `json:"dividers"`
	Counts   []float64 `json:"counts"`
	// NonFinite counts NaN and infinite values, which are not binned.
	NonFinite int `json:"non_finite,omitempty"`
}

// NewHistogram bins the finite values. Dividers and Counts are nil when
// there is none.
func NewHistogram(values []float64) Histogram {
	var sorted = make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	var result = Histogram{NonFinite: len(values) - len(sorted)}
	if len(sorted) == 0 {
		return result
	}
	sort.Float64s(sorted)
	var lo, hi = sorted[0], sorted[len(sorted)-1]
	if hi <= lo {
		hi = lo + 1
	}
	var dividers = make([]float64, histogramBins+1)
	floats.Span(dividers, lo, hi)
	// stat.Histogram needs the largest value strictly below the last divider
	dividers[histogramBins] = math.Nextafter(hi, math.Inf(1))
	result.Dividers = dividers
	result.Counts = stat.Histogram(nil, dividers, sorted, nil)
	return result
}

// TrackedHistograms builds the histograms enabled in the feature's statistics.
func TrackedHistograms(e *Evaluation) map[string]Histogram {
	var f = e.Feature
	var name = f.Name()
	var result = make(map[string]Histogram)
	var add = func(track bool, key string, value func(*Evaluation) *tensor.Tensor) {
		if track {
			result[key] = NewHistogram(value(e).Data)
		}
	}
	add(f.Statistics.TrackDifferenceHistogram, renderpass.DifferenceName(name, false), Difference)
	add(f.Statistics.TrackVariationDifferenceHistogram, renderpass.VariationDifferenceName(name, false), VariationDifference)
	add(f.MaskedStatistics.TrackDifferenceHistogram, renderpass.DifferenceName(name, true), MaskedDifference)
	add(f.MaskedStatistics.TrackVariationDifferenceHistogram, renderpass.VariationDifferenceName(name, true), MaskedVariationDifference)
	return result
}
