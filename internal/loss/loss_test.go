package loss

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/ChizhovVadim/DeepDenoiser/internal/ml"
	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

func randomTensor(rnd *rand.Rand, n, h, w, c int) *tensor.Tensor {
	var t = tensor.New(n, h, w, c)
	for i := range t.Data {
		t.Data[i] = rnd.Float64()
	}
	return t
}

func TestZeroWeightsSkipEvaluation(t *testing.T) {
	var f = NewSimple(renderpass.DiffuseDirect, ml.Squared, Weights{}, Weights{}, Statistics{}, Statistics{})
	// nil tensors: any evaluated term would panic
	var got, err = Loss(&Evaluation{Feature: f})
	if err != nil || got != 0 {
		t.Errorf("Loss = %v, %v want exactly 0", got, err)
	}
}

func TestMaskedMeanEmptyMask(t *testing.T) {
	var rnd = rand.New(rand.NewSource(1))
	var f = NewSimple(renderpass.GlossyDirect, ml.Absolute, Weights{}, Weights{Mean: 1, Variation: 1}, Statistics{}, Statistics{})
	var e = &Evaluation{
		Feature:   f,
		Predicted: randomTensor(rnd, 1, 4, 4, 3),
		Target:    randomTensor(rnd, 1, 4, 4, 3),
		Mask:      tensor.New(1, 4, 4, 1),
	}
	if got := MaskedMean(e); got != 0 || math.IsNaN(got) {
		t.Errorf("MaskedMean = %v", got)
	}
	if got := MaskedVariation(e); got != 0 {
		t.Errorf("MaskedVariation = %v", got)
	}
	if got, err := Loss(e); got != 0 || err != nil {
		t.Errorf("Loss = %v, %v", got, err)
	}
}

func TestMaskedMean(t *testing.T) {
	var predicted = tensor.Full(1, 2, 2, 3, 2)
	var target = tensor.Full(1, 2, 2, 3, 0)
	var f = NewSimple(renderpass.GlossyDirect, ml.Absolute, Weights{}, Weights{}, Statistics{}, Statistics{})
	var mask = tensor.FromData(1, 2, 2, 1, []float64{1, 0, 0, 0})
	var e = &Evaluation{Feature: f, Predicted: predicted, Target: target, Mask: mask, MaskSum: 1}
	// one masked pixel, three channels of difference 2
	if got := MaskedMean(e); got != 6 {
		t.Errorf("MaskedMean = %v want 6", got)
	}
}

func TestVariationDifferenceShape(t *testing.T) {
	var rnd = rand.New(rand.NewSource(2))
	const n, h, w, c = 2, 5, 7, 3
	var f = NewSimple(renderpass.Normal, ml.Difference, Weights{}, Weights{}, Statistics{}, Statistics{})
	var e = &Evaluation{Feature: f, Predicted: randomTensor(rnd, n, h, w, c), Target: randomTensor(rnd, n, h, w, c)}
	var horizontal = HorizontalVariationDifference(e)
	if horizontal.Shape != [4]int{n, h, w - 1, c} {
		t.Errorf("horizontal shape = %v", horizontal.Shape)
	}
	var vertical = VerticalVariationDifference(e)
	if vertical.Shape != [4]int{n, h - 1, w, c} {
		t.Errorf("vertical shape = %v", vertical.Shape)
	}
	var joined = VariationDifference(e)
	if joined.Shape != [4]int{n, 1, 1, h*(w-1)*c + (h-1)*w*c} {
		t.Errorf("variation difference shape = %v", joined.Shape)
	}
	// with DIFFERENCE the first entry is the first horizontal variation difference
	var want = (e.Predicted.At(0, 0, 1, 0) - e.Predicted.At(0, 0, 0, 0)) - (e.Target.At(0, 0, 1, 0) - e.Target.At(0, 0, 0, 0))
	if math.Abs(joined.Data[0]-want) > 1e-12 {
		t.Errorf("first entry = %v want %v", joined.Data[0], want)
	}
}

func TestMaskedMSSSIMFails(t *testing.T) {
	var f = NewSimple(renderpass.DiffuseDirect, ml.Absolute, Weights{}, Weights{MSSSIM: 1}, Statistics{}, Statistics{})
	var _, err = Loss(&Evaluation{Feature: f})
	if !errors.Is(err, ErrMaskedMSSSIMNotImplemented) {
		t.Errorf("err = %v", err)
	}
}

func TestMSSSIM(t *testing.T) {
	var rnd = rand.New(rand.NewSource(3))
	var a = randomTensor(rnd, 2, 48, 48, 3)
	var f = NewSimple(renderpass.DiffuseColor, ml.Absolute, Weights{MSSSIM: 1}, Weights{}, Statistics{}, Statistics{})

	var same, err = MSSSIM(&Evaluation{Feature: f, Predicted: a, Target: a})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(same) > 1e-9 {
		t.Errorf("identical images loss = %v want 0", same)
	}

	var noisy = a.Map(func(v float64) float64 { return v + 0.3*(rnd.Float64()-0.5) })
	different, err := MSSSIM(&Evaluation{Feature: f, Predicted: noisy, Target: a})
	if err != nil {
		t.Fatal(err)
	}
	if different <= 0 || different > 1 {
		t.Errorf("noisy images loss = %v", different)
	}

	_, err = MSSSIM(&Evaluation{Feature: f, Predicted: tensor.New(1, 40, 40, 1), Target: tensor.New(1, 40, 40, 1)})
	if err == nil {
		t.Error("expected error for tiles smaller than three scales")
	}
}

func TestLossWeightedSum(t *testing.T) {
	var predicted = tensor.Full(1, 3, 3, 1, 1)
	var target = tensor.Full(1, 3, 3, 1, 0)
	var f = NewSimple(renderpass.Depth, ml.Absolute, Weights{Mean: 2, Variation: 5}, Weights{}, Statistics{}, Statistics{})
	var got, err = Loss(&Evaluation{Feature: f, Predicted: predicted, Target: target})
	if err != nil {
		t.Fatal(err)
	}
	// mean difference 1, constant images have no variation
	if got != 2 {
		t.Errorf("Loss = %v want 2", got)
	}
}

func simpleFeature(pass renderpass.Pass) *TrainingFeature {
	return NewSimple(pass, ml.Absolute, Weights{Mean: 1}, Weights{}, Statistics{TrackMean: true}, Statistics{})
}

func TestBindCombined(t *testing.T) {
	var color = simpleFeature(renderpass.DiffuseColor)
	var direct = simpleFeature(renderpass.DiffuseDirect)
	var indirect = simpleFeature(renderpass.DiffuseIndirect)
	var combined = NewCombinedLightPath(renderpass.Diffuse, ml.Absolute, color, direct, indirect, Weights{Mean: 1}, Statistics{})

	var values = map[renderpass.Pass]float64{
		renderpass.DiffuseColor: 2, renderpass.DiffuseDirect: 3, renderpass.DiffuseIndirect: 4,
	}
	var predictions = make(map[renderpass.Pass]*tensor.Tensor)
	var targets = make(map[renderpass.Pass]*tensor.Tensor)
	for pass, v := range values {
		predictions[pass] = tensor.Full(1, 2, 2, 3, v)
		targets[pass] = tensor.Full(1, 2, 2, 3, v+1)
	}
	// the color target is zero at one pixel
	targets[renderpass.DiffuseColor].Set(0, 0, 0, 0, 0)
	targets[renderpass.DiffuseColor].Set(0, 0, 0, 1, 0)
	targets[renderpass.DiffuseColor].Set(0, 0, 0, 2, 0)

	var b, err = Bind([]*TrainingFeature{color, direct, indirect}, []*TrainingFeature{combined}, nil, predictions, targets)
	if err != nil {
		t.Fatal(err)
	}
	if b.Simple[0].Mask != nil {
		t.Error("color pass must not have a mask")
	}
	if b.Simple[1].MaskSum != 3 {
		t.Errorf("direct mask sum = %v want 3", b.Simple[1].MaskSum)
	}
	var e = b.Combined[0]
	if got := e.Predicted.At(0, 1, 1, 0); got != 2*(3+4) {
		t.Errorf("combined prediction = %v", got)
	}
	if got := e.Target.At(0, 1, 1, 0); got != 3*(4+5) {
		t.Errorf("combined target = %v", got)
	}
	total, err := TotalLoss(b)
	if err != nil {
		t.Fatal(err)
	}
	if total <= 0 {
		t.Errorf("total = %v", total)
	}
	scalars, err := TrackedScalars(b.Simple[0])
	if err != nil {
		t.Fatal(err)
	}
	if scalars[renderpass.MeanName("Diffuse Color", false)] <= 0 {
		t.Errorf("scalars = %v", scalars)
	}
}

func TestBindMissingTarget(t *testing.T) {
	var direct = simpleFeature(renderpass.DiffuseDirect)
	var predictions = map[renderpass.Pass]*tensor.Tensor{renderpass.DiffuseDirect: tensor.New(1, 2, 2, 3)}
	var targets = map[renderpass.Pass]*tensor.Tensor{renderpass.DiffuseDirect: tensor.New(1, 2, 2, 3)}
	if _, err := Bind([]*TrainingFeature{direct}, nil, nil, predictions, targets); err == nil {
		t.Error("expected error: mask needs the color target")
	}
}

func TestHistogram(t *testing.T) {
	var h = NewHistogram([]float64{0, 1, 2, 3, 3})
	var total = 0.0
	for _, c := range h.Counts {
		total += c
	}
	if total != 5 || len(h.Counts) != histogramBins {
		t.Errorf("histogram = %v", h)
	}
}

func TestHistogramNonFinite(t *testing.T) {
	var tests = []struct {
		name      string
		values    []float64
		binned    float64
		nonFinite int
	}{
		{"positive infinity", []float64{0, 1, math.Inf(1)}, 2, 1},
		{"negative infinity", []float64{math.Inf(-1), 0, 1}, 2, 1},
		{"nan", []float64{0, 1, math.NaN()}, 2, 1},
		{"only non-finite", []float64{math.NaN(), math.Inf(1), math.Inf(-1)}, 0, 3},
		{"empty", nil, 0, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var h = NewHistogram(test.values)
			var total = 0.0
			for _, c := range h.Counts {
				total += c
			}
			if total != test.binned {
				t.Errorf("binned %v want %v", total, test.binned)
			}
			if h.NonFinite != test.nonFinite {
				t.Errorf("non-finite %v want %v", h.NonFinite, test.nonFinite)
			}
			for _, d := range h.Dividers {
				if math.IsNaN(d) {
					t.Fatalf("dividers %v", h.Dividers)
				}
			}
		})
	}
}
