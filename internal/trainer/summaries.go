package trainer

import (
	"encoding/json"
	"image/color"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ChizhovVadim/DeepDenoiser/internal/loss"
)

const lossKey = "loss"

// MetricMeans accumulates per-batch values and reports their means weighted
// by batch size.
type MetricMeans struct {
	values  map[string][]float64
	weights map[string][]float64
}

func NewMetricMeans() *MetricMeans {
	return &MetricMeans{
		values:  make(map[string][]float64),
		weights: make(map[string][]float64),
	}
}

func (m *MetricMeans) Add(result *Result, batchSize int) {
	m.add(lossKey, result.Loss, batchSize)
	for k, v := range result.Scalars {
		m.add(k, v, batchSize)
	}
}

func (m *MetricMeans) add(key string, value float64, batchSize int) {
	m.values[key] = append(m.values[key], value)
	m.weights[key] = append(m.weights[key], float64(batchSize))
}

// Means returns nil when nothing was added.
func (m *MetricMeans) Means() map[string]float64 {
	if len(m.values) == 0 {
		return nil
	}
	var result = make(map[string]float64, len(m.values))
	for k, values := range m.values {
		result[k] = stat.Mean(values, m.weights[k])
	}
	return result
}

type Summary struct {
	Run        string                    `json:"run"`
	Time       time.Time                 `json:"time"`
	Mode       string                    `json:"mode"`
	Step       int                       `json:"step"`
	Epoch      int                       `json:"epoch"`
	Scalars    map[string]float64        `json:"scalars"`
	Histograms map[string]loss.Histogram `json:"histograms,omitempty"`
}

// SummaryWriter appends summaries as JSON lines. All summaries of a process
// share one run id.
type SummaryWriter struct {
	run  string
	file *os.File
	enc  *json.Encoder
}

func NewSummaryWriter(path string) (*SummaryWriter, error) {
	var f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "summaries")
	}
	return &SummaryWriter{
		run:  uuid.New().String(),
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (w *SummaryWriter) Run() string { return w.run }

func (w *SummaryWriter) Write(s Summary) error {
	s.Run = w.run
	s.Time = time.Now()
	return w.enc.Encode(&s)
}

func (w *SummaryWriter) Close() error {
	return w.file.Close()
}

// LossHistory keeps the loss curves drawn into the loss plot.
type LossHistory struct {
	Training   plotter.XYs
	Validation plotter.XYs
}

func (h *LossHistory) AddTraining(step int, value float64) {
	h.Training = append(h.Training, plotter.XY{X: float64(step), Y: value})
}

func (h *LossHistory) AddValidation(step int, value float64) {
	h.Validation = append(h.Validation, plotter.XY{X: float64(step), Y: value})
}

// Save writes a PNG with the training loss in blue and the validation loss in red.
func (h *LossHistory) Save(path string) error {
	var p = plot.New()
	p.Title.Text = "Loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())

	var curves = []struct {
		name  string
		xys   plotter.XYs
		color color.RGBA
	}{
		{"training", h.Training, color.RGBA{R: 20, G: 80, B: 200, A: 255}},
		{"validation", h.Validation, color.RGBA{R: 200, G: 30, B: 30, A: 255}},
	}
	for _, c := range curves {
		if len(c.xys) == 0 {
			continue
		}
		var line, err = plotter.NewLine(c.xys)
		if err != nil {
			return err
		}
		line.Color = c.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(c.name, line)
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func sortedKeys(m map[string]float64) []string {
	var keys = make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
