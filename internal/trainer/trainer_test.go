package trainer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/ChizhovVadim/DeepDenoiser/internal/config"
	"github.com/ChizhovVadim/DeepDenoiser/internal/dataset"
	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
)

func TestSourceIndexTuplesRoundRobin(t *testing.T) {
	var rnd = rand.New(rand.NewSource(1))
	for _, test := range []struct {
		perExample, tuples int
	}{
		{4, 8},
		{3, 3},
		{5, 20},
	} {
		t.Run(fmt.Sprintf("%d/%d", test.perExample, test.tuples), func(t *testing.T) {
			tuples, required, err := SourceIndexTuples(rnd, test.perExample, test.tuples, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(tuples) != test.tuples {
				t.Fatalf("tuples %d", len(tuples))
			}
			var counts = make([]int, test.perExample)
			for _, tuple := range tuples {
				if len(tuple) != 1 {
					t.Fatalf("tuple %v", tuple)
				}
				counts[tuple[0]]++
			}
			for index, count := range counts {
				if count != test.tuples/test.perExample {
					t.Errorf("index %d used %d times", index, count)
				}
			}
			if len(required) != test.perExample {
				t.Errorf("required %v", required)
			}
		})
	}
}

func TestSourceIndexTuplesRemainder(t *testing.T) {
	var rnd = rand.New(rand.NewSource(2))
	tuples, required, err := SourceIndexTuples(rnd, 8, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tuples) != 3 {
		t.Fatalf("tuples %v", tuples)
	}
	for i := 1; i < len(required); i++ {
		if required[i] <= required[i-1] {
			t.Errorf("required indices %v are not sorted and unique", required)
		}
	}
	for _, index := range required {
		if index < 0 || index >= 8 {
			t.Errorf("index %d out of range", index)
		}
	}
}

func TestSourceIndexTuplesDistinct(t *testing.T) {
	var rnd = rand.New(rand.NewSource(3))
	tuples, required, err := SourceIndexTuples(rnd, 4, 50, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, tuple := range tuples {
		if len(tuple) != 3 {
			t.Fatalf("tuple %v", tuple)
		}
		for i := range tuple {
			if tuple[i] < 0 || tuple[i] >= 4 {
				t.Errorf("tuple %v out of range", tuple)
			}
			for j := i + 1; j < len(tuple); j++ {
				if tuple[i] == tuple[j] {
					t.Errorf("tuple %v has duplicates", tuple)
				}
			}
		}
	}
	if len(required) > 4 {
		t.Errorf("required %v", required)
	}

	if _, _, err := SourceIndexTuples(rnd, 2, 5, 3); !errors.Is(err, ErrTooFewSources) {
		t.Errorf("err = %v", err)
	}
}

func TestRGBPermutation(t *testing.T) {
	var rnd = rand.New(rand.NewSource(4))
	var seen = make(map[string]bool)
	for i := 0; i < 200; i++ {
		var perm = RGBPermutation(rnd)
		if perm == nil {
			continue
		}
		if perm[0] == 0 && perm[1] == 1 && perm[2] == 2 {
			t.Fatal("identity permutation returned")
		}
		seen[fmt.Sprint(perm)] = true
	}
	if len(seen) != 5 {
		t.Errorf("permutations %v", seen)
	}
}

func TestCosineDecayRestarts(t *testing.T) {
	var s = NewCosineDecayRestarts(1)
	for _, test := range []struct {
		step int
		want float64
	}{
		{0, 1},
		{500, 0.01 + 0.99*0.5},
		{1000, 0.01 + 0.99*0.8},
		// middle of the second period of 1300 steps
		{1650, 0.01 + 0.99*0.8*0.5},
	} {
		if got := s.At(test.step); math.Abs(got-test.want) > 1e-9 {
			t.Errorf("step %d: %v want %v", test.step, got, test.want)
		}
	}
	if s.At(999) > 0.02 {
		t.Errorf("end of first period %v", s.At(999))
	}
}

func TestMetricMeans(t *testing.T) {
	var m = NewMetricMeans()
	if m.Means() != nil {
		t.Error("empty means")
	}
	m.Add(&Result{Loss: 1, Scalars: map[string]float64{"a": 2}}, 1)
	m.Add(&Result{Loss: 4, Scalars: map[string]float64{"a": 5}}, 2)
	var means = m.Means()
	if means[lossKey] != 3 || means["a"] != 4 {
		t.Errorf("means %v", means)
	}
}

// writeSplit stores examples of one Diffuse Color feature whose target is
// the mean of its sources.
func writeSplit(t *testing.T, base, name string, examples, sources, tile int) {
	t.Helper()
	var dir = filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var rnd = rand.New(rand.NewSource(int64(len(name))))
	f, err := os.Create(filepath.Join(dir, "part-0.gz"))
	if err != nil {
		t.Fatal(err)
	}
	var rw = dataset.NewRecordWriter(f)
	for e := 0; e < examples; e++ {
		var example = make(dataset.Example)
		var size = tile * tile * 3
		var target = make([]float32, size)
		for i := range target {
			target[i] = rnd.Float32()
		}
		for s := 0; s < sources; s++ {
			var values = make([]float32, size)
			for i := range values {
				values[i] = target[i] + 0.1*(rnd.Float32()-0.5)
			}
			example[renderpass.SourceKey(renderpass.DiffuseColor, s)] = values
		}
		example[renderpass.TargetKey(renderpass.DiffuseColor)] = target
		if err := rw.WriteExample(example); err != nil {
			t.Fatal(err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	var stats = dataset.Statistics{TilesHeightWidth: tile, NumberOfSourcesPerExample: sources}
	if err := stats.Save(dir); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T, base, modelDirectory string) (*config.Config, *config.Setup) {
	t.Helper()
	var raw = map[string]interface{}{
		"model_directory":               modelDirectory,
		"base_tfrecords_directory":      base,
		"modes":                         []string{"training", "validation"},
		"number_of_source_index_tuples": 2,
		"number_of_sources_per_target":  1,
		"use_rgb_permutations":          true,
		"loss_difference":               "SQUARED",
		"seed":                          7,
		"network":                       map[string]interface{}{"hidden_layers": []int{4}},
		"features": map[string]interface{}{
			"Diffuse Color": map[string]interface{}{
				"is_source":          true,
				"is_target":          true,
				"number_of_channels": 3,
				"feature_variance":   map[string]interface{}{"use_variance": true},
				"standardization":    map[string]interface{}{"variance": 1},
				"loss_weights":       map[string]interface{}{"mean": 1, "variation": 0.5},
				"statistics":         map[string]interface{}{"track_mean": true, "track_difference_histogram": true},
			},
		},
	}
	var data, err = json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	setup, err := cfg.Build()
	if err != nil {
		t.Fatal(err)
	}
	return cfg, setup
}

func TestRun(t *testing.T) {
	var base = t.TempDir()
	var modelDirectory = filepath.Join(t.TempDir(), "model")
	writeSplit(t, base, "training", 3, 2, 4)
	writeSplit(t, base, "validation", 2, 2, 6)
	var cfg, setup = testConfig(t, base, modelDirectory)

	var options = Options{
		Validate:           true,
		BatchSize:          2,
		Threads:            2,
		TrainEpochs:        3,
		ValidationInterval: 2,
	}
	if err := Run(context.Background(), cfg, setup, options); err == nil {
		t.Fatal("validation without trained parameters should fail")
	}

	options.Validate = false
	if err := Run(context.Background(), cfg, setup, options); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{parametersFileName, summariesFileName, lossPlotFileName} {
		if _, err := os.Stat(filepath.Join(modelDirectory, name)); err != nil {
			t.Error(err)
		}
	}

	options.Validate = true
	if err := Run(context.Background(), cfg, setup, options); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(modelDirectory, summariesFileName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var modes = make(map[string]int)
	var runs = make(map[string]bool)
	var scanner = bufio.NewScanner(f)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		var s Summary
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			t.Fatal(err)
		}
		modes[s.Mode]++
		runs[s.Run] = true
		if s.Mode == config.ModeTraining {
			if _, ok := s.Scalars["learning_rate"]; !ok {
				t.Errorf("training summary without learning rate: %v", s.Scalars)
			}
			if _, ok := s.Histograms[renderpass.DifferenceName("Diffuse Color", false)]; !ok {
				t.Errorf("training summary without histogram")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	// 3 examples x 2 tuples = 6 samples = 3 batches per epoch
	if modes[config.ModeTraining] != 9 {
		t.Errorf("training summaries %d", modes[config.ModeTraining])
	}
	// after epochs 2 and 3, and the validation only run
	if modes[config.ModeValidation] != 3 {
		t.Errorf("validation summaries %d", modes[config.ModeValidation])
	}
	if len(runs) != 2 {
		t.Errorf("runs %v", runs)
	}
}

func TestRunRejectsTooFewSources(t *testing.T) {
	var base = t.TempDir()
	writeSplit(t, base, "training", 1, 1, 4)
	writeSplit(t, base, "validation", 1, 1, 4)
	var cfg, setup = testConfig(t, base, t.TempDir())
	cfg.NumberOfSourcesPerTarget = 2
	var _, err = NewTrainer(cfg, setup, Options{BatchSize: 1, Threads: 1})
	if !errors.Is(err, ErrTooFewSources) {
		t.Errorf("err = %v", err)
	}
}
