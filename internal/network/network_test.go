package network

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

func TestTopologySize(t *testing.T) {
	var tests = []struct {
		topology Topology
		size     int
	}{
		{NewTopology(4, 2, nil), 4*2 + 2},
		{NewTopology(4, 2, []uint32{3}), 4*3 + 3 + 3*2 + 2},
		{NewTopology(5, 9, []uint32{8, 6}), 5*8 + 8 + 8*6 + 6 + 6*9 + 9},
	}
	for _, test := range tests {
		t.Run(test.topology.String(), func(t *testing.T) {
			if got := test.topology.Size(); got != test.size {
				t.Errorf("Size() = %v want %v", got, test.size)
			}
			var p = NewParameters(rand.New(rand.NewSource(1)), test.topology)
			if len(p.Data) != test.size {
				t.Errorf("len(Data) = %v want %v", len(p.Data), test.size)
			}
		})
	}
}

func TestForwardDataFormats(t *testing.T) {
	var rnd = rand.New(rand.NewSource(1))
	var topology = NewTopology(3, 2, []uint32{5})
	var params = NewParameters(rnd, topology)
	var pn = NewPixelNetwork(topology, 3)

	var input = tensor.New(2, 4, 5, 3)
	for i := range input.Data {
		input.Data[i] = rnd.NormFloat64()
	}
	last, err := pn.Forward(params, input)
	if err != nil {
		t.Fatal(err)
	}
	if last.Shape != [4]int{2, 4, 5, 2} {
		t.Fatalf("shape = %v", last.Shape)
	}
	first, err := pn.Forward(params, tensor.Transpose(input, tensor.ChannelsFirst))
	if err != nil {
		t.Fatal(err)
	}
	if first.Format != tensor.ChannelsFirst {
		t.Fatalf("format = %v", first.Format)
	}
	var back = tensor.Transpose(first, tensor.ChannelsLast)
	for i := range last.Data {
		if math.Abs(last.Data[i]-back.Data[i]) > 1e-12 {
			t.Fatalf("formats disagree at %d: %v vs %v", i, last.Data[i], back.Data[i])
		}
	}

	if _, err := pn.Forward(params, tensor.New(1, 2, 2, 4)); err == nil {
		t.Error("expected error for wrong input width")
	}
}

func TestForwardIsPerPixel(t *testing.T) {
	var rnd = rand.New(rand.NewSource(2))
	var topology = NewTopology(2, 1, []uint32{4})
	var params = NewParameters(rnd, topology)
	var pn = NewPixelNetwork(topology, 1)
	var input = tensor.New(1, 2, 2, 2)
	for p := 0; p < 4; p++ {
		input.Data[2*p] = 0.5
		input.Data[2*p+1] = -0.25
	}
	var output, err = pn.Forward(params, input)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range output.Data[1:] {
		if v != output.Data[0] {
			t.Fatalf("equal pixels give different outputs: %v", output.Data)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	var params = NewParameters(rand.New(rand.NewSource(3)), NewTopology(7, 9, []uint32{6, 5}))
	var path = filepath.Join(t.TempDir(), "parameters.nn")
	if err := params.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadParameters(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Id != params.Id || loaded.Topology.String() != params.Topology.String() {
		t.Fatalf("loaded %v %v want %v %v", loaded.Id, loaded.Topology, params.Id, params.Topology)
	}
	for i := range params.Data {
		if float32(params.Data[i]) != float32(loaded.Data[i]) {
			t.Fatalf("value %d: %v vs %v", i, loaded.Data[i], params.Data[i])
		}
	}
}

func TestSaveKeepsPreviousFileOnFailure(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "parameters.nn")
	var first = NewParameters(rand.New(rand.NewSource(5)), NewTopology(2, 1, []uint32{3}))
	if err := first.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}

	// a directory in place of the temporary file makes the next save fail
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path+".tmp", "busy"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	var second = NewParameters(rand.New(rand.NewSource(6)), NewTopology(2, 1, []uint32{3}))
	if err := second.Save(path); err == nil {
		t.Fatal("expected error")
	}
	loaded, err := LoadParameters(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Id != first.Id {
		t.Errorf("id %v want %v", loaded.Id, first.Id)
	}
}

func TestLoadRejectsForeignFile(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "garbage.nn")
	if err := os.WriteFile(path, []byte("not a parameter file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadParameters(path); err == nil {
		t.Error("expected error for foreign file")
	}
	if _, err := LoadParameters(filepath.Join(t.TempDir(), "missing.nn")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOptimizerReducesLoss(t *testing.T) {
	var rnd = rand.New(rand.NewSource(4))
	var params = &Parameters{Topology: NewTopology(1, 1, []uint32{1}), Data: []float64{3, -2, 1, 4}}
	var target = []float64{0.5, 0.5, -1, 2}
	var lossFn = func() (float64, error) {
		var sum = 0.0
		for i, v := range params.Data {
			sum += (v - target[i]) * (v - target[i])
		}
		return sum, nil
	}
	var initial, _ = lossFn()
	var optimizer = NewOptimizer(rnd, len(params.Data))
	for i := 0; i < 2000; i++ {
		if err := optimizer.Step(params, 1e-2, lossFn); err != nil {
			t.Fatal(err)
		}
	}
	var final, _ = lossFn()
	if final > initial/10 {
		t.Errorf("loss %v -> %v", initial, final)
	}
}
