package dataset

import (
	"context"
	"io"
	"log"
	"math/rand"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ChizhovVadim/DeepDenoiser/internal/renderpass"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
)

const shuffleBufferFactor = 20

// Batch stacks BatchSize samples: every tensor is batch x h x w x c.
type Batch struct {
	Size    int
	Sources map[renderpass.Pass][]*tensor.Tensor
	Targets map[renderpass.Pass]*tensor.Tensor
}

// Pipeline reads record files with Threads workers, expands every stored
// example into one sample per index tuple, optionally augments the samples,
// shuffles them in a bounded buffer and emits batches.
type Pipeline struct {
	Files            []string
	Loaders          []*FeatureLoader
	IndexTuples      [][]int
	RequiredIndices  []int
	RGBPermutation   []int
	TilesHeightWidth int
	Epochs           int
	BatchSize        int
	Threads          int
	Augment          bool
	Seed             int64
}

// Run sends batches until the files are exhausted Epochs times. It does not
// close batches.
func (p *Pipeline) Run(ctx context.Context, batches chan<- Batch) error {
	log.Println("pipeline started",
		"files", len(p.Files),
		"epochs", p.Epochs,
		"tuples", len(p.IndexTuples))
	defer log.Println("pipeline finished")

	g, ctx := errgroup.WithContext(ctx)

	var files = make(chan string, 16)
	var samples = make(chan *Sample, shuffleBufferFactor*p.BatchSize)

	g.Go(func() error {
		defer close(files)
		return p.feedFiles(ctx, files)
	})

	var wg = &sync.WaitGroup{}
	for i := 0; i < max(p.Threads, 1); i++ {
		wg.Add(1)
		var rnd = rand.New(rand.NewSource(p.Seed + int64(i) + 1))
		g.Go(func() error {
			defer wg.Done()
			return p.readFiles(ctx, rnd, files, samples)
		})
	}

	g.Go(func() error {
		wg.Wait()
		close(samples)
		return nil
	})

	g.Go(func() error {
		return p.batch(ctx, rand.New(rand.NewSource(p.Seed)), samples, batches)
	})

	return g.Wait()
}

func (p *Pipeline) feedFiles(ctx context.Context, files chan<- string) error {
	var rnd = rand.New(rand.NewSource(p.Seed - 1))
	var all []string
	for epoch := 0; epoch < p.Epochs; epoch++ {
		all = append(all, p.Files...)
	}
	rnd.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	for _, file := range all {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case files <- file:
		}
	}
	return nil
}

func (p *Pipeline) readFiles(ctx context.Context, rnd *rand.Rand, files <-chan string, samples chan<- *Sample) error {
	for file := range files {
		var err = p.readFile(ctx, rnd, file, samples)
		if err != nil {
			return errors.Wrapf(err, "read %v", file)
		}
	}
	return nil
}

func (p *Pipeline) keep(key string) bool {
	for _, fl := range p.Loaders {
		if fl.Required(key, p.RequiredIndices) {
			return true
		}
	}
	return false
}

func (p *Pipeline) readFile(ctx context.Context, rnd *rand.Rand, file string, samples chan<- *Sample) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	rr, err := NewRecordReader(f)
	if err != nil {
		return err
	}
	for {
		var payload, err = rr.ReadRecord()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		example, err := UnmarshalExample(payload, p.keep)
		if err != nil {
			return err
		}
		expanded, err := Samples(example, p.Loaders, p.IndexTuples, p.RequiredIndices, p.TilesHeightWidth)
		if err != nil {
			return err
		}
		for _, sample := range expanded {
			if p.Augment {
				RandomAugmentation(rnd, p.RGBPermutation).Apply(sample)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case samples <- sample:
			}
		}
	}
}

// batch keeps a shuffle buffer of shuffleBufferFactor*BatchSize samples and
// emits a batch whenever it is full. The last batch may be smaller.
func (p *Pipeline) batch(ctx context.Context, rnd *rand.Rand, samples <-chan *Sample, batches chan<- Batch) error {
	var bufferSize = shuffleBufferFactor * p.BatchSize
	var buffer = make([]*Sample, 0, bufferSize)
	var pending []*Sample

	var emit = func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batches <- Stack(pending):
			pending = nil
			return nil
		}
	}
	var take = func() error {
		var i = rnd.Intn(len(buffer))
		pending = append(pending, buffer[i])
		buffer[i] = buffer[len(buffer)-1]
		buffer = buffer[:len(buffer)-1]
		if len(pending) == p.BatchSize {
			return emit()
		}
		return nil
	}

	for sample := range samples {
		buffer = append(buffer, sample)
		if len(buffer) < bufferSize {
			continue
		}
		if err := take(); err != nil {
			return err
		}
	}
	for len(buffer) > 0 {
		if err := take(); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		return emit()
	}
	return nil
}

// Stack joins samples into a batch.
func Stack(samples []*Sample) Batch {
	var batch = Batch{
		Size:    len(samples),
		Sources: make(map[renderpass.Pass][]*tensor.Tensor),
		Targets: make(map[renderpass.Pass]*tensor.Tensor),
	}
	var first = samples[0]
	for pass, sources := range first.Sources {
		var stacked = make([]*tensor.Tensor, len(sources))
		for i := range sources {
			var parts = make([]*tensor.Tensor, len(samples))
			for j, s := range samples {
				parts[j] = s.Sources[pass][i]
			}
			stacked[i] = tensor.Stack(parts)
		}
		batch.Sources[pass] = stacked
	}
	for pass := range first.Targets {
		var parts = make([]*tensor.Tensor, len(samples))
		for j, s := range samples {
			parts[j] = s.Targets[pass]
		}
		batch.Targets[pass] = tensor.Stack(parts)
	}
	return batch
}
