package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauspost/cpuid/v2"

	"github.com/ChizhovVadim/DeepDenoiser/internal/config"
	"github.com/ChizhovVadim/DeepDenoiser/internal/tensor"
	"github.com/ChizhovVadim/DeepDenoiser/internal/trainer"
)

type Settings struct {
	validate           bool
	batchSize          int
	threads            int
	trainEpochs        int
	validationInterval int
	dataFormat         string
	jsonFilename       string
}

var settings Settings

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	flag.BoolVar(&settings.validate, "validate", false, "Only evaluate the stored parameters on the validation split")
	flag.IntVar(&settings.batchSize, "batch_size", 4, "Number of samples per batch")
	flag.IntVar(&settings.threads, "threads", cpuid.CPU.LogicalCores+1, "Number of threads")
	flag.IntVar(&settings.trainEpochs, "train_epochs", 10000, "Number of training epochs")
	flag.IntVar(&settings.validationInterval, "validation_interval", 1, "Number of training epochs between validations")
	flag.StringVar(&settings.dataFormat, "data_format", "", "channels_first or channels_last, empty for auto")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %v [flags] json_filename\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	settings.jsonFilename = flag.Arg(0)

	log.Printf("%+v", settings)
	log.Println("cpu", cpuid.CPU.BrandName, "logical cores", cpuid.CPU.LogicalCores)

	var err = run()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	if settings.jsonFilename == "" {
		flag.Usage()
		return errors.New("json_filename is required")
	}
	dataFormat, err := tensor.ParseDataFormat(settings.dataFormat)
	if err != nil {
		return err
	}
	cfg, err := config.Load(settings.jsonFilename)
	if err != nil {
		return err
	}
	setup, err := cfg.Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return trainer.Run(ctx, cfg, setup, trainer.Options{
		Validate:           settings.validate,
		BatchSize:          settings.batchSize,
		Threads:            settings.threads,
		TrainEpochs:        settings.trainEpochs,
		ValidationInterval: settings.validationInterval,
		DataFormat:         dataFormat,
	})
}
