package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/pkg/config"
	appLogger "github.com/medprompt/backend/pkg/logger"
)

func main() {
	force := flag.Bool("force", false, "retrain even if the model artifact exists")
	dataset := flag.String("dataset", "", "override risk.datasetPath")
	output := flag.String("output", "", "override risk.modelPath")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, "console", "stdout"); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	opts := risk.ProvisionOptions{
		ModelPath:   cfg.Risk.ModelPath,
		DatasetPath: cfg.Risk.DatasetPath,
		Force:       *force,
		Train:       risk.DefaultTrainOptions(),
	}
	if *dataset != "" {
		opts.DatasetPath = *dataset
	}
	if *output != "" {
		opts.ModelPath = *output
	}
	opts.Train.TestSize = cfg.Risk.TestSize
	opts.Train.Seed = cfg.Risk.Seed
	if cfg.Risk.Iterations > 0 {
		opts.Train.Iterations = cfg.Risk.Iterations
	}
	if cfg.Risk.C > 0 {
		opts.Train.C = cfg.Risk.C
	}

	m, trained, err := risk.EnsureTrained(opts)
	if err != nil {
		appLogger.Fatal("Failed to provision risk model", zap.Error(err))
	}

	if !trained {
		appLogger.Info("Model artifact already present, use -force to retrain",
			zap.String("artifact", opts.ModelPath),
			zap.Float64("test_accuracy", m.Accuracy),
		)
		return
	}

	appLogger.Info("Model artifact written",
		zap.String("artifact", opts.ModelPath),
		zap.Float64("test_accuracy", m.Accuracy),
	)
}
