package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/chunker"
	"github.com/medprompt/backend/internal/embedding"
	"github.com/medprompt/backend/internal/evaluation"
	"github.com/medprompt/backend/internal/retrieval"
	"github.com/medprompt/backend/pkg/config"
	appLogger "github.com/medprompt/backend/pkg/logger"
)

func main() {
	datasetPath := flag.String("dataset", "./data/retrieval_eval.json", "labeled retrieval dataset")
	topK := flag.Int("k", 0, "results per query (default retrieval.topK)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	f, err := os.Open(*datasetPath)
	if err != nil {
		appLogger.Fatal("Failed to open dataset", zap.Error(err))
	}
	dataset, err := evaluation.LoadDataset(f)
	f.Close()
	if err != nil {
		appLogger.Fatal("Failed to load dataset", zap.Error(err))
	}

	embedder, err := embedding.New(cfg.Embedding, nil, 0)
	if err != nil {
		appLogger.Fatal("Failed to create embedding provider", zap.Error(err))
	}

	k := *topK
	if k <= 0 {
		k = cfg.Retrieval.TopK
	}

	evaluator := evaluation.NewEvaluator(
		retrieval.NewEngine(embedder),
		chunker.NewSplitter(cfg.Retrieval.MaxChunkChars),
		k,
	)

	report, err := evaluator.Run(context.Background(), dataset)
	if err != nil {
		appLogger.Fatal("Evaluation failed", zap.Error(err))
	}

	fmt.Println(report.String())
}
