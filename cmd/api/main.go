package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/api"
	"github.com/medprompt/backend/internal/assistant"
	"github.com/medprompt/backend/internal/cache/redis"
	"github.com/medprompt/backend/internal/chunker"
	"github.com/medprompt/backend/internal/embedding"
	"github.com/medprompt/backend/internal/extract"
	"github.com/medprompt/backend/internal/llm"
	"github.com/medprompt/backend/internal/metrics"
	"github.com/medprompt/backend/internal/middleware/ratelimit"
	"github.com/medprompt/backend/internal/retrieval"
	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/internal/storage/sqlite"
	"github.com/medprompt/backend/internal/tips"
	"github.com/medprompt/backend/pkg/config"
	appLogger "github.com/medprompt/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting MedPrompt API Server")

	metrics.Init()

	var history assistant.HistoryStore
	if cfg.SQLite.Enabled {
		sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer sqliteClient.Close()

		if err := sqliteClient.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		history = sqliteClient
	}

	var cache embedding.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache = redisClient
		}
	}

	embedder, err := embedding.New(cfg.Embedding, cache, time.Duration(cfg.Redis.EmbeddingTTL)*time.Minute)
	if err != nil {
		appLogger.Fatal("Failed to create embedding provider", zap.Error(err))
	}
	engine := retrieval.NewEngine(embedder)

	scorer := risk.NewScorer(loadRiskModel(cfg))

	llmClient := llm.NewClient(cfg.LLM)
	if cfg.LLM.APIKey == "" {
		appLogger.Warn("LLM API key not set, completion endpoints will fail")
	}

	service := assistant.NewService(
		engine,
		scorer,
		llmClient,
		extract.NewExtractor(extract.NewOCRClient(cfg.OCR)),
		chunker.NewSplitter(cfg.Retrieval.MaxChunkChars),
		history,
		assistant.Options{
			TopK:         cfg.Retrieval.TopK,
			SummaryChars: cfg.Retrieval.SummaryChars,
			Defaults:     defaultFeatures(cfg.Vitals.Defaults),
		},
	)

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			WindowDuration:       time.Minute,
			ExemptPrefixes:       []string{"/api/v1/health", "/api/v1/ready", "/metrics"},
			Logger:               appLogger.GetLogger(),
		})
		defer limiter.Stop()
	}

	app := api.NewApp(api.Dependencies{
		Config:      cfg,
		Assistant:   service,
		Tips:        tips.NewPicker(nil, 0),
		ModelReady:  scorer.Ready,
		RateLimiter: limiter,
		AccessLog:   cfg.Server.IsDevelopment,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("embedding_provider", embedder.Name()),
		zap.String("llm_model", llmClient.Model()),
		zap.Bool("model_ready", scorer.Ready()),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

// loadRiskModel returns nil when no model can be provisioned; the server then
// runs with risk scoring reported as unavailable.
func loadRiskModel(cfg *config.Config) *risk.Model {
	if !cfg.Risk.AutoProvision {
		m, err := risk.Load(cfg.Risk.ModelPath)
		if err != nil {
			appLogger.Warn("Risk model not loaded", zap.Error(err))
			return nil
		}
		return m
	}

	m, trained, err := risk.EnsureTrained(risk.ProvisionOptions{
		ModelPath:   cfg.Risk.ModelPath,
		DatasetPath: cfg.Risk.DatasetPath,
		Train:       trainOptions(cfg.Risk),
	})
	if err != nil {
		appLogger.Warn("Risk model not provisioned", zap.Error(err))
		return nil
	}
	appLogger.Info("Risk model ready",
		zap.Bool("trained", trained),
		zap.Float64("test_accuracy", m.Accuracy),
	)
	return m
}

func trainOptions(rc config.RiskConfig) risk.TrainOptions {
	opts := risk.DefaultTrainOptions()
	if rc.TestSize > 0 {
		opts.TestSize = rc.TestSize
	}
	opts.Seed = rc.Seed
	if rc.Iterations > 0 {
		opts.Iterations = rc.Iterations
	}
	if rc.C > 0 {
		opts.C = rc.C
	}
	return opts
}

func defaultFeatures(d config.VitalsDefaults) risk.Features {
	return risk.Features{
		Pregnancies:              d.Pregnancies,
		Glucose:                  d.Glucose,
		BloodPressure:            d.BloodPressure,
		SkinThickness:            d.SkinThickness,
		Insulin:                  d.Insulin,
		BMI:                      d.BMI,
		DiabetesPedigreeFunction: d.DiabetesPedigreeFunction,
		Age:                      d.Age,
	}
}
