package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/metrics"
	"github.com/medprompt/backend/pkg/circuitbreaker"
	"github.com/medprompt/backend/pkg/config"
	"github.com/medprompt/backend/pkg/logger"
	"github.com/medprompt/backend/pkg/retry"
)

// OpenAI calls any OpenAI-compatible embeddings endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	dim         int
	batchSize   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewOpenAI(cfg config.EmbeddingConfig) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange:    metrics.ObserveBreakerState,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.Logger = logger.GetLogger()

	logger.Info("Embedding client initialized",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientConfig.BaseURL),
		zap.Int("dimension", cfg.Dimension),
	)

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		dim:         cfg.Dimension,
		batchSize:   batchSize,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (o *OpenAI) Name() string   { return "openai:" + o.model }
func (o *OpenAI) Dimension() int { return o.dim }

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := min(start+o.batchSize, len(texts))
		batch := texts[start:end]

		var vectors [][]float32
		err := o.cb.Execute(func() error {
			return retry.Do(ctx, o.retryConfig, func() error {
				resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(o.model),
				})
				if err != nil {
					return fmt.Errorf("failed to generate batch embeddings: %w", err)
				}
				if len(resp.Data) != len(batch) {
					return retry.Stop(fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch)))
				}

				vectors = make([][]float32, len(batch))
				for _, data := range resp.Data {
					if data.Index < 0 || data.Index >= len(batch) {
						return retry.Stop(fmt.Errorf("embedding index %d out of range", data.Index))
					}
					vectors[data.Index] = data.Embedding
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}

		embeddings = append(embeddings, vectors...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}
