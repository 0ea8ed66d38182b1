package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/metrics"
	"github.com/medprompt/backend/pkg/logger"
	"github.com/medprompt/backend/pkg/utils"
)

type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error
}

// Cached serves repeated texts from a cache and embeds only the misses, in
// one call to the wrapped provider. Cache failures count as misses.
type Cached struct {
	next  Provider
	cache Cache
	ttl   time.Duration
}

func NewCached(next Provider, cache Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl}
}

func (c *Cached) Name() string   { return c.next.Name() }
func (c *Cached) Dimension() int { return c.next.Dimension() }

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		keys[i] = utils.HashStrings(c.next.Name(), t)

		vec, ok, err := c.cache.GetEmbedding(ctx, keys[i])
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if ok && len(vec) > 0 {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			out[i] = vec
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(missTexts))
	}

	for j, vec := range vectors {
		i := missIdx[j]
		out[i] = vec
		if err := c.cache.SetEmbedding(ctx, keys[i], vec, c.ttl); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}
	return out, nil
}
