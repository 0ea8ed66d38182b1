// Package embedding provides the text-to-vector collaborators used by the
// retrieval engine.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/medprompt/backend/pkg/config"
)

type Provider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the configured provider, wrapped in cache when one is given.
func New(cfg config.EmbeddingConfig, cache Cache, ttl time.Duration) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "local", "":
		p = NewHashing(cfg.Dimension)
	case "openai":
		p = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cache != nil {
		p = NewCached(p, cache, ttl)
	}
	return p, nil
}
