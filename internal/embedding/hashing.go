package embedding

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:[.'’][\p{L}\p{N}]+)*`)

// Hashing is a local, deterministic embedder: unigrams and bigrams are hashed
// into a fixed number of signed buckets and the result is L2-normalised.
// Identical text always yields an identical vector.
type Hashing struct {
	dim       int
	stopwords map[string]struct{}
}

func NewHashing(dim int) *Hashing {
	return &Hashing{dim: dim, stopwords: defaultStopwords()}
}

func (h *Hashing) Name() string   { return "hashing" }
func (h *Hashing) Dimension() int { return h.dim }

func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	acc := make([]float64, h.dim)
	tokens := h.tokenize(text)

	for i, tok := range tokens {
		h.add(acc, tok, 1)
		if i > 0 {
			h.add(acc, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, h.dim)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (h *Hashing) add(acc []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

func (h *Hashing) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := h.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "these", "those",
		"from", "so", "such", "into", "about", "than", "can", "will", "should", "my", "your", "i", "me",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
