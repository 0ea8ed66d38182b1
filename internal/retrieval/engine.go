// Package retrieval keeps the in-memory semantic index over document chunks
// and answers exact nearest-neighbour queries against it.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Entry pairs a chunk with its embedding. Its position in the engine is its
// insertion order and never changes.
type Entry struct {
	Text      string
	Embedding []float32
}

type Result struct {
	Position int
	Text     string
	Distance float64
}

// Engine is an append-only index of entries. Ingest calls are serialised;
// searches read a snapshot and never see a partially applied ingest.
type Engine struct {
	embedder Embedder

	mu        sync.RWMutex
	entries   []Entry
	dimension int
}

func NewEngine(embedder Embedder) *Engine {
	return &Engine{embedder: embedder}
}

// Ingest embeds every chunk and appends all of them, in order, or none.
func (e *Engine) Ingest(ctx context.Context, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := e.embedder.Embed(ctx, chunks)
	if err != nil {
		return &EmbeddingError{Op: "ingest", Count: len(chunks), Err: err}
	}
	if len(vectors) != len(chunks) {
		return &EmbeddingError{
			Op:    "ingest",
			Count: len(chunks),
			Err:   fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}

	dim := len(vectors[0])
	batch := make([]Entry, len(chunks))
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return &EmbeddingError{
				Op:    "ingest",
				Count: len(chunks),
				Err:   fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim),
			}
		}
		vec := make([]float32, dim)
		copy(vec, v)
		batch[i] = Entry{Text: chunks[i], Embedding: vec}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dimension != 0 && e.dimension != dim {
		return &EmbeddingError{
			Op:    "ingest",
			Count: len(chunks),
			Err:   fmt.Errorf("dimension %d does not match index dimension %d", dim, e.dimension),
		}
	}
	e.dimension = dim
	e.entries = append(e.entries, batch...)
	return nil
}

// Search returns up to topK chunk texts, closest first.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]string, error) {
	results, err := e.SearchResults(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts, nil
}

// SearchResults ranks entries by squared Euclidean distance to the query
// embedding. Equal distances keep insertion order.
func (e *Engine) SearchResults(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	entries, dim := e.snapshot()
	if len(entries) == 0 {
		return nil, ErrEmptyIndex
	}

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &EmbeddingError{Op: "search", Count: 1, Err: err}
	}
	if len(vectors) != 1 || len(vectors[0]) != dim {
		return nil, &EmbeddingError{
			Op:    "search",
			Count: 1,
			Err:   fmt.Errorf("query embedding does not match index dimension %d", dim),
		}
	}
	q := vectors[0]

	results := make([]Result, len(entries))
	for i, entry := range entries {
		results[i] = Result{
			Position: i,
			Text:     entry.Text,
			Distance: squaredL2(q, entry.Embedding),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

// Dimension is zero until the first successful ingest.
func (e *Engine) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Entries already in the slice are never mutated and appends never touch
// them, so the returned slice header is safe to read without the lock.
func (e *Engine) snapshot() ([]Entry, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entries[:len(e.entries):len(e.entries)], e.dimension
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
