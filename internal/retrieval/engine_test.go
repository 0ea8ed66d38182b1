package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// tableEmbedder maps known texts to fixed vectors; unknown texts fail.
type tableEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
}

func (f *tableEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

// lenEmbedder embeds a text as a one-dimensional vector of its length.
type lenEmbedder struct{}

func (lenEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0}
	}
	return out, nil
}

func newTableEngine() (*Engine, *tableEmbedder) {
	emb := &tableEmbedder{vectors: map[string][]float32{
		"A":      {0, 0},
		"B":      {5, 0},
		"C":      {10, 0},
		"near-B": {4.5, 0},
		"left":   {-1, 0},
		"right":  {1, 0},
		"origin": {0, 0},
	}}
	return NewEngine(emb), emb
}

func TestSearchEmptyIndex(t *testing.T) {
	eng, emb := newTableEngine()

	_, err := eng.Search(context.Background(), "A", 1)
	if !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("err = %v, want ErrEmptyIndex", err)
	}
	if emb.calls != 0 {
		t.Fatalf("embedder called %d times on empty index", emb.calls)
	}
}

func TestSearchInvalidTopK(t *testing.T) {
	eng, _ := newTableEngine()
	for _, k := range []int{0, -3} {
		if _, err := eng.Search(context.Background(), "A", k); !errors.Is(err, ErrInvalidTopK) {
			t.Fatalf("topK=%d: err = %v, want ErrInvalidTopK", k, err)
		}
	}
}

func TestIngestEmptyIsNoop(t *testing.T) {
	eng, emb := newTableEngine()
	if err := eng.Ingest(context.Background(), nil); err != nil {
		t.Fatalf("Ingest(nil): %v", err)
	}
	if eng.Len() != 0 || emb.calls != 0 {
		t.Fatalf("len = %d, calls = %d", eng.Len(), emb.calls)
	}
}

func TestIngestCumulativeLength(t *testing.T) {
	eng := NewEngine(lenEmbedder{})
	ctx := context.Background()

	batches := [][]string{{"a", "bb"}, {"ccc"}, {"dddd", "e", "ff"}}
	total := 0
	for _, b := range batches {
		if err := eng.Ingest(ctx, b); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		total += len(b)
		if eng.Len() != total {
			t.Fatalf("len = %d, want %d", eng.Len(), total)
		}
	}
	if eng.Dimension() != 2 {
		t.Fatalf("dimension = %d, want 2", eng.Dimension())
	}
}

func TestSearchExactMatchIsTop(t *testing.T) {
	eng, _ := newTableEngine()
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"A", "B", "C"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, err := eng.SearchResults(ctx, "B", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Text != "B" || got[0].Distance != 0 || got[0].Position != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSearchOrderingAscending(t *testing.T) {
	eng, _ := newTableEngine()
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"C", "A", "B"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, err := eng.Search(ctx, "near-B", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"B", "A", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	eng, _ := newTableEngine()
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"right", "left"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	for i := 0; i < 5; i++ {
		got, err := eng.Search(ctx, "origin", 2)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(got) != 2 || got[0] != "right" || got[1] != "left" {
			t.Fatalf("run %d: got %v, want [right left]", i, got)
		}
	}
}

func TestSearchTopKLargerThanIndex(t *testing.T) {
	eng, _ := newTableEngine()
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	got, err := eng.Search(ctx, "A", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestIngestFailureIsAtomic(t *testing.T) {
	eng, _ := newTableEngine()
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"A"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	err := eng.Ingest(ctx, []string{"B", "unknown", "C"})
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("err = %v, want *EmbeddingError", err)
	}
	if embErr.Op != "ingest" || embErr.Count != 3 {
		t.Fatalf("unexpected error fields: %+v", embErr)
	}
	if eng.Len() != 1 {
		t.Fatalf("len = %d after failed ingest, want 1", eng.Len())
	}
}

type badEmbedder struct{ vectors [][]float32 }

func (b badEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return b.vectors, nil
}

func TestIngestRejectsMalformedVectors(t *testing.T) {
	cases := map[string][][]float32{
		"count mismatch": {{1, 2}},
		"ragged":         {{1, 2}, {1}},
		"empty vector":   {{}, {}},
	}
	for name, vectors := range cases {
		t.Run(name, func(t *testing.T) {
			eng := NewEngine(badEmbedder{vectors: vectors})
			err := eng.Ingest(context.Background(), []string{"x", "y"})
			var embErr *EmbeddingError
			if !errors.As(err, &embErr) {
				t.Fatalf("err = %v, want *EmbeddingError", err)
			}
			if eng.Len() != 0 {
				t.Fatalf("len = %d, want 0", eng.Len())
			}
		})
	}
}

func TestIngestRejectsDimensionChange(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{"two": {1, 2}, "three": {1, 2, 3}}}
	eng := NewEngine(emb)
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"two"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := eng.Ingest(ctx, []string{"three"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if eng.Len() != 1 {
		t.Fatalf("len = %d, want 1", eng.Len())
	}
}

func TestIngestCopiesVectors(t *testing.T) {
	vec := []float32{1, 1}
	eng := NewEngine(badEmbedder{vectors: [][]float32{vec}})
	if err := eng.Ingest(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	vec[0] = 100

	got, err := eng.SearchResults(context.Background(), "x", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].Distance != 99*99 {
		t.Fatalf("distance = %v; stored vector was aliased", got[0].Distance)
	}
}

func TestSearchQueryEmbeddingFailure(t *testing.T) {
	eng, _ := newTableEngine()
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"A"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	_, err := eng.Search(ctx, "not in table", 1)
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) || embErr.Op != "search" {
		t.Fatalf("err = %v, want search *EmbeddingError", err)
	}
}

func TestConcurrentIngestAndSearch(t *testing.T) {
	eng := NewEngine(lenEmbedder{})
	ctx := context.Background()
	if err := eng.Ingest(ctx, []string{"seed"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				chunk := fmt.Sprintf("w%d-%d", w, i)
				if err := eng.Ingest(ctx, []string{chunk, chunk + "!"}); err != nil {
					t.Errorf("Ingest: %v", err)
					return
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := eng.Search(ctx, "query", 3); err != nil {
					t.Errorf("Search: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if want := 1 + writers*perWriter*2; eng.Len() != want {
		t.Fatalf("len = %d, want %d", eng.Len(), want)
	}
}
