package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/chunker"
	"github.com/medprompt/backend/internal/retrieval"
	"github.com/medprompt/backend/pkg/logger"
)

var ErrEmptyDataset = errors.New("evaluation dataset has no items")

type Searcher interface {
	Ingest(ctx context.Context, chunks []string) error
	SearchResults(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
}

// Evaluator measures how well the retrieval engine surfaces a known passage
// for each labeled question.
type Evaluator struct {
	searcher Searcher
	splitter *chunker.Splitter
	topK     int
}

type Dataset struct {
	Documents []string      `json:"documents"`
	Items     []DatasetItem `json:"items"`
}

// DatasetItem is a question and a phrase that only its relevant chunk
// contains. Matching is case-insensitive.
type DatasetItem struct {
	Query    string `json:"query"`
	Expected string `json:"expected"`
	Category string `json:"category"`
}

type ItemResult struct {
	Query string
	// Rank is 1-based; zero means the expected chunk was not retrieved.
	Rank         int
	BestDistance float64
}

type Report struct {
	TotalQueries int
	Hits         int
	Misses       int
	HitRate      float64
	MRR          float64
	AvgDistance  float64
	TopK         int
	Chunks       int
	ByCategory   map[string]float64
	Results      []ItemResult
}

func NewEvaluator(searcher Searcher, splitter *chunker.Splitter, topK int) *Evaluator {
	if topK <= 0 {
		topK = 3
	}
	return &Evaluator{
		searcher: searcher,
		splitter: splitter,
		topK:     topK,
	}
}

func LoadDataset(r io.Reader) (*Dataset, error) {
	var dataset Dataset
	if err := json.NewDecoder(r).Decode(&dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	if len(dataset.Items) == 0 {
		return nil, ErrEmptyDataset
	}
	return &dataset, nil
}

// Run indexes the dataset documents and scores every item against them.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	if len(dataset.Items) == 0 {
		return nil, ErrEmptyDataset
	}

	logger.Info("Running retrieval evaluation",
		zap.Int("documents", len(dataset.Documents)),
		zap.Int("items", len(dataset.Items)),
	)

	var chunks []string
	for _, doc := range dataset.Documents {
		chunks = append(chunks, e.splitter.Split(doc)...)
	}
	if err := e.searcher.Ingest(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to index dataset documents: %w", err)
	}

	report := &Report{
		TotalQueries: len(dataset.Items),
		TopK:         e.topK,
		Chunks:       len(chunks),
		ByCategory:   make(map[string]float64),
		Results:      make([]ItemResult, 0, len(dataset.Items)),
	}

	var reciprocal, distance float64
	categoryTotal := make(map[string]int)
	categoryHits := make(map[string]int)

	for i, item := range dataset.Items {
		result, err := e.evaluateItem(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate item %d: %w", i, err)
		}
		report.Results = append(report.Results, result)

		category := item.Category
		if category == "" {
			category = "uncategorized"
		}
		categoryTotal[category]++

		distance += result.BestDistance
		if result.Rank == 0 {
			report.Misses++
			continue
		}
		report.Hits++
		categoryHits[category]++
		reciprocal += 1 / float64(result.Rank)
	}

	n := float64(report.TotalQueries)
	report.HitRate = float64(report.Hits) / n
	report.MRR = reciprocal / n
	report.AvgDistance = distance / n
	for category, total := range categoryTotal {
		report.ByCategory[category] = float64(categoryHits[category]) / float64(total)
	}

	logger.Info("Retrieval evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("hits", report.Hits),
		zap.Float64("mrr", report.MRR),
	)

	return report, nil
}

func (e *Evaluator) evaluateItem(ctx context.Context, item DatasetItem) (ItemResult, error) {
	results, err := e.searcher.SearchResults(ctx, item.Query, e.topK)
	if err != nil && !errors.Is(err, retrieval.ErrEmptyIndex) {
		return ItemResult{}, err
	}

	out := ItemResult{Query: item.Query}
	if len(results) > 0 {
		out.BestDistance = results[0].Distance
	}

	expected := strings.ToLower(item.Expected)
	for i, r := range results {
		if strings.Contains(strings.ToLower(r.Text), expected) {
			out.Rank = i + 1
			break
		}
	}
	return out, nil
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Retrieval Evaluation Report
===========================

Queries: %d  Chunks indexed: %d  Top-k: %d

- Hits: %d (%.1f%%)
- Misses: %d
- MRR: %.3f
- Avg best distance: %.4f
`,
		r.TotalQueries, r.Chunks, r.TopK,
		r.Hits, r.HitRate*100,
		r.Misses,
		r.MRR,
		r.AvgDistance,
	)

	if len(r.ByCategory) > 1 {
		b.WriteString("\nHit rate by category:\n")
		for _, category := range sortedKeys(r.ByCategory) {
			fmt.Fprintf(&b, "- %s: %.1f%%\n", category, r.ByCategory[category]*100)
		}
	}
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
