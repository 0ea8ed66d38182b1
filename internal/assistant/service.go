// Package assistant wires retrieval, risk scoring, vitals extraction and the
// language model into the operations the HTTP layer exposes.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/chunker"
	"github.com/medprompt/backend/internal/extract"
	"github.com/medprompt/backend/internal/llm"
	"github.com/medprompt/backend/internal/metrics"
	"github.com/medprompt/backend/internal/retrieval"
	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/internal/storage/models"
	"github.com/medprompt/backend/pkg/logger"
)

var (
	ErrEmptyInput      = errors.New("input is empty")
	ErrHistoryDisabled = errors.New("assessment history is disabled")
)

// CompletionError marks a failure of the language model so callers can tell
// it apart from local failures.
type CompletionError struct {
	Task string
	Err  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s failed: %v", e.Task, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

type Retriever interface {
	Ingest(ctx context.Context, chunks []string) error
	SearchResults(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
	Len() int
}

type Predictor interface {
	Predict(f risk.Features) (risk.Prediction, error)
}

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Streamer is implemented by completers that can deliver partial output.
type Streamer interface {
	Stream(ctx context.Context, req llm.CompletionRequest, onDelta func(string) error) (*llm.CompletionResponse, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (*extract.Document, error)
}

type HistoryStore interface {
	InsertAssessment(ctx context.Context, a *models.Assessment) error
	InsertQueryRecord(ctx context.Context, r *models.QueryRecord) error
	Trend(ctx context.Context, metric string, limit int) ([]models.TrendPoint, error)
}

type Options struct {
	TopK         int
	SummaryChars int
	// PreviewChars bounds the extracted text echoed back to callers.
	PreviewChars int
	Defaults     risk.Features
}

type Service struct {
	retriever Retriever
	predictor Predictor
	completer Completer
	extractor Extractor
	splitter  *chunker.Splitter
	history   HistoryStore
	opts      Options
}

// NewService builds the service; history may be nil.
func NewService(
	retriever Retriever,
	predictor Predictor,
	completer Completer,
	extractor Extractor,
	splitter *chunker.Splitter,
	history HistoryStore,
	opts Options,
) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.SummaryChars <= 0 {
		opts.SummaryChars = 3000
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = 1000
	}

	return &Service{
		retriever: retriever,
		predictor: predictor,
		completer: completer,
		extractor: extractor,
		splitter:  splitter,
		history:   history,
		opts:      opts,
	}
}

func (s *Service) IndexSize() int {
	return s.retriever.Len()
}

func (s *Service) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	resp, err := s.completer.Complete(ctx, req)
	if err != nil {
		return "", &CompletionError{Task: req.Task, Err: err}
	}
	return resp.Content, nil
}

func (s *Service) recordQuery(ctx context.Context, kind, prompt, response string, contextChunks int, start time.Time) {
	if s.history == nil {
		return
	}

	record := &models.QueryRecord{
		ID:            uuid.New().String(),
		Kind:          kind,
		Prompt:        prompt,
		Response:      response,
		ContextChunks: contextChunks,
		LatencyMS:     int(time.Since(start).Milliseconds()),
		CreatedAt:     time.Now(),
	}
	if err := s.history.InsertQueryRecord(ctx, record); err != nil {
		logger.Warn("Failed to record query", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Service) recordAssessment(ctx context.Context, source string, f risk.Features, p risk.Prediction) {
	if s.history == nil {
		return
	}

	a := &models.Assessment{
		ID:                       uuid.New().String(),
		Source:                   source,
		Pregnancies:              f.Pregnancies,
		Glucose:                  f.Glucose,
		BloodPressure:            f.BloodPressure,
		SkinThickness:            f.SkinThickness,
		Insulin:                  f.Insulin,
		BMI:                      f.BMI,
		DiabetesPedigreeFunction: f.DiabetesPedigreeFunction,
		Age:                      f.Age,
		RiskScore:                p.RiskScore,
		RiskLevel:                string(p.RiskLevel),
		CreatedAt:                time.Now(),
	}
	if err := s.history.InsertAssessment(ctx, a); err != nil {
		logger.Warn("Failed to record assessment", zap.String("source", source), zap.Error(err))
	}
}

func (s *Service) predict(ctx context.Context, source string, f risk.Features) (risk.Prediction, error) {
	p, err := s.predictor.Predict(f)
	if err != nil {
		return risk.Prediction{}, err
	}

	metrics.PredictionsTotal.WithLabelValues(string(p.RiskLevel)).Inc()
	s.recordAssessment(ctx, source, f, p)
	return p, nil
}

// retrieve returns the top passages for query. An empty index is not an
// error here: callers proceed without context.
func (s *Service) retrieve(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	start := time.Now()
	results, err := s.retriever.SearchResults(ctx, query, topK)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	if errors.Is(err, retrieval.ErrEmptyIndex) {
		logger.Debug("Retrieval skipped, index empty")
		metrics.SearchResultsCount.Observe(0)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	metrics.SearchResultsCount.Observe(float64(len(results)))
	return results, nil
}

func joinContext(results []retrieval.Result) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n\n")
}
