package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/extract"
	"github.com/medprompt/backend/internal/llm"
	"github.com/medprompt/backend/internal/metrics"
	"github.com/medprompt/backend/internal/retrieval"
	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/internal/vitals"
	"github.com/medprompt/backend/pkg/logger"
)

type DocumentResult struct {
	Kind          extract.Kind
	Summary       string
	Prediction    risk.Prediction
	Vitals        vitals.Record
	Features      risk.Features
	ExtractedText string
	Chunks        int
}

type ReportResult struct {
	RawText     string
	Vitals      vitals.Record
	Features    risk.Features
	Prediction  risk.Prediction
	Explanation string
	Chunks      int
}

// IngestText splits text into paragraphs and adds them to the index. It
// returns the number of passages added.
func (s *Service) IngestText(ctx context.Context, text string) (int, error) {
	return s.ingest(ctx, string(extract.KindText), text)
}

func (s *Service) ingest(ctx context.Context, kind, text string) (int, error) {
	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := s.retriever.Ingest(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to ingest document: %w", err)
	}

	metrics.DocumentsIngested.WithLabelValues(kind).Inc()
	metrics.ChunksIngested.Add(float64(len(chunks)))
	metrics.IndexSize.Set(float64(s.retriever.Len()))

	logger.Info("Document ingested",
		zap.String("kind", kind),
		zap.Int("chunks", len(chunks)),
		zap.Int("index_size", s.retriever.Len()),
	)
	return len(chunks), nil
}

// IngestUpload extracts an uploaded file and indexes it without scoring or
// summarising.
func (s *Service) IngestUpload(ctx context.Context, data []byte) (extract.Kind, int, error) {
	doc, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return "", 0, err
	}

	chunks, err := s.ingest(ctx, string(doc.Kind), doc.Text)
	if err != nil {
		return "", 0, err
	}
	return doc.Kind, chunks, nil
}

// ProcessDocument extracts an uploaded document, indexes its paragraphs,
// scores risk from the vitals it mentions and summarises it for the patient.
func (s *Service) ProcessDocument(ctx context.Context, data []byte) (*DocumentResult, error) {
	start := time.Now()

	doc, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}

	chunks, err := s.ingest(ctx, string(doc.Kind), doc.Text)
	if err != nil {
		return nil, err
	}

	rec := vitals.Extract(doc.Text)
	features := rec.Features(s.opts.Defaults)
	logger.Debug("Vitals extracted", zap.Any("vitals", rec), zap.Any("features", features))

	prediction, err := s.predict(ctx, string(doc.Kind), features)
	if err != nil {
		return nil, err
	}

	req := llm.SummaryRequest(doc.Text, s.opts.SummaryChars)
	summary, err := s.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, req.Task, llm.Truncate(doc.Text, s.opts.PreviewChars), summary, chunks, start)

	return &DocumentResult{
		Kind:          doc.Kind,
		Summary:       summary,
		Prediction:    prediction,
		Vitals:        rec,
		Features:      features,
		ExtractedText: llm.Truncate(doc.Text, s.opts.PreviewChars),
		Chunks:        chunks,
	}, nil
}

// AnalyzeReport handles a lab report image or scan: its text is indexed like
// any document and the model explains the detected values.
func (s *Service) AnalyzeReport(ctx context.Context, data []byte) (*ReportResult, error) {
	start := time.Now()

	doc, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}

	chunks, err := s.ingest(ctx, string(doc.Kind), doc.Text)
	if err != nil {
		return nil, err
	}

	rec := vitals.Extract(doc.Text)
	features := rec.Features(s.opts.Defaults)

	prediction, err := s.predict(ctx, string(doc.Kind), features)
	if err != nil {
		return nil, err
	}

	req := llm.ReportRequest(doc.Text, vitalsOf(features), prediction.RiskScore, string(prediction.RiskLevel))
	explanation, err := s.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, req.Task, llm.Truncate(doc.Text, s.opts.PreviewChars), explanation, chunks, start)

	return &ReportResult{
		RawText:     doc.Text,
		Vitals:      rec,
		Features:    features,
		Prediction:  prediction,
		Explanation: explanation,
		Chunks:      chunks,
	}, nil
}

// Search returns ranked passages; an empty index yields no results.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyInput
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	results, err := s.retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	return results, nil
}

func vitalsOf(f risk.Features) llm.Vitals {
	return llm.Vitals{
		Age:           f.Age,
		BMI:           f.BMI,
		Glucose:       f.Glucose,
		BloodPressure: f.BloodPressure,
	}
}
