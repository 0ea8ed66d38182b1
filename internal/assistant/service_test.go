package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/medprompt/backend/internal/chunker"
	"github.com/medprompt/backend/internal/embedding"
	"github.com/medprompt/backend/internal/extract"
	"github.com/medprompt/backend/internal/llm"
	"github.com/medprompt/backend/internal/retrieval"
	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/internal/storage/models"
)

var defaults = risk.Features{
	Pregnancies: 0, Glucose: 120, BloodPressure: 70, SkinThickness: 20,
	Insulin: 85, BMI: 26.5, DiabetesPedigreeFunction: 0.35, Age: 45,
}

type fakeCompleter struct {
	mu   sync.Mutex
	reqs []llm.CompletionRequest
	err  error
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: "answer for " + req.Task}, nil
}

func (f *fakeCompleter) last() llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type streamingCompleter struct {
	fakeCompleter
	parts []string
}

func (s *streamingCompleter) Stream(_ context.Context, _ llm.CompletionRequest, onDelta func(string) error) (*llm.CompletionResponse, error) {
	for _, p := range s.parts {
		if err := onDelta(p); err != nil {
			return nil, err
		}
	}
	return &llm.CompletionResponse{Content: strings.Join(s.parts, "")}, nil
}

type fakePredictor struct {
	got   []risk.Features
	pred  risk.Prediction
	err   error
	calls int
}

func (f *fakePredictor) Predict(fs risk.Features) (risk.Prediction, error) {
	f.calls++
	f.got = append(f.got, fs)
	if f.err != nil {
		return risk.Prediction{}, f.err
	}
	return f.pred, nil
}

type fakeExtractor struct {
	doc *extract.Document
	err error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (*extract.Document, error) {
	return f.doc, f.err
}

type memHistory struct {
	assessments []*models.Assessment
	queries     []*models.QueryRecord
}

func (m *memHistory) InsertAssessment(_ context.Context, a *models.Assessment) error {
	m.assessments = append(m.assessments, a)
	return nil
}

func (m *memHistory) InsertQueryRecord(_ context.Context, r *models.QueryRecord) error {
	m.queries = append(m.queries, r)
	return nil
}

func (m *memHistory) Trend(_ context.Context, metric string, limit int) ([]models.TrendPoint, error) {
	var out []models.TrendPoint
	for _, a := range m.assessments {
		if metric == "glucose" {
			out = append(out, models.TrendPoint{Timestamp: a.CreatedAt, Value: a.Glucose})
		}
	}
	return out, nil
}

type harness struct {
	svc       *Service
	engine    *retrieval.Engine
	completer *fakeCompleter
	predictor *fakePredictor
	extractor *fakeExtractor
	history   *memHistory
}

func newHarness(t *testing.T, completer Completer) *harness {
	t.Helper()
	h := &harness{
		engine:    retrieval.NewEngine(embedding.NewHashing(128)),
		predictor: &fakePredictor{pred: risk.Prediction{RiskScore: 0.71, RiskLevel: risk.LevelHigh}},
		extractor: &fakeExtractor{},
		history:   &memHistory{},
	}
	if completer == nil {
		h.completer = &fakeCompleter{}
		completer = h.completer
	}
	h.svc = NewService(h.engine, h.predictor, completer, h.extractor, chunker.NewSplitter(0), h.history, Options{
		TopK:         3,
		SummaryChars: 50,
		PreviewChars: 20,
		Defaults:     defaults,
	})
	return h
}

const report = `Patient: Jane Doe
Age: 52

Fasting glucose: 162 mg/dL

BMI: 31.4

Blood pressure 135/88 mmHg`

func TestProcessDocument(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.doc = &extract.Document{Kind: extract.KindPDF, Text: report}

	res, err := h.svc.ProcessDocument(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	if res.Chunks != 4 || h.engine.Len() != 4 {
		t.Fatalf("chunks = %d, index = %d, want 4", res.Chunks, h.engine.Len())
	}

	want := defaults
	want.Glucose, want.BMI, want.BloodPressure, want.Age = 162, 31.4, 88, 52
	if h.predictor.got[0] != want {
		t.Fatalf("features = %+v, want %+v", h.predictor.got[0], want)
	}

	if res.Summary != "answer for summary" || res.Prediction.RiskLevel != risk.LevelHigh {
		t.Fatalf("result = %+v", res)
	}
	if len([]rune(res.ExtractedText)) != 20 {
		t.Fatalf("preview not truncated: %q", res.ExtractedText)
	}
	if !strings.Contains(h.completer.last().UserPrompt, "Patient: Jane Doe") {
		t.Fatalf("summary prompt = %q", h.completer.last().UserPrompt)
	}

	if len(h.history.assessments) != 1 || h.history.assessments[0].Source != "pdf" {
		t.Fatalf("assessments = %+v", h.history.assessments)
	}
	if len(h.history.queries) != 1 || h.history.queries[0].Kind != "summary" {
		t.Fatalf("queries = %+v", h.history.queries)
	}
}

func TestProcessDocumentUsesDefaultsWhenNothingFound(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.doc = &extract.Document{Kind: extract.KindText, Text: "Follow-up visit.\n\nNo concerns raised."}

	if _, err := h.svc.ProcessDocument(context.Background(), []byte("x")); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if h.predictor.got[0] != defaults {
		t.Fatalf("features = %+v, want defaults", h.predictor.got[0])
	}
}

func TestProcessDocumentModelUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.doc = &extract.Document{Kind: extract.KindText, Text: report}
	h.predictor.err = risk.ErrModelUnavailable

	_, err := h.svc.ProcessDocument(context.Background(), []byte("x"))
	if !errors.Is(err, risk.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if len(h.completer.reqs) != 0 {
		t.Fatal("model should not be called when scoring fails")
	}
}

func TestProcessDocumentExtractionError(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.err = extract.ErrUnsupportedType

	if _, err := h.svc.ProcessDocument(context.Background(), []byte("x")); !errors.Is(err, extract.ErrUnsupportedType) {
		t.Fatalf("err = %v", err)
	}
	if h.engine.Len() != 0 {
		t.Fatal("nothing should be indexed")
	}
}

func TestAnalyzeReport(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.doc = &extract.Document{Kind: extract.KindImage, Text: "Glucose 140\nBMI 29"}

	res, err := h.svc.AnalyzeReport(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("AnalyzeReport: %v", err)
	}
	if res.Explanation != "answer for report" || res.Features.Glucose != 140 || res.Features.BMI != 29 {
		t.Fatalf("result = %+v", res)
	}
	if h.engine.Len() != 1 {
		t.Fatalf("report text not indexed, len = %d", h.engine.Len())
	}
	prompt := h.completer.last().UserPrompt
	if !strings.Contains(prompt, "Risk Score: 0.71 (High Risk)") || !strings.Contains(prompt, "Age: 45") {
		t.Fatalf("report prompt = %q", prompt)
	}
}

func TestExplainRiskEmptyIndex(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.svc.ExplainRisk(context.Background(), "why is my risk high?")
	if err != nil {
		t.Fatalf("ExplainRisk: %v", err)
	}
	if res.Context != "" {
		t.Fatalf("context = %q, want empty", res.Context)
	}
	if h.predictor.got[0] != defaults {
		t.Fatalf("features = %+v, want defaults", h.predictor.got[0])
	}
	if !strings.Contains(h.completer.last().UserPrompt, "(none)") {
		t.Fatalf("prompt = %q", h.completer.last().UserPrompt)
	}
}

func TestExplainRiskUsesRetrievedVitals(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.svc.IngestText(ctx, "Fasting glucose 180 mg/dL recorded today\n\nThe clinic parking lot was full"); err != nil {
		t.Fatalf("IngestText: %v", err)
	}

	res, err := h.svc.ExplainRisk(ctx, "fasting glucose")
	if err != nil {
		t.Fatalf("ExplainRisk: %v", err)
	}
	if !strings.HasPrefix(res.Context, "Fasting glucose 180") {
		t.Fatalf("closest passage not first: %q", res.Context)
	}
	if h.predictor.got[0].Glucose != 180 {
		t.Fatalf("glucose = %v, want 180", h.predictor.got[0].Glucose)
	}
	if res.Vitals.Glucose == nil || *res.Vitals.Glucose != 180 {
		t.Fatalf("vitals = %+v", res.Vitals)
	}
}

func TestExplainRiskRecordsAssessment(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.svc.IngestText(ctx, "Fasting glucose 180 mg/dL recorded today")

	if _, err := h.svc.ExplainRisk(ctx, "fasting glucose"); err != nil {
		t.Fatalf("ExplainRisk: %v", err)
	}
	if h.predictor.calls != 1 {
		t.Fatalf("predictor calls = %d, want 1", h.predictor.calls)
	}
	if len(h.history.assessments) != 1 {
		t.Fatalf("assessments = %d, want 1", len(h.history.assessments))
	}
	a := h.history.assessments[0]
	if a.Source != SourceExplain || a.Glucose != 180 || a.RiskLevel != string(risk.LevelHigh) {
		t.Fatalf("assessment = %+v", a)
	}
}

func TestAskRAGLimitsContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.svc.IngestText(ctx, "one insulin\n\ntwo insulin\n\nthree insulin\n\nfour insulin\n\nfive insulin")

	res, err := h.svc.AskRAG(ctx, "insulin")
	if err != nil {
		t.Fatalf("AskRAG: %v", err)
	}
	if n := len(strings.Split(res.Context, "\n\n")); n != 3 {
		t.Fatalf("context passages = %d, want 3", n)
	}
	if h.history.queries[0].ContextChunks != 3 {
		t.Fatalf("recorded chunks = %d", h.history.queries[0].ContextChunks)
	}
}

func TestCompletionFailurePropagates(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream 502")}
	h := newHarness(t, completer)

	_, err := h.svc.Ask(context.Background(), "hello")
	var cerr *CompletionError
	if !errors.As(err, &cerr) || cerr.Task != "ask" {
		t.Fatalf("err = %v, want CompletionError", err)
	}
}

func TestEmptyInputsRejected(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.svc.Ask(ctx, "  "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Ask: %v", err)
	}
	if _, err := h.svc.AskRAG(ctx, ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("AskRAG: %v", err)
	}
	if _, err := h.svc.Chat(ctx, nil, "\n"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Chat: %v", err)
	}
	if _, err := h.svc.Search(ctx, "", 3); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Search: %v", err)
	}
}

func TestIngestTextNoParagraphs(t *testing.T) {
	h := newHarness(t, nil)
	n, err := h.svc.IngestText(context.Background(), "\n\n   \n")
	if err != nil || n != 0 || h.engine.Len() != 0 {
		t.Fatalf("n = %d, err = %v, len = %d", n, err, h.engine.Len())
	}
}

func TestSearchEmptyIndexReturnsNoResults(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.svc.Search(context.Background(), "glucose", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res == nil || len(res) != 0 {
		t.Fatalf("results = %#v, want empty slice", res)
	}
}

func TestPredictRecordsAssessment(t *testing.T) {
	h := newHarness(t, nil)
	f := defaults
	f.Glucose = 150

	p, err := h.svc.Predict(context.Background(), f)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.RiskScore != 0.71 {
		t.Fatalf("prediction = %+v", p)
	}

	points, err := h.svc.Trend(context.Background(), "glucose", 10)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if len(points) != 1 || points[0].Value != 150 {
		t.Fatalf("points = %+v", points)
	}
}

func TestTrendWithoutHistory(t *testing.T) {
	svc := NewService(retrieval.NewEngine(embedding.NewHashing(8)), &fakePredictor{}, &fakeCompleter{}, &fakeExtractor{},
		chunker.NewSplitter(0), nil, Options{Defaults: defaults})
	if _, err := svc.Trend(context.Background(), "glucose", 5); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("err = %v", err)
	}
}

func TestStreamChatWithStreamer(t *testing.T) {
	sc := &streamingCompleter{parts: []string{"Hel", "lo ", "there"}}
	h := newHarness(t, sc)

	var got []string
	content, err := h.svc.StreamChat(context.Background(), []string{"User: hi"}, "how are you?", func(d string) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if content != "Hello there" || len(got) != 3 {
		t.Fatalf("content = %q, deltas = %q", content, got)
	}
}

func TestStreamChatFallsBackToWords(t *testing.T) {
	h := newHarness(t, nil)

	var got []string
	content, err := h.svc.StreamChat(context.Background(), nil, "hi", func(d string) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if strings.Join(got, "") != content || len(got) != 3 {
		t.Fatalf("deltas = %q, content = %q", got, content)
	}
}

func TestSplitWordsRoundTrip(t *testing.T) {
	text := "Day 1:\nWalk 20 minutes.  Drink water"
	if got := strings.Join(splitWords(text), ""); got != text {
		t.Fatalf("joined = %q", got)
	}
}
