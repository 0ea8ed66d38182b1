package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/medprompt/backend/internal/llm"
	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/internal/vitals"
)

type RiskExplanation struct {
	Prediction  risk.Prediction
	Explanation string
	Context     string
	Vitals      vitals.Record
}

type RAGAnswer struct {
	Response string
	Context  string
}

func (s *Service) Ask(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	start := time.Now()
	req := llm.AskRequest(prompt)
	resp, err := s.complete(ctx, req)
	if err != nil {
		return "", err
	}
	s.recordQuery(ctx, req.Task, prompt, resp, 0, start)
	return resp, nil
}

// ExplainRisk scores the vitals found in the passages closest to prompt and
// asks the model to explain the result. With nothing indexed the context is
// empty and every vital falls back to its default.
func (s *Service) ExplainRisk(ctx context.Context, prompt string) (*RiskExplanation, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	results, err := s.retrieve(ctx, prompt, s.opts.TopK)
	if err != nil {
		return nil, err
	}
	passages := joinContext(results)

	rec := vitals.Extract(passages)
	prediction, err := s.predict(ctx, SourceExplain, rec.Features(s.opts.Defaults))
	if err != nil {
		return nil, err
	}

	req := llm.ExplainRiskRequest(passages, prediction.RiskScore, string(prediction.RiskLevel))
	explanation, err := s.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, req.Task, prompt, explanation, len(results), start)

	return &RiskExplanation{
		Prediction:  prediction,
		Explanation: explanation,
		Context:     passages,
		Vitals:      rec,
	}, nil
}

func (s *Service) AskRAG(ctx context.Context, question string) (*RAGAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	results, err := s.retrieve(ctx, question, s.opts.TopK)
	if err != nil {
		return nil, err
	}
	passages := joinContext(results)

	req := llm.RAGRequest(passages, question)
	resp, err := s.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, req.Task, question, resp, len(results), start)

	return &RAGAnswer{Response: resp, Context: passages}, nil
}

func (s *Service) HealthTips(ctx context.Context, v llm.Vitals, riskScore float64) (string, error) {
	start := time.Now()
	req := llm.HealthTipsRequest(v, riskScore)
	resp, err := s.complete(ctx, req)
	if err != nil {
		return "", err
	}
	s.recordQuery(ctx, req.Task, req.UserPrompt, resp, 0, start)
	return resp, nil
}

func (s *Service) HealthPlan(ctx context.Context, v llm.Vitals) (string, error) {
	start := time.Now()
	req := llm.HealthPlanRequest(v)
	resp, err := s.complete(ctx, req)
	if err != nil {
		return "", err
	}
	s.recordQuery(ctx, req.Task, req.UserPrompt, resp, 0, start)
	return resp, nil
}

func (s *Service) Chat(ctx context.Context, history []string, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyInput
	}

	start := time.Now()
	req := llm.ChatRequest(history, message)
	resp, err := s.complete(ctx, req)
	if err != nil {
		return "", err
	}
	s.recordQuery(ctx, req.Task, message, resp, 0, start)
	return resp, nil
}

// StreamChat is Chat with incremental delivery. Completers that cannot stream
// answer in one piece, which is then replayed word by word.
func (s *Service) StreamChat(ctx context.Context, history []string, message string, onDelta func(string) error) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyInput
	}

	start := time.Now()
	req := llm.ChatRequest(history, message)

	var content string
	if streamer, ok := s.completer.(Streamer); ok {
		resp, err := streamer.Stream(ctx, req, onDelta)
		if err != nil {
			return "", &CompletionError{Task: req.Task, Err: err}
		}
		content = resp.Content
	} else {
		resp, err := s.complete(ctx, req)
		if err != nil {
			return "", err
		}
		content = resp
		for _, word := range splitWords(content) {
			if err := onDelta(word); err != nil {
				return "", err
			}
		}
	}

	s.recordQuery(ctx, req.Task, message, content, 0, start)
	return content, nil
}

// splitWords keeps the separators attached so the pieces concatenate back to
// the original text.
func splitWords(text string) []string {
	var words []string
	startIdx := 0
	for i, r := range text {
		if r == ' ' || r == '\n' {
			words = append(words, text[startIdx:i+1])
			startIdx = i + 1
		}
	}
	if startIdx < len(text) {
		words = append(words, text[startIdx:])
	}
	return words
}
