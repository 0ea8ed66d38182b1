package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/medprompt/backend/internal/metrics"
	"github.com/medprompt/backend/pkg/circuitbreaker"
	"github.com/medprompt/backend/pkg/config"
	"github.com/medprompt/backend/pkg/logger"
	"github.com/medprompt/backend/pkg/retry"
)

var (
	ErrEmptyCompletion = errors.New("language model returned no choices")
	ErrMissingAPIKey   = errors.New("language model api key is not configured")
)

type Client struct {
	client      *openai.Client
	model       string
	apiKey      string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	// Task labels the call in metrics and logs.
	Task         string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// headerTransport adds the attribution headers OpenRouter expects on every call.
type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(req)
}

func NewClient(cfg config.LLMConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			referer: cfg.Referer,
			title:   cfg.Title,
		},
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange:    metrics.ObserveBreakerState,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientConfig.BaseURL),
	)

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := c.chatRequest(req)

	var result *CompletionResponse
	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				return classify(fmt.Errorf("failed to create completion: %w", err))
			}
			if len(resp.Choices) == 0 {
				return retry.Stop(ErrEmptyCompletion)
			}

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Model:   resp.Model,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})

	task := taskLabel(req.Task)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(task, "error").Inc()
		return nil, err
	}

	metrics.LLMRequests.WithLabelValues(task, "success").Inc()
	metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(result.Usage.CompletionTokens))

	logger.Debug("LLM completion generated",
		zap.String("task", task),
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
	)

	return result, nil
}

// Stream delivers the completion incrementally to onDelta and returns the
// assembled text. Only opening the stream is retried; once deltas have been
// delivered a failure is returned as is.
func (c *Client) Stream(ctx context.Context, req CompletionRequest, onDelta func(string) error) (*CompletionResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := c.chatRequest(req)
	chatReq.Stream = true

	var stream *openai.ChatCompletionStream
	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			s, err := c.client.CreateChatCompletionStream(ctx, chatReq)
			if err != nil {
				return classify(fmt.Errorf("failed to open completion stream: %w", err))
			}
			stream = s
			return nil
		})
	})
	task := taskLabel(req.Task)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(task, "error").Inc()
		return nil, err
	}
	defer stream.Close()

	result := &CompletionResponse{Model: c.model}
	var content []byte
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.LLMRequests.WithLabelValues(task, "error").Inc()
			return nil, fmt.Errorf("failed to read completion stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content = append(content, delta...)
		if err := onDelta(delta); err != nil {
			return nil, err
		}
	}

	result.Content = string(content)
	metrics.LLMRequests.WithLabelValues(task, "success").Inc()
	return result, nil
}

func (c *Client) chatRequest(req CompletionRequest) openai.ChatCompletionRequest {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// classify stops retries for client errors that will not succeed on repeat.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return retry.Stop(err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return retry.Stop(err)
		}
	}
	return err
}

func taskLabel(task string) string {
	if task == "" {
		return "completion"
	}
	return task
}
