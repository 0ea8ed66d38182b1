package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/medprompt/backend/pkg/config"
)

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL:     baseURL,
		Model:       "mistralai/mistral-7b-instruct",
		APIKey:      "test-key",
		Temperature: 0.7,
		MaxTokens:   256,
		TimeoutSec:  5,
		Referer:     "http://localhost:8000",
		Title:       "medprompt-backend",
	}
}

func TestCompleteSendsHeadersAndParsesReply(t *testing.T) {
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "http://localhost:8000" {
			t.Errorf("HTTP-Referer = %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "medprompt-backend" {
			t.Errorf("X-Title = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"mistralai/mistral-7b-instruct",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Stay hydrated."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	resp, err := c.Complete(context.Background(), AskRequest("any tips?"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Stay hydrated." {
		t.Fatalf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if gotReq.Model != "mistralai/mistral-7b-instruct" {
		t.Fatalf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" || gotReq.Messages[0].Content != "any tips?" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
}

func TestCompleteDoesNotRetryAuthFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	if _, err := c.Complete(context.Background(), AskRequest("hi")); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), AskRequest("hi"))
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
}

func TestCompleteWithoutAPIKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.APIKey = ""
	_, err := NewClient(cfg).Complete(context.Background(), AskRequest("hi"))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestStreamAssemblesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Drink ", "more ", "water."} {
			fmt.Fprintf(w, "data: {\"id\":\"s1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var deltas []string
	resp, err := NewClient(testConfig(srv.URL)).Stream(context.Background(), ChatRequest(nil, "hello"), func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if resp.Content != "Drink more water." {
		t.Fatalf("Content = %q", resp.Content)
	}
	if strings.Join(deltas, "|") != "Drink |more |water." {
		t.Fatalf("deltas = %q", deltas)
	}
}
