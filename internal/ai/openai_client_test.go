package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/KaramelBytes/govai/internal/retry"
)

func TestOpenAIClientSuccess(t *testing.T) {
	srv := jsonServer(t, "/chat/completions", http.StatusOK, nil, map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   "gemini-2.5-flash",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "Summary: ok"}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14},
	})

	rt, ok := GetRuntime(ProviderGemini, RuntimeConfig{APIKey: "k", BaseURL: srv.URL, HTTPTimeout: 2 * time.Second})
	if !ok {
		t.Fatalf("gemini runtime not registered")
	}
	resp, err := rt.Generate(context.Background(), hiRequest())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "Summary: ok" || resp.Model != "gemini-2.5-flash" || resp.Usage.TotalTokens != 14 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOpenAIClientClassifiesErrors(t *testing.T) {
	cases := []struct {
		status    int
		errBody   map[string]any
		retryable bool
		check     func(error) bool
	}{
		{http.StatusNotFound, map[string]any{"message": "The model `x` does not exist", "type": "invalid_request_error", "code": "model_not_found"}, false,
			func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{http.StatusUnauthorized, map[string]any{"message": "Incorrect API key provided", "type": "invalid_request_error"}, false,
			func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{http.StatusServiceUnavailable, map[string]any{"message": "overloaded", "type": "server_error"}, true,
			func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
		{http.StatusTooManyRequests, map[string]any{"message": "Rate limit reached", "type": "requests"}, true,
			func(err error) bool { var e *RateLimitError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		srv := jsonServer(t, "/chat/completions", tc.status, nil, map[string]any{"error": tc.errBody})
		c := NewOpenAIClient(ProviderOpenAI, "k", srv.URL, 2*time.Second)
		_, err := c.Generate(context.Background(), hiRequest())
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error %T: %v", tc.status, err, err)
		}
		if retry.IsRetryable(err) != tc.retryable {
			t.Fatalf("status %d: retryable = %v", tc.status, !tc.retryable)
		}
		if n := srv.hits.Load(); n != 1 {
			t.Fatalf("status %d: expected one request, got %d", tc.status, n)
		}
	}
}

func TestAnthropicClientSuccess(t *testing.T) {
	srv := jsonServer(t, "/messages", http.StatusOK, nil, map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-sonnet-4-5",
		"content":     []map[string]any{{"type": "text", "text": "Summary: fine"}},
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 7, "output_tokens": 3},
	})

	c := NewAnthropicClient("k", srv.URL, 2*time.Second)
	resp, err := c.Generate(context.Background(), hiRequest())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "Summary: fine" || resp.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAnthropicClientRateLimit(t *testing.T) {
	srv := jsonServer(t, "/messages", http.StatusTooManyRequests, nil, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
	})
	_, err := NewAnthropicClient("k", srv.URL, 2*time.Second).Generate(context.Background(), hiRequest())
	var rl *RateLimitError
	if !errors.As(err, &rl) || !retry.IsRetryable(err) {
		t.Fatalf("expected transient RateLimitError, got %T: %v", err, err)
	}
}

func TestNewRuntimeUnknownProvider(t *testing.T) {
	if _, err := NewRuntime("watson", RuntimeConfig{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	for _, p := range Providers {
		if _, err := NewRuntime(p, RuntimeConfig{APIKey: "k"}); err != nil {
			t.Fatalf("provider %s: %v", p, err)
		}
	}
}

func TestSplitSystem(t *testing.T) {
	sys, rest := splitSystem([]Message{{Role: "system", Content: "a"}, {Role: "user", Content: "q"}, {Role: "system", Content: "b"}})
	if sys != "a\n\nb" || len(rest) != 1 || rest[0].Content != "q" {
		t.Fatalf("unexpected split: %q %+v", sys, rest)
	}
}
