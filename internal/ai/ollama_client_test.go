package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/KaramelBytes/govai/internal/retry"
)

func TestOllamaGenerateSuccess(t *testing.T) {
	var captured ollamaChatRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3.1:8b",
			"message":           map[string]any{"role": "assistant", "content": "hello from ollama"},
			"prompt_eval_count": 12,
			"eval_count":        5,
			"done":              true,
		})
	}))

	c := NewOllamaClient(srv.URL, 2*time.Second)
	req := hiRequest()
	req.Temperature = 0.3
	resp, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "hello from ollama" || resp.Usage.TotalTokens != 17 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected simulated request id")
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Stream {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if captured.Options["num_predict"] != float64(16) || captured.Options["temperature"] != 0.3 {
		t.Fatalf("unexpected options: %+v", captured.Options)
	}
}

func TestOllamaMissingModelIsPermanent(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model \"nope\" not found, try pulling it first"})
	}))
	_, err := NewOllamaClient(srv.URL, 2*time.Second).Generate(context.Background(), hiRequest())
	var mnf *ModelNotFoundError
	if !errors.As(err, &mnf) || retry.IsRetryable(err) {
		t.Fatalf("expected permanent ModelNotFoundError, got %v", err)
	}
}

func TestOllamaUnreachableIsTransient(t *testing.T) {
	// Port 1 on loopback is reserved and refuses connections.
	_, err := NewOllamaClient("http://127.0.0.1:1", time.Second).Generate(context.Background(), hiRequest())
	var ue *UnreachableError
	if !errors.As(err, &ue) || !retry.IsRetryable(err) {
		t.Fatalf("expected transient UnreachableError, got %v", err)
	}
}

func TestOllamaGenerateEmptyMessages(t *testing.T) {
	c := NewOllamaClient("http://localhost:11434", 2*time.Second)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: []Message{}})
	if err == nil || err.Error() != "messages cannot be empty" {
		t.Fatalf("expected 'messages cannot be empty' error, got: %v", err)
	}
}
