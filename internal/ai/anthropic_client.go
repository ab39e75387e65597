package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient calls the Anthropic Messages API through go-anthropic.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient builds a client; baseURL is optional.
func NewAnthropicClient(apiKey, baseURL string, httpTimeout time.Duration) *AnthropicClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(&http.Client{Timeout: httpTimeout})}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &AnthropicClient{client: anthropic.NewClient(apiKey, opts...)}
}

// Generate sends one Messages request. System messages become the system
// prompt; the rest are passed through in order.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	system, rest := splitSystem(req.Messages)
	if len(rest) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	msgs := make([]anthropic.Message, 0, len(rest))
	for _, m := range rest {
		text := m.Content
		role := anthropic.RoleUser
		if m.Role == "assistant" {
			role = anthropic.RoleAssistant
		}
		msgs = append(msgs, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
		})
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	mreq := anthropic.MessagesRequest{
		Model:     anthropic.Model(req.Model),
		System:    system,
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		mreq.Temperature = &t
	}

	resp, err := c.client.CreateMessages(ctx, mreq)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return &GenerateResponse{
		ID:      resp.ID,
		Model:   string(resp.Model),
		Choices: []Choice{{Message: Message{Role: "assistant", Content: b.String()}}},
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// anthropicStatus maps Anthropic error types to the HTTP status they are
// documented with.
var anthropicStatus = map[string]int{
	"invalid_request_error": http.StatusBadRequest,
	"authentication_error":  http.StatusUnauthorized,
	"permission_error":      http.StatusForbidden,
	"not_found_error":       http.StatusNotFound,
	"request_too_large":     http.StatusRequestEntityTooLarge,
	"rate_limit_error":      http.StatusTooManyRequests,
	"api_error":             http.StatusInternalServerError,
	"overloaded_error":      529,
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		typ := string(apiErr.Type)
		code := "model_not_found"
		if typ != "not_found_error" || !containsFold(apiErr.Message, "model") {
			code = typ
		}
		return classifyAPIError(&APIError{StatusCode: anthropicStatus[typ], Code: code, Message: apiErr.Message}, nil)
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return classifyAPIError(&APIError{StatusCode: reqErr.StatusCode, Message: msg}, nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UnreachableError{Host: "api.anthropic.com", Err: err}
}
