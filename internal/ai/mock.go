package ai

import (
	"context"
	"sync/atomic"
)

// MockRuntime is a configurable Runtime for tests. Set GenerateFunc to
// control behavior; Calls counts every Generate invocation.
type MockRuntime struct {
	// GenerateFunc is called with the 1-based call number. If nil,
	// Generate returns Reply.
	GenerateFunc func(ctx context.Context, call int, req GenerateRequest) (*GenerateResponse, error)

	// Reply is the canned answer used when GenerateFunc is nil.
	Reply string

	calls atomic.Int64
}

// Generate implements Runtime.
func (m *MockRuntime) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	n := int(m.calls.Add(1))
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, n, req)
	}
	return &GenerateResponse{
		ID:      "mock",
		Model:   req.Model,
		Choices: []Choice{{Message: Message{Role: "assistant", Content: m.Reply}}},
	}, nil
}

// Calls returns how many times Generate ran.
func (m *MockRuntime) Calls() int { return int(m.calls.Load()) }
