// Package insight builds bounded AI requests from aggregated metrics and
// parses the service's free-form answers into structured records.
package insight

import (
	"time"

	"github.com/KaramelBytes/govai/internal/aggregate"
)

// State is the lifecycle position of one request inside the orchestrator.
type State string

const (
	StatePending   State = "PENDING"
	StateInFlight  State = "IN_FLIGHT"
	StateRetrying  State = "RETRYING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Request is a fully rendered, size-bounded ask for the AI service.
type Request struct {
	Intent     string             `json:"intent"`
	Categories []string           `json:"categories"`
	Rows       []aggregate.Metric `json:"rows"`
	// Merged counts the input metrics folded into Other rows.
	Merged      int    `json:"merged,omitempty"`
	Strict      bool   `json:"strict,omitempty"`
	System      string `json:"system"`
	Prompt      string `json:"prompt"`
	Fingerprint string `json:"fingerprint"`
}

// Response is the raw answer for one fingerprint.
type Response struct {
	Fingerprint string    `json:"fingerprint"`
	Text        string    `json:"text"`
	Model       string    `json:"model,omitempty"`
	Attempts    int       `json:"attempts"`
	State       State     `json:"state"`
	CacheHit    bool      `json:"cache_hit"`
	Timestamp   time.Time `json:"timestamp"`
}
