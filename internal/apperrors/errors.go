// Package apperrors defines the pipeline failure taxonomy. Every error
// reports the stage that produced it and whether retrying can help.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pipeline stages reported by Stage().
const (
	StageIngest      = "ingest"
	StageProfile     = "profile"
	StageNormalize   = "normalize"
	StageAggregate   = "aggregate"
	StageBuild       = "build"
	StageOrchestrate = "orchestrate"
	StageParse       = "parse"
)

// Staged is implemented by every error in this package.
type Staged interface {
	error
	Stage() string
	Retryable() bool
}

// SchemaError means the input shape is unusable (no rows, no columns,
// missing column). Fatal.
type SchemaError struct {
	StageName string
	Reason    string
}

func (e *SchemaError) Error() string { return "schema error: " + e.Reason }

func (e *SchemaError) Stage() string {
	if e.StageName == "" {
		return StageProfile
	}
	return e.StageName
}

func (e *SchemaError) Retryable() bool { return false }

// NewSchemaError builds a SchemaError for the given stage.
func NewSchemaError(stage, format string, args ...any) *SchemaError {
	return &SchemaError{StageName: stage, Reason: fmt.Sprintf(format, args...)}
}

// RequestTooLargeError means a single aggregate row cannot fit within the
// prompt size limit. The caller must reduce scope.
type RequestTooLargeError struct {
	RowBytes int
	Limit    int
}

func (e *RequestTooLargeError) Error() string {
	return fmt.Sprintf("request too large: a single row needs %d bytes, limit is %d", e.RowBytes, e.Limit)
}

func (e *RequestTooLargeError) Stage() string   { return StageBuild }
func (e *RequestTooLargeError) Retryable() bool { return false }

// RateLimitExceededError means the outbound token bucket could not grant
// a slot within the configured maximum wait, or the service asked for a
// longer pause (RetryAfter) than the backoff cap allows.
type RateLimitExceededError struct {
	Waited     time.Duration
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitExceededError) Error() string {
	msg := fmt.Sprintf("rate limit exceeded: no slot within %s, retry later", e.Waited)
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("rate limit exceeded: service asked to wait %s, retry later", e.RetryAfter)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RateLimitExceededError) Unwrap() error   { return e.Cause }
func (e *RateLimitExceededError) Stage() string   { return StageOrchestrate }
func (e *RateLimitExceededError) Retryable() bool { return true }

// InsightGenerationError is returned when retries are exhausted or the AI
// service failed permanently.
type InsightGenerationError struct {
	Attempts  int
	Cause     error
	Transient bool
}

func (e *InsightGenerationError) Error() string {
	return fmt.Sprintf("insight generation failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *InsightGenerationError) Unwrap() error   { return e.Cause }
func (e *InsightGenerationError) Stage() string   { return StageOrchestrate }
func (e *InsightGenerationError) Retryable() bool { return e.Transient }

// MalformedInsightError means the service answered but its text does not
// follow the four-section format. Callers may regenerate.
type MalformedInsightError struct {
	Section string
	Reason  string
}

func (e *MalformedInsightError) Error() string {
	if e.Section == "" {
		return "malformed insight: " + e.Reason
	}
	return fmt.Sprintf("malformed insight: section %q %s", e.Section, e.Reason)
}

func (e *MalformedInsightError) Stage() string   { return StageParse }
func (e *MalformedInsightError) Retryable() bool { return true }

// StageOf returns the stage of the first Staged error in the chain, or
// "unknown".
func StageOf(err error) string {
	var s Staged
	if errors.As(err, &s) {
		return s.Stage()
	}
	return "unknown"
}

// IsRetryable reports whether err (or anything it wraps) is safely retryable.
func IsRetryable(err error) bool {
	var s Staged
	if errors.As(err, &s) {
		return s.Retryable()
	}
	return false
}

// Describe renders err for users as "stage=<s> retryable=<bool>: <msg>".
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "stage=%s retryable=%t: %s", StageOf(err), IsRetryable(err), err.Error())
	return b.String()
}
