package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStagesAndRetryability(t *testing.T) {
	cases := []struct {
		err       error
		stage     string
		retryable bool
	}{
		{NewSchemaError(StageProfile, "dataset has no rows"), StageProfile, false},
		{&SchemaError{Reason: "x"}, StageProfile, false},
		{&RequestTooLargeError{RowBytes: 10, Limit: 5}, StageBuild, false},
		{&RateLimitExceededError{}, StageOrchestrate, true},
		{&InsightGenerationError{Attempts: 3, Cause: errors.New("503"), Transient: true}, StageOrchestrate, true},
		{&InsightGenerationError{Attempts: 1, Cause: errors.New("401")}, StageOrchestrate, false},
		{&MalformedInsightError{Section: "recommendation", Reason: "is missing"}, StageParse, true},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("analyze: %w", c.err)
		assert.Equal(t, c.stage, StageOf(wrapped), c.err.Error())
		assert.Equal(t, c.retryable, IsRetryable(wrapped), c.err.Error())
	}
}

func TestDescribe(t *testing.T) {
	err := &MalformedInsightError{Section: "severity", Reason: "is empty"}
	assert.Equal(t, `stage=parse retryable=true: malformed insight: section "severity" is empty`, Describe(err))
	assert.Equal(t, "stage=unknown retryable=false: boom", Describe(errors.New("boom")))
	assert.Equal(t, "", Describe(nil))
}

func TestInsightGenerationErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := &InsightGenerationError{Attempts: 2, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
}
