package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/govai/internal/aggregate"
	"github.com/KaramelBytes/govai/internal/ai"
	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/insight"
)

const goodAnswer = "Summary: a\nInterpretation: b\nRecommendation: c\nSeverity: high"

func request(t *testing.T, intent string) *insight.Request {
	t.Helper()
	req, err := insight.NewBuilder(insight.DefaultOptions()).Build([]aggregate.Metric{
		{Category: "TB", Measure: "Deaths", Aggregation: aggregate.Sum, Value: 15, Sum: 15, N: 2},
	}, intent)
	require.NoError(t, err)
	return req
}

func reply(text string) *ai.GenerateResponse {
	return &ai.GenerateResponse{Model: "mock-model", Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: text}}}}
}

func serverError() error {
	return &ai.ServerError{APIError: &ai.APIError{StatusCode: 503, Message: "unavailable"}}
}

// sleepRecorder records backoff delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

// testOptions disables the token bucket so retries do not wait on it.
func testOptions() Options {
	opt := DefaultOptions()
	opt.RatePerMinute = 0
	return opt
}

func newTestOrchestrator(t *testing.T, rt ai.Runtime, opt Options, opts ...Option) (*Orchestrator, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)
	o, err := New(rt, opt, zap.NewNop(), opts...)
	require.NoError(t, err)
	return o, rec
}

func TestAnalyzeCachesByFingerprint(t *testing.T) {
	rt := &ai.MockRuntime{Reply: goodAnswer}
	o, _ := newTestOrchestrator(t, rt, testOptions())
	ctx := context.Background()

	first, err := o.Analyze(ctx, request(t, ""))
	require.NoError(t, err)
	second, err := o.Analyze(ctx, request(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 1, rt.Calls())
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, insight.StateSucceeded, second.State)

	_, err = o.Analyze(ctx, request(t, "another intent"))
	require.NoError(t, err)
	assert.Equal(t, 2, rt.Calls())
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		if call <= 2 {
			return nil, serverError()
		}
		return reply(goodAnswer), nil
	}}
	o, rec := newTestOrchestrator(t, rt, testOptions())
	req := request(t, "")

	resp, err := o.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, insight.StateSucceeded, resp.State)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, 3, rt.Calls())
	require.Len(t, rec.delays, 2)
	// 1s then 2s, each within +/-20% jitter.
	assert.InDelta(t, float64(time.Second), float64(rec.delays[0]), float64(200*time.Millisecond))
	assert.InDelta(t, float64(2*time.Second), float64(rec.delays[1]), float64(400*time.Millisecond))
	state, ok := o.State(req.Fingerprint)
	assert.True(t, ok)
	assert.Equal(t, insight.StateSucceeded, state)
}

func TestAnalyzeAuthFailureIsFatal(t *testing.T) {
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		return nil, &ai.AuthError{APIError: &ai.APIError{StatusCode: 401, Message: "bad key"}}
	}}
	o, rec := newTestOrchestrator(t, rt, testOptions())
	req := request(t, "")

	_, err := o.Analyze(context.Background(), req)
	var ige *apperrors.InsightGenerationError
	require.True(t, errors.As(err, &ige))
	assert.Equal(t, 1, ige.Attempts)
	assert.False(t, apperrors.IsRetryable(err))
	assert.Equal(t, 1, rt.Calls())
	assert.Empty(t, rec.delays)
	state, _ := o.State(req.Fingerprint)
	assert.Equal(t, insight.StateFailed, state)
}

func TestAnalyzeExhaustsAttempts(t *testing.T) {
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		return nil, serverError()
	}}
	opt := testOptions()
	opt.Retry.MaxAttempts = 4
	o, _ := newTestOrchestrator(t, rt, opt)

	_, err := o.Analyze(context.Background(), request(t, ""))
	var ige *apperrors.InsightGenerationError
	require.True(t, errors.As(err, &ige))
	assert.Equal(t, 4, ige.Attempts)
	assert.True(t, apperrors.IsRetryable(err))
	var se *ai.ServerError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, 4, rt.Calls())
}

func TestAnalyzeHonorsRetryAfterFloor(t *testing.T) {
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		if call == 1 {
			return nil, &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}, RetryAfter: 9 * time.Second}
		}
		return reply(goodAnswer), nil
	}}
	o, rec := newTestOrchestrator(t, rt, testOptions())
	_, err := o.Analyze(context.Background(), request(t, ""))
	require.NoError(t, err)
	require.Len(t, rec.delays, 1)
	assert.GreaterOrEqual(t, rec.delays[0], 9*time.Second)
}

func TestAnalyzeFailsFastWhenRetryAfterExceedsCap(t *testing.T) {
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		return nil, &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}, RetryAfter: time.Hour}
	}}
	o, rec := newTestOrchestrator(t, rt, testOptions())
	req := request(t, "")
	_, err := o.Analyze(context.Background(), req)

	var rle *apperrors.RateLimitExceededError
	require.True(t, errors.As(err, &rle), "got %v", err)
	assert.Equal(t, time.Hour, rle.RetryAfter)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Empty(t, rec.delays)
	assert.Equal(t, 1, rt.Calls())
	state, ok := o.State(req.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, insight.StateFailed, state)
}

func TestAnalyzeAttemptTimeoutIsTransient(t *testing.T) {
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		if call == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return reply(goodAnswer), nil
	}}
	opt := testOptions()
	opt.AttemptTimeout = 20 * time.Millisecond
	o, _ := newTestOrchestrator(t, rt, opt)

	resp, err := o.Analyze(context.Background(), request(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
}

func TestAnalyzeEmptyAnswerIsRetried(t *testing.T) {
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		if call == 1 {
			return reply("  "), nil
		}
		return reply(goodAnswer), nil
	}}
	o, _ := newTestOrchestrator(t, rt, testOptions())
	resp, err := o.Analyze(context.Background(), request(t, ""))
	require.NoError(t, err)
	assert.Equal(t, goodAnswer, resp.Text)
}

func TestAnalyzeDeduplicatesConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		<-release
		return reply(goodAnswer), nil
	}}
	o, _ := newTestOrchestrator(t, rt, testOptions())
	req := request(t, "")

	var wg sync.WaitGroup
	results := make([]*insight.Response, 3)
	errs := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Analyze(context.Background(), req)
		}(i)
	}
	require.Eventually(t, func() bool { return o.Waiters(req.Fingerprint) == 3 }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, goodAnswer, results[i].Text)
	}
	assert.Equal(t, 1, rt.Calls())
	assert.Zero(t, o.Waiters(req.Fingerprint))
}

func TestAnalyzeCancelledCallerDoesNotAbortSharedCall(t *testing.T) {
	release := make(chan struct{})
	rt := &ai.MockRuntime{GenerateFunc: func(ctx context.Context, call int, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		select {
		case <-release:
			return reply(goodAnswer), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	o, _ := newTestOrchestrator(t, rt, testOptions())
	req := request(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Analyze(ctx, req)
		done <- err
	}()
	require.Eventually(t, func() bool { return rt.Calls() == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		s, _ := o.State(req.Fingerprint)
		return s == insight.StateSucceeded
	}, 2*time.Second, time.Millisecond)

	resp, err := o.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
	assert.Equal(t, 1, rt.Calls())
}

func TestStatesAreBoundedByCacheSize(t *testing.T) {
	rt := &ai.MockRuntime{Reply: goodAnswer}
	opt := testOptions()
	opt.CacheSize = 2
	o, _ := newTestOrchestrator(t, rt, opt)

	var reqs []*insight.Request
	for _, intent := range []string{"wards", "districts", "regions"} {
		req := request(t, intent)
		_, err := o.Analyze(context.Background(), req)
		require.NoError(t, err)
		reqs = append(reqs, req)
	}
	_, ok := o.State(reqs[0].Fingerprint)
	assert.False(t, ok)
	s, ok := o.State(reqs[2].Fingerprint)
	require.True(t, ok)
	assert.Equal(t, insight.StateSucceeded, s)
}

func TestAnalyzeRateLimitExceeded(t *testing.T) {
	rt := &ai.MockRuntime{Reply: goodAnswer}
	opt := testOptions()
	opt.MaxRateWait = 10 * time.Millisecond
	o, _ := newTestOrchestrator(t, rt, opt, WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := o.Analyze(context.Background(), request(t, "first"))
	require.NoError(t, err)

	_, err = o.Analyze(context.Background(), request(t, "second"))
	var rle *apperrors.RateLimitExceededError
	require.True(t, errors.As(err, &rle))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 1, rt.Calls())
}

func TestNewRequiresRuntime(t *testing.T) {
	_, err := New(nil, DefaultOptions(), zap.NewNop())
	assert.Error(t, err)
}

func TestAnalyzeRejectsMissingFingerprint(t *testing.T) {
	o, _ := newTestOrchestrator(t, &ai.MockRuntime{Reply: goodAnswer}, testOptions())
	_, err := o.Analyze(context.Background(), &insight.Request{})
	assert.Error(t, err)
}
