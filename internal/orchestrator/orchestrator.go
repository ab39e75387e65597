// Package orchestrator turns insight requests into AI responses. It owns
// the response cache, the outbound rate limiter, retry with backoff, the
// per-attempt timeout and per-fingerprint deduplication.
//
// Each request moves PENDING -> IN_FLIGHT -> SUCCEEDED | RETRYING | FAILED,
// and RETRYING -> IN_FLIGHT again while attempts remain.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/govai/internal/ai"
	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/insight"
	"github.com/KaramelBytes/govai/internal/logging"
	"github.com/KaramelBytes/govai/internal/retry"
)

// Options configures an Orchestrator.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int

	Retry          retry.Policy
	AttemptTimeout time.Duration
	// RatePerMinute <= 0 disables rate limiting.
	RatePerMinute int
	MaxRateWait   time.Duration
	CacheSize     int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Temperature:    0.3,
		MaxTokens:      1024,
		Retry:          retry.DefaultPolicy(),
		AttemptTimeout: 30 * time.Second,
		RatePerMinute:  60,
		MaxRateWait:    60 * time.Second,
		CacheSize:      256,
	}
}

// Cache stores successful responses by fingerprint.
type Cache interface {
	Get(key string) (*insight.Response, bool)
	Add(key string, value *insight.Response) bool
}

// Limiter gates outbound attempts; *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Option customizes an Orchestrator at construction.
type Option func(*Orchestrator)

// WithCache replaces the default LRU cache.
func WithCache(c Cache) Option { return func(o *Orchestrator) { o.cache = c } }

// WithLimiter replaces the default token bucket.
func WithLimiter(l Limiter) Option { return func(o *Orchestrator) { o.limiter = l } }

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// Orchestrator is safe for concurrent use. Build one per session.
type Orchestrator struct {
	rt      ai.Runtime
	opt     Options
	logger  *zap.Logger
	cache   Cache
	limiter Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	group   singleflight.Group

	mu      sync.Mutex
	waiters map[string]int
	states  *lru.Cache[string, insight.State]
}

// New builds an Orchestrator around rt.
func New(rt ai.Runtime, opt Options, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if rt == nil {
		return nil, errors.New("orchestrator: runtime is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultOptions()
	if opt.AttemptTimeout <= 0 {
		opt.AttemptTimeout = d.AttemptTimeout
	}
	if opt.MaxRateWait <= 0 {
		opt.MaxRateWait = d.MaxRateWait
	}
	if opt.CacheSize <= 0 {
		opt.CacheSize = d.CacheSize
	}
	opt.Retry = opt.Retry.Normalize()

	o := &Orchestrator{
		rt:      rt,
		opt:     opt,
		logger:  logger.Named("orchestrator"),
		sleep:   retry.Sleep,
		waiters: map[string]int{},
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.cache == nil {
		c, err := lru.New[string, *insight.Response](opt.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: cache: %w", err)
		}
		o.cache = c
	}
	// States are kept for as many fingerprints as the default cache holds.
	states, err := lru.New[string, insight.State](opt.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: states: %w", err)
	}
	o.states = states
	if o.limiter == nil && opt.RatePerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(float64(opt.RatePerMinute)/60.0), 1)
	}
	return o, nil
}

// Analyze returns the response for req, from cache when possible. Callers
// sharing a fingerprint share one outbound call; that call runs detached
// from any caller's context, so a cancelled caller gets ctx.Err() while
// the call still completes and fills the cache for the others.
func (o *Orchestrator) Analyze(ctx context.Context, req *insight.Request) (*insight.Response, error) {
	if req == nil || req.Fingerprint == "" {
		return nil, errors.New("orchestrator: request has no fingerprint")
	}
	fp := req.Fingerprint
	if cached, ok := o.cache.Get(fp); ok {
		o.logger.Debug("cache hit", zap.String("fingerprint", short(fp)))
		out := *cached
		out.CacheHit = true
		return &out, nil
	}

	o.addWaiter(fp, 1)
	defer o.addWaiter(fp, -1)

	ch := o.group.DoChan(fp, func() (any, error) {
		if cached, ok := o.cache.Get(fp); ok {
			out := *cached
			out.CacheHit = true
			return &out, nil
		}
		return o.run(context.WithoutCancel(ctx), req)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := *res.Val.(*insight.Response)
		return &out, nil
	case <-ctx.Done():
		o.logger.Debug("caller left shared call", zap.String("fingerprint", short(fp)), zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}
}

// Waiters reports how many callers are currently waiting on fingerprint.
func (o *Orchestrator) Waiters(fingerprint string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.waiters[fingerprint]
}

// State reports the last known lifecycle state for fingerprint. Only the
// most recent CacheSize fingerprints are remembered.
func (o *Orchestrator) State(fingerprint string) (insight.State, bool) {
	return o.states.Get(fingerprint)
}

func (o *Orchestrator) addWaiter(fp string, delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waiters[fp] += delta
	if o.waiters[fp] <= 0 {
		delete(o.waiters, fp)
	}
}

func (o *Orchestrator) transition(fp string, s insight.State, fields ...zap.Field) {
	o.states.Add(fp, s)
	fields = append([]zap.Field{zap.String("fingerprint", short(fp)), zap.String("state", string(s))}, fields...)
	switch s {
	case insight.StateRetrying:
		o.logger.Warn("insight request retrying", fields...)
	case insight.StateFailed:
		o.logger.Error("insight request failed", fields...)
	default:
		o.logger.Debug("insight request state", fields...)
	}
}

// errEmptyAnswer is returned when the service answers with no text.
type errEmptyAnswer struct{}

func (errEmptyAnswer) Error() string     { return "service returned an empty answer" }
func (errEmptyAnswer) IsRetryable() bool { return true }

func (o *Orchestrator) run(ctx context.Context, req *insight.Request) (*insight.Response, error) {
	fp := req.Fingerprint
	policy := o.opt.Retry
	o.transition(fp, insight.StatePending)

	genReq := ai.GenerateRequest{
		Model:       o.opt.Model,
		Temperature: o.opt.Temperature,
		MaxTokens:   o.opt.MaxTokens,
		Messages: []ai.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := o.acquire(ctx); err != nil {
			o.transition(fp, insight.StateFailed, zap.Int("attempt", attempt), zap.String("error", logging.SanitizeError(err)))
			return nil, err
		}
		o.transition(fp, insight.StateInFlight, zap.Int("attempt", attempt))

		start := time.Now()
		actx, cancel := context.WithTimeout(ctx, o.opt.AttemptTimeout)
		gresp, err := o.rt.Generate(actx, genReq)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil && strings.TrimSpace(gresp.Text()) == "" {
			err = errEmptyAnswer{}
		}
		if err == nil {
			model := gresp.Model
			if model == "" {
				model = o.opt.Model
			}
			resp := &insight.Response{
				Fingerprint: fp,
				Text:        gresp.Text(),
				Model:       model,
				Attempts:    attempt,
				State:       insight.StateSucceeded,
				Timestamp:   time.Now().UTC(),
			}
			o.cache.Add(fp, resp)
			o.transition(fp, insight.StateSucceeded, zap.Int("attempt", attempt), zap.Duration("latency", time.Since(start)),
				zap.Int("prompt_tokens", gresp.Usage.PromptTokens), zap.Int("completion_tokens", gresp.Usage.CompletionTokens))
			out := *resp
			return &out, nil
		}
		if timedOut && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("attempt timed out after %s: %w (%w)", o.opt.AttemptTimeout, context.DeadlineExceeded, err)
		}
		lastErr = err

		if !retry.IsRetryable(err) {
			o.transition(fp, insight.StateFailed, zap.Int("attempt", attempt), zap.String("error", logging.SanitizeError(err)))
			return nil, &apperrors.InsightGenerationError{Attempts: attempt, Cause: err}
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if hint := retry.RetryAfter(err); hint > policy.MaxDelay {
			o.transition(fp, insight.StateFailed, zap.Int("attempt", attempt), zap.Duration("retry_after", hint),
				zap.String("error", logging.SanitizeError(err)))
			return nil, &apperrors.RateLimitExceededError{Waited: policy.MaxDelay, RetryAfter: hint, Cause: err}
		}
		delay := policy.Backoff(attempt, retry.RetryAfter(err))
		o.transition(fp, insight.StateRetrying, zap.Int("attempt", attempt), zap.Duration("backoff", delay),
			zap.String("error", logging.SanitizeError(err)))
		if err := o.sleep(ctx, delay); err != nil {
			return nil, &apperrors.InsightGenerationError{Attempts: attempt, Cause: err, Transient: true}
		}
	}
	o.transition(fp, insight.StateFailed, zap.Int("attempts", policy.MaxAttempts), zap.String("error", logging.SanitizeError(lastErr)))
	return nil, &apperrors.InsightGenerationError{Attempts: policy.MaxAttempts, Cause: lastErr, Transient: true}
}

// acquire waits for a rate-limit token for at most MaxRateWait.
func (o *Orchestrator) acquire(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, o.opt.MaxRateWait)
	defer cancel()
	if err := o.limiter.Wait(wctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &apperrors.RateLimitExceededError{Waited: o.opt.MaxRateWait, Cause: err}
	}
	return nil
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
