package pipeline

import (
	"time"

	"github.com/KaramelBytes/govai/internal/ai"
	"github.com/KaramelBytes/govai/internal/config"
	"github.com/KaramelBytes/govai/internal/insight"
	"github.com/KaramelBytes/govai/internal/normalize"
	"github.com/KaramelBytes/govai/internal/orchestrator"
	"github.com/KaramelBytes/govai/internal/profile"
	"github.com/KaramelBytes/govai/internal/retry"
)

// Config holds the tunables of one session.
type Config struct {
	Profile               profile.Options
	Threshold             float64
	Builder               insight.Options
	Orchestrator          orchestrator.Options
	MaxConcurrent         int
	RegenerateOnMalformed bool
}

// DefaultConfig returns the package defaults of every stage.
func DefaultConfig() Config {
	return Config{
		Profile:               profile.DefaultOptions(),
		Threshold:             normalize.DefaultThreshold,
		Builder:               insight.DefaultOptions(),
		Orchestrator:          orchestrator.DefaultOptions(),
		MaxConcurrent:         4,
		RegenerateOnMalformed: true,
	}
}

// FromGlobal maps the loaded configuration onto a session Config.
func FromGlobal(g *config.Global) Config {
	return Config{
		Profile: profile.Options{
			SampleSize:       g.SampleSize,
			CategoricalRatio: g.CategoricalRatio,
		},
		Threshold: g.SimilarityThreshold,
		Builder: insight.Options{
			MaxRows:        g.MaxAggregateRows,
			MaxPromptBytes: g.MaxPromptBytes,
		},
		Orchestrator: orchestrator.Options{
			Model:       g.Model,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
			Retry: retry.Policy{
				MaxAttempts:  g.RetryAttempts,
				BaseDelay:    g.RetryBaseDelay(),
				MaxDelay:     g.RetryMaxDelay(),
				Multiplier:   2,
				JitterFactor: 0.2,
			},
			AttemptTimeout: g.RequestTimeout(),
			RatePerMinute:  g.RateLimitPerMinute,
			MaxRateWait:    g.RateLimitMaxWait(),
			CacheSize:      g.CacheSize,
		},
		MaxConcurrent:         g.MaxConcurrentAnalyses,
		RegenerateOnMalformed: g.RegenerateOnMalformed,
	}
}

// RuntimeFromGlobal builds the AI runtime named by g.Provider.
func RuntimeFromGlobal(g *config.Global) (ai.Runtime, error) {
	return ai.NewRuntime(g.Provider, ai.RuntimeConfig{
		// Per-attempt deadlines are enforced by the orchestrator.
		HTTPTimeout: g.RequestTimeout() + 5*time.Second,
		APIKey:      g.APIKey,
		BaseURL:     g.BaseURL,
		Host:        g.OllamaHost,
	})
}
