package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	OllamaHost  string  `mapstructure:"ollama_host" yaml:"ollama_host"`

	// ModelsCatalog is an optional JSON file merged into the model catalog.
	ModelsCatalog string `mapstructure:"models_catalog" yaml:"models_catalog"`

	// Profiling and normalization
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	CategoricalRatio    float64 `mapstructure:"categorical_ratio" yaml:"categorical_ratio"`
	SampleSize          int     `mapstructure:"sample_size" yaml:"sample_size"`

	// Request shaping
	MaxAggregateRows int `mapstructure:"max_aggregate_rows" yaml:"max_aggregate_rows"`
	MaxPromptBytes   int `mapstructure:"max_prompt_bytes" yaml:"max_prompt_bytes"`

	// Orchestration
	RetryAttempts           int  `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseDelayMs        int  `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs         int  `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	RequestTimeoutSeconds   int  `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	RateLimitPerMinute      int  `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RateLimitMaxWaitSeconds int  `mapstructure:"rate_limit_max_wait_seconds" yaml:"rate_limit_max_wait_seconds"`
	CacheSize               int  `mapstructure:"cache_size" yaml:"cache_size"`
	MaxConcurrentAnalyses   int  `mapstructure:"max_concurrent_analyses" yaml:"max_concurrent_analyses"`
	RegenerateOnMalformed   bool `mapstructure:"regenerate_on_malformed" yaml:"regenerate_on_malformed"`

	// Ambient
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat  string `mapstructure:"log_format" yaml:"log_format"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Provider key variables consulted when api_key is unset.
var providerKeyEnv = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// Dir returns ~/.govai.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".govai"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.govai/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("model", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("models_catalog", "")

	v.SetDefault("similarity_threshold", 85.0)
	v.SetDefault("categorical_ratio", 0.5)
	v.SetDefault("sample_size", 1000)

	v.SetDefault("max_aggregate_rows", 200)
	v.SetDefault("max_prompt_bytes", 48000)

	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 1000)
	v.SetDefault("retry_max_delay_ms", 30000)
	v.SetDefault("request_timeout_seconds", 30)
	v.SetDefault("rate_limit_per_minute", 60)
	v.SetDefault("rate_limit_max_wait_seconds", 60)
	v.SetDefault("cache_size", 256)
	v.SetDefault("max_concurrent_analyses", 4)
	v.SetDefault("regenerate_on_malformed", true)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("listen_addr", ":8080")
}

// Default returns the built-in defaults without reading files or env.
func Default() *Global {
	v := viper.New()
	SetDefaults(v)
	var c Global
	_ = v.Unmarshal(&c)
	return &c
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > .env > defaults.
func Load(cfgFile string) (*Global, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GOVAI")
	v.AutomaticEnv()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.APIKey == "" {
		if name, ok := providerKeyEnv[c.Provider]; ok {
			c.APIKey = os.Getenv(name)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Global) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity_threshold must be within 0..100, got %v", c.SimilarityThreshold)
	}
	if c.CategoricalRatio <= 0 || c.CategoricalRatio > 1 {
		return fmt.Errorf("categorical_ratio must be within (0,1], got %v", c.CategoricalRatio)
	}
	if c.MaxAggregateRows < 1 {
		return fmt.Errorf("max_aggregate_rows must be positive, got %d", c.MaxAggregateRows)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("rate_limit_per_minute must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// RequestTimeout is the per-attempt deadline.
func (c *Global) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RateLimitMaxWait is the longest an attempt may queue for a token.
func (c *Global) RateLimitMaxWait() time.Duration {
	return time.Duration(c.RateLimitMaxWaitSeconds) * time.Second
}

// RetryBaseDelay is the first backoff delay.
func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay caps the backoff delay.
func (c *Global) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}
