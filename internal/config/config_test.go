package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 85.0, c.SimilarityThreshold)
	assert.Equal(t, 200, c.MaxAggregateRows)
	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, 30*time.Second, c.RequestTimeout())
	assert.Equal(t, 60, c.RateLimitPerMinute)
	assert.Equal(t, 256, c.CacheSize)
	assert.Equal(t, time.Second, c.RetryBaseDelay())
	assert.Equal(t, 30*time.Second, c.RetryMaxDelay())
	assert.Equal(t, "gemini", c.Provider)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache_size: 16\nsimilarity_threshold: 90\n"), 0o600))
	t.Setenv("GOVAI_CACHE_SIZE", "32")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, c.CacheSize)
	assert.Equal(t, 90.0, c.SimilarityThreshold)
}

func TestLoadProviderKeyFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GOVAI_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", c.APIKey)
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GOVAI_SIMILARITY_THRESHOLD", "150")
	_, err := Load("")
	assert.ErrorContains(t, err, "similarity_threshold")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	c.Model = "gpt-4o-mini"
	c.Provider = "openai"
	require.NoError(t, Save(c, path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", back.Model)
	assert.Equal(t, "openai", back.Provider)
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "gemini-2.5-flash", c.Model)
	assert.Equal(t, ":8080", c.ListenAddr)
	assert.True(t, c.RegenerateOnMalformed)
}
