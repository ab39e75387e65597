package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ModelInfo carries context size and pricing used for cost hints.
// Prices are illustrative; verify them against the provider's pricing page.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var builtinModels = []ModelInfo{
	{Name: "gemini-2.5-flash", Provider: ProviderGemini, ContextTokens: 1048576, InputPerK: 0.0003, OutputPerK: 0.0025},
	{Name: "gemini-2.5-flash-lite", Provider: ProviderGemini, ContextTokens: 1048576, InputPerK: 0.0001, OutputPerK: 0.0004},
	{Name: "gemini-2.5-pro", Provider: ProviderGemini, ContextTokens: 1048576, InputPerK: 0.00125, OutputPerK: 0.01},
	{Name: "gpt-4o-mini", Provider: ProviderOpenAI, ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	{Name: "gpt-4.1-mini", Provider: ProviderOpenAI, ContextTokens: 1047576, InputPerK: 0.0004, OutputPerK: 0.0016},
	{Name: "gpt-4o", Provider: ProviderOpenAI, ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01},
	{Name: "claude-3-5-haiku-latest", Provider: ProviderAnthropic, ContextTokens: 200000, InputPerK: 0.0008, OutputPerK: 0.004},
	{Name: "claude-sonnet-4-5", Provider: ProviderAnthropic, ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
	{Name: "deepseek/deepseek-r1:free", Provider: ProviderOpenRouter, ContextTokens: 128000},
	{Name: "google/gemini-2.5-flash", Provider: ProviderOpenRouter, ContextTokens: 1048576, InputPerK: 0.0003, OutputPerK: 0.0025},
	{Name: "openai/gpt-4o-mini", Provider: ProviderOpenRouter, ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	{Name: "anthropic/claude-3.5-sonnet", Provider: ProviderOpenRouter, ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
	{Name: "llama3.1:8b", Provider: ProviderOllama, ContextTokens: 131072},
	{Name: "mistral:7b-instruct", Provider: ProviderOllama, ContextTokens: 32768},
	{Name: "phi3:mini-128k-instruct", Provider: ProviderOllama, ContextTokens: 128000},
}

var (
	catalogMu sync.RWMutex
	models    = func() map[string]ModelInfo {
		m := make(map[string]ModelInfo, len(builtinModels))
		for _, mi := range builtinModels {
			m[mi.Name] = mi
		}
		return m
	}()
)

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example entry:
// { "gpt-4o-mini": {"Name":"gpt-4o-mini","Provider":"openai","ContextTokens":128000,"InputPerK":0.00015,"OutputPerK":0.0006} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]ModelInfo
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
			m[k] = v
		}
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns the current catalog sorted by provider then name.
func Catalog() []ModelInfo {
	catalogMu.RLock()
	out := make([]ModelInfo, 0, len(models))
	for _, v := range models {
		out = append(out, v)
	}
	catalogMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}
