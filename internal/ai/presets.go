package ai

// PresetCatalog returns the built-in models for a provider.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	out := map[string]ModelInfo{}
	for _, mi := range builtinModels {
		if mi.Provider == provider {
			out[mi.Name] = mi
		}
	}
	return out, len(out) > 0
}

// DefaultModel is the model used when none is configured.
func DefaultModel(provider string) string {
	name, _ := RecommendModel(provider, "balanced")
	return name
}

// RecommendModel returns a recommended model name for a given tier and provider.
// If provider is empty, defaults to gemini. Tiers: cheap|balanced|high-context.
func RecommendModel(provider, tier string) (string, bool) {
	if provider == "" {
		provider = ProviderGemini
	}
	table := map[string][3]string{
		//                    cheap, balanced, high-context
		ProviderGemini:     {"gemini-2.5-flash-lite", "gemini-2.5-flash", "gemini-2.5-pro"},
		ProviderOpenAI:     {"gpt-4o-mini", "gpt-4o-mini", "gpt-4.1-mini"},
		ProviderAnthropic:  {"claude-3-5-haiku-latest", "claude-sonnet-4-5", "claude-sonnet-4-5"},
		ProviderOpenRouter: {"deepseek/deepseek-r1:free", "google/gemini-2.5-flash", "google/gemini-2.5-flash"},
		ProviderOllama:     {"phi3:mini-128k-instruct", "llama3.1:8b", "llama3.1:8b"},
	}
	row, ok := table[provider]
	if !ok {
		return "", false
	}
	switch tier {
	case "cheap":
		return row[0], true
	case "balanced":
		return row[1], true
	case "high-context":
		return row[2], true
	}
	return "", false
}
