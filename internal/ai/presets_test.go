package ai

import "testing"

func TestPresetCatalogGemini(t *testing.T) {
	m, ok := PresetCatalog(ProviderGemini)
	if !ok || len(m) == 0 {
		t.Fatalf("expected gemini preset to be available")
	}
	if _, exists := m["gemini-2.5-flash"]; !exists {
		t.Fatalf("expected gemini-2.5-flash in gemini preset")
	}
	if _, ok := PresetCatalog("nope"); ok {
		t.Fatalf("expected unknown provider to have no preset")
	}
}

func TestRecommendModel(t *testing.T) {
	if name, ok := RecommendModel("", "balanced"); !ok || name != "gemini-2.5-flash" {
		t.Fatalf("unexpected default recommendation: %s", name)
	}
	if name, ok := RecommendModel(ProviderOpenRouter, "cheap"); !ok || name != "deepseek/deepseek-r1:free" {
		t.Fatalf("unexpected recommendation for openrouter/cheap: %s", name)
	}
	if name, ok := RecommendModel(ProviderAnthropic, "balanced"); !ok || name != "claude-sonnet-4-5" {
		t.Fatalf("unexpected recommendation for anthropic/balanced: %s", name)
	}
	if _, ok := RecommendModel(ProviderGemini, "unknown"); ok {
		t.Fatalf("expected unknown tier to be false")
	}
	for _, p := range Providers {
		name := DefaultModel(p)
		if _, ok := LookupModel(name); !ok {
			t.Fatalf("default model %q for %s missing from catalog", name, p)
		}
	}
}

func TestEstimateCostUSD(t *testing.T) {
	cost, ok := EstimateCostUSD("gpt-4o-mini", 2000, 1000)
	if !ok {
		t.Fatalf("expected gpt-4o-mini to be priced")
	}
	if want := 2*0.00015 + 0.0006; cost < want-1e-12 || cost > want+1e-12 {
		t.Fatalf("cost = %v, want %v", cost, want)
	}
	if _, ok := EstimateCostUSD("unknown-model", 1, 1); ok {
		t.Fatalf("expected unknown model to be unpriced")
	}
}
