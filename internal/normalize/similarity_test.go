package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := map[string]string{
		"  TB (Pulmonary) ":     "tb",
		"Port-Harcourt":         "port harcourt",
		"port_harcourt":         "port harcourt",
		"Lagos, Island":         "lagos island",
		"(unknown)":             "unknown",
		"Malaria [confirmed]":   "malaria",
		"HIV/AIDS":              "hiv aids",
		"":                      "",
		"Ábuja":                 "ábuja",
	}
	for in, want := range tests {
		assert.Equal(t, want, Key(in), in)
	}
}

func TestTokenSortRatio(t *testing.T) {
	assert.Equal(t, 100.0, tokenSortRatio("lagos island", "island lagos"))
	// indel("kano", "kaduna") = 4 over 10 runes
	assert.InDelta(t, 60.0, tokenSortRatio("kano", "kaduna"), 1e-9)
	assert.Equal(t, 100.0, tokenSortRatio("", ""))
	assert.Equal(t, 0.0, tokenSortRatio("abc", ""))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"TB", "tb", 100},
		{"TB", "Tuberculosis", AbbreviationScore},
		{"tb (pulmonary)", "TB", 100},
		{"HIV", "Human Immunodeficiency Virus", AbbreviationScore},
		{"Island Lagos", "lagos-island", 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Similarity(tt.a, tt.b), "%s ~ %s", tt.a, tt.b)
		assert.Equal(t, tt.want, Similarity(tt.b, tt.a), "symmetry %s ~ %s", tt.b, tt.a)
	}
	assert.Less(t, Similarity("Kano", "Kaduna"), 85.0)
	assert.Less(t, Similarity("Malaria", "Measles"), 85.0)
	assert.Less(t, Similarity("MS", "Measles"), 85.0)
	assert.Greater(t, Similarity("Tuberculosis", "Tuberculossis"), 85.0)
}

func TestAbbreviates(t *testing.T) {
	assert.True(t, abbreviates("tb", "tuberculosis"))
	assert.True(t, abbreviates("fct", "federal capital territory"))
	assert.False(t, abbreviates("fc", "federal capital territory"), "initial count must match")
	assert.False(t, abbreviates("tb", "abt"), "must share the first letter")
	assert.False(t, abbreviates("kano", "kaduna"), "vowels rule out a skeleton")
	assert.False(t, abbreviates("ms", "measles"), "s does not open a syllable")
	assert.False(t, abbreviates("ms", "meningitis"))
	assert.True(t, abbreviates("hpt", "hepatitis"))
	assert.False(t, abbreviates("t", "tuberculosis"), "too short")
	assert.False(t, abbreviates("lagos island", "lagos island state"))
}
