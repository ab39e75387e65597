package insight

import (
	"errors"
	"testing"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func malformedSection(t *testing.T, err error) string {
	t.Helper()
	var me *apperrors.MalformedInsightError
	require.True(t, errors.As(err, &me), "want MalformedInsightError, got %v", err)
	return me.Section
}

func TestParseToleratesFormatting(t *testing.T) {
	text := "## SUMMARY\nDeaths from TB rose.\n\n" +
		"**interpretations:**\n\nMost cases are in Kano.\n\n\n" +
		"- Recommendation: Expand screening.\n" +
		"SEVERITY: High - rising"
	rec, err := Parse(&Response{Text: text, Fingerprint: "abc", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "Deaths from TB rose.", rec.Summary)
	assert.Equal(t, "Most cases are in Kano.", rec.Interpretation)
	assert.Equal(t, "Expand screening.", rec.Recommendation)
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.Equal(t, "rising", rec.SeverityNote)
	assert.Equal(t, "abc", rec.Fingerprint)
	assert.Equal(t, "m", rec.Model)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestParseKeepsMultilineBodies(t *testing.T) {
	text := "Summary: first line\nsecond line\n\n\nthird\nInterpretation: x\nRecommendation: y\nSeverity: **Critical**"
	rec, err := Parse(&Response{Text: text})
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line\n\nthird", rec.Summary)
	assert.Equal(t, SeverityCritical, rec.Severity)
}

func TestParseMissingRecommendation(t *testing.T) {
	_, err := Parse(&Response{Text: "Summary: a\nInterpretation: b\nSeverity: low"})
	assert.Equal(t, SectionRecommendation, malformedSection(t, err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, apperrors.StageParse, apperrors.StageOf(err))
}

func TestParseEmptySection(t *testing.T) {
	_, err := Parse(&Response{Text: "Summary:\n\nInterpretation: b\nRecommendation: c\nSeverity: low"})
	assert.Equal(t, SectionSummary, malformedSection(t, err))
}

func TestParseUnknownSeverity(t *testing.T) {
	_, err := Parse(&Response{Text: "Summary: a\nInterpretation: b\nRecommendation: c\nSeverity: medium"})
	assert.Equal(t, SectionSeverity, malformedSection(t, err))
	assert.Contains(t, err.Error(), "medium")
}

func TestParseEmptyResponse(t *testing.T) {
	_, err := Parse(&Response{Text: "  \n"})
	assert.Equal(t, "", malformedSection(t, err))
	_, err = Parse(nil)
	assert.Error(t, err)
}

func TestParseJSONAnswer(t *testing.T) {
	text := "Here is the analysis:\n```json\n" + `{
  "summary": "TB deaths doubled.",
  "interpretations": [{"text": "Kano drives the rise"}, {"text": "Reporting gaps in 2020"}],
  "top_risks": [{"risk": "TB", "severity": "High"}, {"risk": "Malaria", "severity": "low"}],
  "recommendations": [{"action": "Expand screening", "department": "Health", "rationale": "cases up"}]
}` + "\n```"
	rec, err := Parse(&Response{Text: text})
	require.NoError(t, err)
	assert.Equal(t, "TB deaths doubled.", rec.Summary)
	assert.Equal(t, "- Kano drives the rise\n- Reporting gaps in 2020", rec.Interpretation)
	assert.Equal(t, "Expand screening (Health): cases up", rec.Recommendation)
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.Equal(t, "TB", rec.SeverityNote)
}

func TestParseJSONStillValidated(t *testing.T) {
	_, err := Parse(&Response{Text: `{"summary": "a", "interpretation": "b", "recommendation": "c"}`})
	assert.Equal(t, SectionSeverity, malformedSection(t, err))
}

func TestExtractJSONSkipsInvalidCandidates(t *testing.T) {
	got, err := ExtractJSON(`<think>{draft}</think> noise {not json} then {"a": {"b": "}"}}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": "}"}}`, got)

	_, err = ExtractJSON("no braces here")
	assert.Error(t, err)
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{"LOW": SeverityLow, "Moderate.": SeverityModerate, "**high**": SeverityHigh, "critical:": SeverityCritical} {
		got, ok := ParseSeverity(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseSeverity("severe")
	assert.False(t, ok)
}
