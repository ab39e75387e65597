package insight

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/google/uuid"
)

// Section names in the order they are validated.
const (
	SectionSummary        = "summary"
	SectionInterpretation = "interpretation"
	SectionRecommendation = "recommendation"
	SectionSeverity       = "severity"
)

var sectionOrder = []string{SectionSummary, SectionInterpretation, SectionRecommendation, SectionSeverity}

// headerPattern matches a section label line such as "Summary:",
// "## Interpretations", "**Recommendation:** text" or "- Severity: High".
var headerPattern = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?(?:(?:[-*+]|\d+[.)])\s+)?(?:\*\*|__)?\s*(summary|interpretations?|recommendations?|severity)\s*(?:\*\*|__)?\s*(?::\s*(?:\*\*|__)?\s*(.*))?$`)

// Parse validates the four-section answer in resp and returns a new Record.
// Text that carries a JSON object with the same fields is accepted too.
// Any missing or empty section, or an unknown severity, yields a
// MalformedInsightError naming the section.
func Parse(resp *Response) (*Record, error) {
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, &apperrors.MalformedInsightError{Reason: "empty response"}
	}
	rec, err := fromSections(labeledSections(resp.Text))
	if err != nil {
		if obj, ok := jsonSections(resp.Text); ok {
			rec, err = fromSections(obj)
		}
	}
	if err != nil {
		return nil, err
	}
	rec.ID = uuid.NewString()
	rec.Fingerprint = resp.Fingerprint
	rec.Model = resp.Model
	rec.CreatedAt = time.Now().UTC()
	return rec, nil
}

func canonicalSection(label string) string {
	return strings.TrimSuffix(strings.ToLower(label), "s")
}

// labeledSections splits text on label lines. The first occurrence of a
// label wins; a repeated label's body is dropped.
func labeledSections(text string) map[string]string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	bodies := map[string][]string{}
	current := ""
	for _, line := range lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			name := canonicalSection(m[1])
			if _, seen := bodies[name]; seen {
				current = ""
				continue
			}
			current = name
			bodies[name] = nil
			if rest := strings.TrimSpace(m[2]); rest != "" {
				bodies[name] = append(bodies[name], rest)
			}
			continue
		}
		if current != "" {
			bodies[current] = append(bodies[current], line)
		}
	}
	out := make(map[string]string, len(bodies))
	for name, body := range bodies {
		out[name] = tidyBody(body)
	}
	return out
}

// tidyBody trims each line and collapses runs of blank lines.
func tidyBody(lines []string) string {
	var out []string
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func fromSections(sec map[string]string) (*Record, error) {
	for _, name := range sectionOrder {
		body, ok := sec[name]
		if !ok {
			return nil, &apperrors.MalformedInsightError{Section: name, Reason: "is missing"}
		}
		if strings.TrimSpace(body) == "" {
			return nil, &apperrors.MalformedInsightError{Section: name, Reason: "is empty"}
		}
	}
	sevText := strings.TrimSpace(sec[SectionSeverity])
	word := strings.Fields(sevText)[0]
	note := strings.TrimPrefix(sevText, word)
	sev, ok := ParseSeverity(word)
	if !ok {
		return nil, &apperrors.MalformedInsightError{
			Section: SectionSeverity,
			Reason:  fmt.Sprintf("has unknown level %q (want low, moderate, high or critical)", word),
		}
	}
	return &Record{
		Summary:        sec[SectionSummary],
		Interpretation: sec[SectionInterpretation],
		Recommendation: sec[SectionRecommendation],
		Severity:       sev,
		SeverityNote:   strings.TrimSpace(strings.TrimLeft(note, " -:,.;–—")),
	}, nil
}
