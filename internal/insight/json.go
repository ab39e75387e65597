package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches reasoning blocks some models emit before the answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ExtractJSON returns the first balanced, valid JSON object in response,
// skipping <think> blocks and markdown fences.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	for start := strings.IndexByte(cleaned, '{'); start >= 0; {
		if obj, ok := balancedObject(cleaned[start:]); ok && json.Valid([]byte(obj)) {
			return obj, nil
		}
		next := strings.IndexByte(cleaned[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", errors.New("no valid JSON object found in response")
}

// balancedObject returns the prefix of s up to the brace closing s[0].
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// jsonSections reads the four fields from a JSON answer. Plural keys and
// lists of objects ({"text": ...}, {"action": ..., "rationale": ...}) are
// flattened to text. A missing severity is taken from the worst entry in
// "top_risks". ok is false when no known field is present.
func jsonSections(text string) (map[string]string, bool) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, false
	}
	out := map[string]string{}
	for k, v := range obj {
		name := canonicalSection(strings.TrimSpace(k))
		switch name {
		case SectionSummary, SectionInterpretation, SectionRecommendation, SectionSeverity:
			out[name] = flattenJSON(v)
		}
	}
	if _, ok := out[SectionSeverity]; !ok {
		if risks, ok := obj["top_risks"]; ok {
			if sev := worstRisk(risks); sev != "" {
				out[SectionSeverity] = sev
			}
		}
	}
	return out, len(out) > 0
}

func flattenJSON(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err == nil {
		var lines []string
		for _, it := range items {
			if line := flattenItem(it); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 1 {
			return lines[0]
		}
		for i := range lines {
			lines[i] = "- " + lines[i]
		}
		return strings.Join(lines, "\n")
	}
	var obj map[string]any
	if err := json.Unmarshal(v, &obj); err == nil {
		return describeObject(obj)
	}
	return strings.Trim(strings.TrimSpace(string(v)), `"`)
}

func flattenItem(it json.RawMessage) string {
	var s string
	if err := json.Unmarshal(it, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(it, &obj); err == nil {
		return describeObject(obj)
	}
	return ""
}

func describeObject(obj map[string]any) string {
	str := func(k string) string {
		if v, ok := obj[k].(string); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}
	head := ""
	for _, k := range []string{"text", "action", "risk", "summary"} {
		if head = str(k); head != "" {
			break
		}
	}
	if head == "" {
		return ""
	}
	if d := str("department"); d != "" {
		head = fmt.Sprintf("%s (%s)", head, d)
	}
	for _, k := range []string{"rationale", "reason"} {
		if r := str(k); r != "" {
			return head + ": " + r
		}
	}
	return head
}

// worstRisk renders the highest severity among risk entries as
// "<level> <risk>".
func worstRisk(v json.RawMessage) string {
	var risks []map[string]any
	if err := json.Unmarshal(v, &risks); err != nil {
		return ""
	}
	best, bestRisk := Severity(""), ""
	for _, r := range risks {
		s, _ := r["severity"].(string)
		sev, ok := ParseSeverity(s)
		if !ok || severityRank[sev] <= severityRank[best] {
			continue
		}
		best = sev
		bestRisk, _ = r["risk"].(string)
	}
	if best == "" {
		return ""
	}
	return strings.TrimSpace(string(best) + " " + bestRisk)
}
