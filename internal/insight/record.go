package insight

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the risk level the service assigns to an insight.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity maps a word to a Severity, ignoring case and surrounding
// punctuation.
func ParseSeverity(word string) (Severity, bool) {
	w := strings.ToLower(strings.Trim(word, " \t*_`'\".,;:!()[]"))
	s := Severity(w)
	if _, ok := severityRank[s]; ok {
		return s, true
	}
	return "", false
}

// Record is one structured insight. Records are never modified after
// Parse returns them.
type Record struct {
	ID             string    `json:"id"`
	Summary        string    `json:"summary"`
	Interpretation string    `json:"interpretation"`
	Recommendation string    `json:"recommendation"`
	Severity       Severity  `json:"severity"`
	SeverityNote   string    `json:"severity_note,omitempty"`
	Fingerprint    string    `json:"fingerprint"`
	Model          string    `json:"model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Markdown renders the record for reports.
func (r *Record) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Severity: %s\n\n", strings.ToUpper(string(r.Severity)))
	if r.SeverityNote != "" {
		fmt.Fprintf(&b, "_%s_\n\n", r.SeverityNote)
	}
	fmt.Fprintf(&b, "**Summary**\n\n%s\n\n", r.Summary)
	fmt.Fprintf(&b, "**Interpretation**\n\n%s\n\n", r.Interpretation)
	fmt.Fprintf(&b, "**Recommendation**\n\n%s\n", r.Recommendation)
	return b.String()
}
