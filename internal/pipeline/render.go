package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Markdown renders the result as a standalone report.
func (r *Result) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Insights: %s\n\n", r.Dataset)
	fmt.Fprintf(&b, "Session `%s`, %d rows, categories from `%s`.\n\n", r.SessionID, r.Rows, r.CategoryColumn)

	for i, in := range r.Insights {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, in.Intent)
		if in.Record != nil {
			b.WriteString(in.Record.Markdown())
		}
		b.WriteString("\n")
	}

	b.WriteString("## Categories\n\n| Label | Variants |\n|---|---|\n")
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "| %s | %s |\n", cell(c.Label), cell(strings.Join(c.Values(), ", ")))
	}

	b.WriteString("\n## Metrics\n\n| Category | Measure | Period | Aggregation | Value | N |\n|---|---|---|---|---:|---:|\n")
	for _, m := range r.Metrics {
		period := m.Bucket
		if period == "" {
			period = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %d |\n",
			cell(m.Category), cell(m.Measure), period, m.Aggregation,
			strconv.FormatFloat(m.Value, 'f', -1, 64), m.N)
	}

	if len(r.Notes) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, n := range r.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return b.String()
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/")
}
