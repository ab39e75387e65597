package insight

import (
	"fmt"
	"strings"
)

const systemMessage = "You are a public health analyst writing for city officials who are not data specialists. " +
	"Base every statement on the aggregated figures provided and say so when the data cannot support a conclusion."

const sectionInstructions = `Reply in plain text with exactly these four labeled sections:
Summary: two or three sentences on the main pattern.
Interpretation: what the figures suggest, with caveats about data quality.
Recommendation: concrete next steps and the department that should own them.
Severity: one word, low, moderate, high or critical, followed by a short reason.
`

const strictInstructions = `Your previous answer could not be parsed. Start each section on its own line with the label exactly as shown,
followed by a colon. Do not add other sections, tables or JSON.
`

func renderPrompt(req *Request, inputRows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", req.Intent)
	b.WriteString(sectionInstructions)
	if req.Strict {
		b.WriteString("\n")
		b.WriteString(strictInstructions)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Categories (%d): %s\n", len(req.Categories), strings.Join(req.Categories, ", "))
	if req.Merged > 0 {
		fmt.Fprintf(&b, "Rows: %d aggregated rows, %d smaller ones merged into %q.\n", inputRows, req.Merged, OtherCategory)
	} else {
		fmt.Fprintf(&b, "Rows: %d aggregated rows.\n", len(req.Rows))
	}
	b.WriteString("\nDATA (category | measure | period | aggregation | value | n):\n")
	for _, r := range req.Rows {
		b.WriteString(renderRow(r))
	}
	return b.String()
}
