package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/dataset"
)

var (
	separators = regexp.MustCompile(`[-_]+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// CleanLabel tidies a label for display: trims, turns '-' and '_' into
// spaces, collapses whitespace and title-cases each word.
// "  port_harcourt " becomes "Port Harcourt".
func CleanLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = separators.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	words := strings.Split(s, " ")
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// ApplyOptions controls Apply.
type ApplyOptions struct {
	// CleanLabels runs CleanLabel over each canonical label written.
	CleanLabels bool
}

// Apply rewrites column of ds to canonical labels from mapping and
// returns a new dataset. Every cell value must be present in mapping,
// otherwise nothing is rewritten and a SchemaError is returned.
func Apply(ds *dataset.Dataset, column string, mapping Mapping, opt ApplyOptions) (*dataset.Dataset, error) {
	values, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		c, ok := mapping[v]
		if !ok {
			return nil, apperrors.NewSchemaError(apperrors.StageNormalize, "column %q row %d: value %q has no category", column, i+1, v)
		}
		label := c.Label
		if opt.CleanLabels {
			label = CleanLabel(label)
		}
		out[i] = label
	}
	return ds.WithColumn(column, out)
}

// NormalizeColumn normalizes every value of column against existing and
// returns the mapping and the extended set.
func (n *Normalizer) NormalizeColumn(ds *dataset.Dataset, column string, existing *Set) (Mapping, *Set, error) {
	values, err := ds.Column(column)
	if err != nil {
		return nil, nil, err
	}
	return n.Normalize(values, existing)
}
