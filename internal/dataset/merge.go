package dataset

import (
	"github.com/KaramelBytes/govai/internal/apperrors"
)

// Merge appends datasets row-wise under the union of their headers, in
// first-seen column order. Columns absent from a source are "". When
// sourceColumn is non-empty a column with each row's dataset name is added.
func Merge(name, sourceColumn string, parts ...*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, apperrors.NewSchemaError(apperrors.StageIngest, "nothing to merge")
	}
	var header []string
	pos := map[string]int{}
	add := func(h string) {
		if _, ok := pos[h]; !ok {
			pos[h] = len(header)
			header = append(header, h)
		}
	}
	for _, p := range parts {
		for _, h := range p.header {
			add(h)
		}
	}
	if sourceColumn != "" {
		add(sourceColumn)
	}
	total := 0
	for _, p := range parts {
		total += len(p.rows)
	}
	rows := make([][]string, 0, total)
	for _, p := range parts {
		for _, r := range p.rows {
			row := make([]string, len(header))
			for j, h := range p.header {
				row[pos[h]] = r[j]
			}
			if sourceColumn != "" {
				row[pos[sourceColumn]] = p.name
			}
			rows = append(rows, row)
		}
	}
	return New(name, header, rows)
}
