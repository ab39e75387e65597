// Package dataset holds the in-memory rectangular table the pipeline works
// on, plus loaders for CSV/TSV, XLSX and SQL sources.
package dataset

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/govai/internal/apperrors"
)

// Record is one row keyed by column name. Missing cells are "".
type Record map[string]string

// Dataset is an immutable table with a header row. Accessors return copies.
type Dataset struct {
	name   string
	header []string
	index  map[string]int
	rows   [][]string
}

// New builds a Dataset from a header and rows. Rows shorter than the header
// are padded with "", longer rows are truncated. Blank or duplicate header
// names are replaced with "column_N" / "name_N". Inputs are copied.
func New(name string, header []string, rows [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, apperrors.NewSchemaError(apperrors.StageIngest, "%s: header row is empty", displayName(name))
	}
	d := &Dataset{name: name, header: make([]string, len(header)), index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		base := h
		for n := 2; ; n++ {
			if _, dup := d.index[h]; !dup {
				break
			}
			h = fmt.Sprintf("%s_%d", base, n)
		}
		d.header[i] = h
		d.index[h] = i
	}
	d.rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, len(header))
		copy(row, r)
		d.rows = append(d.rows, row)
	}
	return d, nil
}

func displayName(name string) string {
	if name == "" {
		return "dataset"
	}
	return name
}

// Name is the source name (usually the file base name).
func (d *Dataset) Name() string { return d.name }

// Columns returns the header.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.header))
	copy(out, d.header)
	return out
}

// Len is the number of data rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Width is the number of columns.
func (d *Dataset) Width() int { return len(d.header) }

// HasColumn reports whether name is a column, matching case-insensitively.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.lookup(name)
	return ok
}

// ColumnName resolves name case-insensitively to the stored header.
func (d *Dataset) ColumnName(name string) (string, error) {
	i, ok := d.lookup(name)
	if !ok {
		return "", apperrors.NewSchemaError(apperrors.StageIngest, "%s: no column named %q (have %s)", displayName(d.name), name, strings.Join(d.header, ", "))
	}
	return d.header[i], nil
}

func (d *Dataset) lookup(name string) (int, bool) {
	if i, ok := d.index[name]; ok {
		return i, true
	}
	want := strings.TrimSpace(name)
	for i, h := range d.header {
		if strings.EqualFold(h, want) {
			return i, true
		}
	}
	return 0, false
}

// Column returns every cell of the named column in row order.
func (d *Dataset) Column(name string) ([]string, error) {
	i, ok := d.lookup(name)
	if !ok {
		_, err := d.ColumnName(name)
		return nil, err
	}
	out := make([]string, len(d.rows))
	for r, row := range d.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Row returns row i as a Record.
func (d *Dataset) Row(i int) Record {
	rec := make(Record, len(d.header))
	for j, h := range d.header {
		rec[h] = d.rows[i][j]
	}
	return rec
}

// Records returns every row as a Record.
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.rows))
	for i := range d.rows {
		out[i] = d.Row(i)
	}
	return out
}

// Rows returns a deep copy of the raw rows in header order.
func (d *Dataset) Rows() [][]string {
	out := make([][]string, len(d.rows))
	for i, r := range d.rows {
		row := make([]string, len(r))
		copy(row, r)
		out[i] = row
	}
	return out
}

// WithColumn returns a new Dataset where the named column is replaced by
// values (one per row). The receiver is left untouched.
func (d *Dataset) WithColumn(name string, values []string) (*Dataset, error) {
	i, ok := d.lookup(name)
	if !ok {
		_, err := d.ColumnName(name)
		return nil, err
	}
	if len(values) != len(d.rows) {
		return nil, fmt.Errorf("column %q: got %d values for %d rows", name, len(values), len(d.rows))
	}
	rows := d.Rows()
	for r := range rows {
		rows[r][i] = values[r]
	}
	return New(d.name, d.header, rows)
}
