// Package aggregate turns a normalized dataset into (category, measure,
// time bucket) metrics.
package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/normalize"
)

// Kind is the aggregation applied to a measure.
type Kind string

const (
	Sum   Kind = "sum"
	Mean  Kind = "mean"
	Count Kind = "count"
)

// ParseKind accepts sum, mean/avg/average and count.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sum", "total":
		return Sum, nil
	case "mean", "avg", "average":
		return Mean, nil
	case "count", "n":
		return Count, nil
	}
	return "", fmt.Errorf("unknown aggregation %q (want sum, mean or count)", s)
}

// Granularity of time buckets.
type Granularity string

const (
	ByYear  Granularity = "year"
	ByMonth Granularity = "month"
	ByDay   Granularity = "day"
)

// ParseGranularity accepts year, month and day; "" means year.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "year", "yearly":
		return ByYear, nil
	case "month", "monthly":
		return ByMonth, nil
	case "day", "daily":
		return ByDay, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want year, month or day)", s)
}

// RowsMeasure names the measure produced by counting rows when no measure
// column is given.
const RowsMeasure = "rows"

// UnknownBucket holds rows whose time cell cannot be parsed.
const UnknownBucket = "unknown"

// Metric is one aggregated value. Sum and N are kept so metrics can be
// merged exactly.
type Metric struct {
	Category    string  `json:"category"`
	Measure     string  `json:"measure"`
	Bucket      string  `json:"bucket,omitempty"`
	Aggregation Kind    `json:"aggregation"`
	Value       float64 `json:"value"`
	Sum         float64 `json:"sum"`
	N           int     `json:"n"`
}

// Merge combines two metrics of the same measure and aggregation. The
// result keeps m's category and bucket.
func (m Metric) Merge(o Metric) Metric {
	out := m
	out.Sum += o.Sum
	out.N += o.N
	out.Value = valueOf(out.Aggregation, out.Sum, out.N)
	return out
}

func valueOf(k Kind, sum float64, n int) float64 {
	switch k {
	case Mean:
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	case Count:
		return float64(n)
	default:
		return sum
	}
}

// Less orders metrics by (category, measure, bucket).
func Less(a, b Metric) bool {
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	if a.Measure != b.Measure {
		return a.Measure < b.Measure
	}
	if a.Bucket != b.Bucket {
		return a.Bucket < b.Bucket
	}
	return a.Aggregation < b.Aggregation
}

// Spec describes what to aggregate.
type Spec struct {
	CategoryColumn string
	// Measures are numeric columns. Empty means count rows per category.
	Measures    []string
	Aggregation Kind
	// TimeColumn is optional; when set rows are bucketed by Granularity.
	TimeColumn  string
	Granularity Granularity
	// Lenient extracts the first number from dirty cells ("approx. 12").
	Lenient bool
}

// Result holds the metrics sorted by (category, measure, bucket) and
// notes about skipped cells.
type Result struct {
	Metrics []Metric `json:"metrics"`
	Dropped int      `json:"dropped"`
	Notes   []string `json:"notes,omitempty"`
}

type groupKey struct{ category, measure, bucket string }

// Compute aggregates ds. Category cells are resolved through mapping; a
// nil mapping uses the trimmed raw value. A category cell missing from a
// non-nil mapping is a SchemaError and nothing is returned.
func Compute(ds *dataset.Dataset, mapping normalize.Mapping, spec Spec) (*Result, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, apperrors.NewSchemaError(apperrors.StageAggregate, "nothing to aggregate: dataset has no rows")
	}
	kind := spec.Aggregation
	if kind == "" {
		kind = Sum
	}
	catCol, err := ds.ColumnName(spec.CategoryColumn)
	if err != nil {
		return nil, err
	}
	cats, _ := ds.Column(catCol)

	var times []string
	if spec.TimeColumn != "" {
		tc, err := ds.ColumnName(spec.TimeColumn)
		if err != nil {
			return nil, err
		}
		times, _ = ds.Column(tc)
	}

	type measureCol struct {
		name   string
		values []string
	}
	var measures []measureCol
	for _, m := range spec.Measures {
		name, err := ds.ColumnName(m)
		if err != nil {
			return nil, err
		}
		values, _ := ds.Column(name)
		measures = append(measures, measureCol{name: name, values: values})
	}

	parse := dataset.ParseNumber
	if spec.Lenient {
		parse = dataset.ExtractNumber
	}

	acc := map[groupKey]*Metric{}
	add := func(k groupKey, x float64) {
		m := acc[k]
		if m == nil {
			m = &Metric{Category: k.category, Measure: k.measure, Bucket: k.bucket, Aggregation: kind}
			acc[k] = m
		}
		m.Sum += x
		m.N++
	}

	res := &Result{}
	dropped := map[string]int{}
	unknownTimes := 0
	for i, raw := range cats {
		label := strings.TrimSpace(raw)
		if mapping != nil {
			c, ok := mapping[raw]
			if !ok {
				return nil, apperrors.NewSchemaError(apperrors.StageAggregate, "row %d: category %q was not normalized", i+1, raw)
			}
			label = c.Label
		} else if label == "" {
			label = normalize.UnspecifiedLabel
		}
		bucket := ""
		if times != nil {
			bucket = bucketOf(times[i], spec.Granularity)
			if bucket == UnknownBucket {
				unknownTimes++
			}
		}
		if len(measures) == 0 {
			add(groupKey{label, RowsMeasure, bucket}, 1)
			continue
		}
		for _, mc := range measures {
			x, ok := parse(mc.values[i])
			if !ok {
				dropped[mc.name]++
				res.Dropped++
				continue
			}
			add(groupKey{label, mc.name, bucket}, x)
		}
	}

	if len(measures) == 0 {
		kind = Count
	}
	res.Metrics = make([]Metric, 0, len(acc))
	for _, m := range acc {
		m.Aggregation = kind
		m.Value = valueOf(kind, m.Sum, m.N)
		res.Metrics = append(res.Metrics, *m)
	}
	sort.Slice(res.Metrics, func(i, j int) bool { return Less(res.Metrics[i], res.Metrics[j]) })

	names := make([]string, 0, len(dropped))
	for n := range dropped {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		res.Notes = append(res.Notes, fmt.Sprintf("%s: skipped %d non-numeric cell(s)", n, dropped[n]))
	}
	if unknownTimes > 0 {
		res.Notes = append(res.Notes, fmt.Sprintf("%s: %d row(s) with unparsable dates bucketed as %q", spec.TimeColumn, unknownTimes, UnknownBucket))
	}
	return res, nil
}

// bucketOf maps a time cell to its bucket label. Bare years and fiscal
// periods ("2014-15") are kept verbatim at every granularity.
func bucketOf(cell string, g Granularity) string {
	cell = strings.TrimSpace(cell)
	if p, ok := dataset.FiscalYear(cell); ok {
		return p
	}
	if len(cell) == 4 {
		if y, err := strconv.Atoi(cell); err == nil && y > 1000 {
			return cell
		}
	}
	t, ok := dataset.ParseTime(cell)
	if !ok {
		return UnknownBucket
	}
	switch g {
	case ByMonth:
		return t.Format("2006-01")
	case ByDay:
		return t.Format("2006-01-02")
	default:
		return t.Format("2006")
	}
}
