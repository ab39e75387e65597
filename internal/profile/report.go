package profile

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/KaramelBytes/govai/internal/dataset"
)

// ReportOptions controls the descriptive report.
type ReportOptions struct {
	// SampleRows determines how many example rows to include.
	SampleRows int
	// TopValues caps the categorical values listed per column.
	TopValues int
	// OutlierThreshold is the robust |z| (MAD based) above which a numeric
	// value counts as an outlier. 0 disables outlier counting.
	OutlierThreshold float64
}

// DefaultReportOptions returns reasonable defaults for dataset reports.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{SampleRows: 5, TopValues: 8, OutlierThreshold: 3.5}
}

// Report is a markdown-friendly description of a profiled dataset.
type Report struct {
	Name     string          `json:"name"`
	Rows     int             `json:"rows"`
	Cols     []ColumnSummary `json:"columns"`
	Samples  [][]string      `json:"samples,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ColumnSummary captures the inferred role and statistics per column.
type ColumnSummary struct {
	Name       string  `json:"name"`
	Unit       string  `json:"unit,omitempty"`
	Role       Role    `json:"role"`
	Confidence float64 `json:"confidence"`
	NonNull    int     `json:"non_null"`
	Missing    int     `json:"missing"`
	Unique     int     `json:"unique"`
	// Numeric stats
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mean float64 `json:"mean,omitempty"`
	Std  float64 `json:"std,omitempty"`
	// Outliers (robust Z via MAD)
	OutliersCount    int     `json:"outliers,omitempty"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`
	// Categorical top values
	TopValues    []CategoryCount `json:"top_values,omitempty"`
	ExampleTexts []string        `json:"examples,omitempty"`
}

// CategoryCount is one categorical value and its frequency.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// BuildReport summarizes ds using the roles in ps.
func BuildReport(ds *dataset.Dataset, ps map[string]ColumnProfile, opt ReportOptions) *Report {
	if opt.SampleRows < 0 {
		opt.SampleRows = 0
	}
	if opt.TopValues <= 0 {
		opt.TopValues = 8
	}
	rep := &Report{Name: ds.Name(), Rows: ds.Len()}
	rows := ds.Rows()
	for i := 0; i < len(rows) && i < opt.SampleRows; i++ {
		rep.Samples = append(rep.Samples, rows[i])
	}
	for _, name := range ds.Columns() {
		values, _ := ds.Column(name)
		p := ps[name]
		rep.Cols = append(rep.Cols, summarize(name, values, p, opt))
		if p.Role == RoleIdentifier || p.Sampled == 0 {
			continue
		}
		if p.Missing > 0 && p.Missing*2 > ds.Len() {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s is missing in %d of %d rows", name, p.Missing, ds.Len()))
		}
		if p.Confidence < 0.9 && (p.Role == RoleNumeric || p.Role == RoleTemporal) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s: only %.0f%% of sampled values parse as %s", name, p.Confidence*100, p.Role))
		}
	}
	return rep
}

func summarize(name string, values []string, p ColumnProfile, opt ReportOptions) ColumnSummary {
	clean, unit := splitUnits(name)
	s := ColumnSummary{Name: clean, Unit: unit, Role: p.Role, Confidence: p.Confidence, Missing: p.Missing, Unique: p.Distinct}
	var (
		n         int
		mean, m2  float64
		lo, hi    = math.Inf(1), math.Inf(-1)
		nums      []float64
		cats      = map[string]int{}
		exText    []string
		isNumeric = p.Role == RoleNumeric
	)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		s.NonNull++
		if isNumeric {
			x, ok := dataset.ParseNumber(v)
			if !ok {
				continue
			}
			// Welford update
			n++
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
			delta := x - mean
			mean += delta / float64(n)
			m2 += delta * (x - mean)
			nums = append(nums, x)
			continue
		}
		if p.Role == RoleCategorical && len(cats) <= 10000 {
			cats[v]++
		}
		if p.Role == RoleFreeText && len(exText) < 3 {
			exText = append(exText, v)
		}
	}
	if isNumeric && n > 0 {
		s.Min, s.Max, s.Mean = lo, hi, mean
		if n > 1 {
			s.Std = math.Sqrt(m2 / float64(n-1))
		}
		if opt.OutlierThreshold > 0 && len(nums) >= 8 {
			median, mad := medianMAD(nums)
			s.OutlierThreshold = opt.OutlierThreshold
			if mad > 0 {
				for _, v := range nums {
					az := math.Abs(0.6745 * (v - median) / mad)
					if az > opt.OutlierThreshold {
						s.OutliersCount++
					}
					s.OutliersMaxAbsZ = math.Max(s.OutliersMaxAbsZ, az)
				}
			}
		}
	}
	if len(cats) > 0 {
		tops := make([]CategoryCount, 0, len(cats))
		for k, v := range cats {
			tops = append(tops, CategoryCount{Value: k, Count: v})
		}
		sort.Slice(tops, func(i, j int) bool {
			if tops[i].Count == tops[j].Count {
				return tops[i].Value < tops[j].Value
			}
			return tops[i].Count > tops[j].Count
		})
		if len(tops) > opt.TopValues {
			tops = tops[:opt.TopValues]
		}
		s.TopValues = tops
	}
	s.ExampleTexts = exText
	return s
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		name := safeName(c.Name)
		if c.Unit != "" {
			name = fmt.Sprintf("%s [%s]", name, c.Unit)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (confidence %.2f, non-null %d, missing %.1f%%)", name, c.Role, c.Confidence, c.NonNull, missPct))
		switch c.Role {
		case RoleNumeric:
			b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
			}
		case RoleCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(": top ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case RoleFreeText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(": e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

var unitPatterns = []struct {
	re   *regexp.Regexp
	pick int
}{
	{regexp.MustCompile(`^(.*)\s*\(([^)]+)\)\s*$`), 2},  // e.g., Rate (%)
	{regexp.MustCompile(`^(.*)\s*\[([^\]]+)\]\s*$`), 2}, // e.g., Deaths [per 1000]
	{regexp.MustCompile(`^(.*?)[_\s-]+(%|per 1000|per 100k|ppm)$`), 2},
}

// splitUnits separates a trailing unit from a header such as "Rate (%)".
func splitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, p := range unitPatterns {
		if m := p.re.FindStringSubmatch(s); len(m) >= 3 {
			base := strings.TrimSpace(m[1])
			u := strings.TrimSpace(m[p.pick])
			if base != "" && u != "" {
				return base, u
			}
		}
	}
	return s, ""
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
