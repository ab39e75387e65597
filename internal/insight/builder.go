package insight

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/govai/internal/aggregate"
	"github.com/KaramelBytes/govai/internal/apperrors"
)

const (
	// TemplateVersion is folded into every fingerprint; bump it when the
	// prompt wording changes so stale cache entries are not reused.
	TemplateVersion = "govai-insight-v1"
	DefaultIntent   = "summarize key public-health risks"
	OtherCategory   = "Other"
	AllBuckets      = "all periods"
	AllMeasures     = "all measures"

	DefaultMaxRows        = 200
	DefaultMaxPromptBytes = 48000
)

// Options bounds the rendered request.
type Options struct {
	MaxRows        int
	MaxPromptBytes int
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{MaxRows: DefaultMaxRows, MaxPromptBytes: DefaultMaxPromptBytes}
}

// Builder renders metrics into requests. It is stateless and safe for
// concurrent use.
type Builder struct {
	opt Options
}

// NewBuilder returns a Builder; non-positive limits fall back to defaults.
func NewBuilder(opt Options) *Builder {
	if opt.MaxRows <= 0 {
		opt.MaxRows = DefaultMaxRows
	}
	if opt.MaxPromptBytes <= 0 {
		opt.MaxPromptBytes = DefaultMaxPromptBytes
	}
	return &Builder{opt: opt}
}

// Build renders a request for intent. An empty intent uses DefaultIntent.
func (b *Builder) Build(metrics []aggregate.Metric, intent string) (*Request, error) {
	return b.build(metrics, intent, false)
}

// BuildStrict renders the stricter template used to regenerate after a
// malformed answer. Its fingerprint differs from Build's.
func (b *Builder) BuildStrict(metrics []aggregate.Metric, intent string) (*Request, error) {
	return b.build(metrics, intent, true)
}

func (b *Builder) build(metrics []aggregate.Metric, intent string, strict bool) (*Request, error) {
	if len(metrics) == 0 {
		return nil, apperrors.NewSchemaError(apperrors.StageBuild, "no aggregated rows to describe")
	}
	intent = strings.Join(strings.Fields(intent), " ")
	if intent == "" {
		intent = DefaultIntent
	}

	for _, m := range metrics {
		if n := len(renderRow(m)); n > b.opt.MaxPromptBytes {
			return nil, &apperrors.RequestTooLargeError{RowBytes: n, Limit: b.opt.MaxPromptBytes}
		}
	}

	rows, merged := capRows(metrics, b.opt.MaxRows)
	for limit := len(rows) - 1; rowsBytes(rows) > b.opt.MaxPromptBytes; limit-- {
		if limit < 1 {
			return nil, &apperrors.RequestTooLargeError{RowBytes: rowsBytes(rows), Limit: b.opt.MaxPromptBytes}
		}
		rows, merged = capRows(metrics, limit)
	}
	sort.SliceStable(rows, func(i, j int) bool { return aggregate.Less(rows[i], rows[j]) })

	req := &Request{
		Intent:     intent,
		Categories: categoriesOf(rows),
		Rows:       rows,
		Merged:     merged,
		Strict:     strict,
	}
	fp, err := fingerprint(req)
	if err != nil {
		return nil, err
	}
	req.Fingerprint = fp
	req.System = systemMessage
	req.Prompt = renderPrompt(req, len(metrics))
	return req, nil
}

// byMagnitude orders by |value| descending, then by the natural metric order.
func byMagnitude(a, b aggregate.Metric) bool {
	if x, y := math.Abs(a.Value), math.Abs(b.Value); x != y {
		return x > y
	}
	if aggregate.Less(a, b) != aggregate.Less(b, a) {
		return aggregate.Less(a, b)
	}
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.N < b.N
}

// Fold levels for Other rows, from finest to coarsest. Coarser levels are
// only used when the finer one cannot fit within the row cap.
type foldLevel int

const (
	foldByBucket foldLevel = iota
	foldByMeasure
	foldByKind
)

type otherKey struct {
	measure string
	bucket  string
	kind    aggregate.Kind
}

// capRows keeps the largest rows and folds the rest into Other rows so the
// result has at most limit rows. The remainder is folded per (measure,
// bucket, aggregation) when that fits, then per (measure, aggregation)
// across buckets, then per aggregation across measures. No metric is ever
// dropped. It also reports how many input metrics were merged.
func capRows(metrics []aggregate.Metric, limit int) ([]aggregate.Metric, int) {
	sorted := make([]aggregate.Metric, len(metrics))
	copy(sorted, metrics)
	sort.SliceStable(sorted, func(i, j int) bool { return byMagnitude(sorted[i], sorted[j]) })
	if len(sorted) <= limit {
		return sorted, 0
	}
	for _, level := range []foldLevel{foldByBucket, foldByMeasure, foldByKind} {
		for keep := limit - 1; keep >= 0; keep-- {
			others := mergeOthers(sorted[keep:], level)
			if keep+len(others) <= limit {
				return append(sorted[:keep:keep], others...), len(sorted) - keep
			}
		}
	}
	// Only reachable when limit is below the number of aggregation kinds.
	return mergeOthers(sorted, foldByKind), len(sorted)
}

func mergeOthers(rest []aggregate.Metric, level foldLevel) []aggregate.Metric {
	groups := map[otherKey]aggregate.Metric{}
	var order []otherKey
	for _, m := range rest {
		k := otherKey{m.Measure, m.Bucket, m.Aggregation}
		if level >= foldByMeasure {
			k.bucket = AllBuckets
		}
		if level >= foldByKind {
			k.measure = AllMeasures
		}
		g, ok := groups[k]
		if !ok {
			g = aggregate.Metric{Category: OtherCategory, Measure: k.measure, Bucket: k.bucket, Aggregation: k.kind}
			order = append(order, k)
		}
		groups[k] = g.Merge(m)
	}
	out := make([]aggregate.Metric, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

func categoriesOf(rows []aggregate.Metric) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	sort.Strings(out)
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func renderRow(m aggregate.Metric) string {
	bucket := m.Bucket
	if bucket == "" {
		bucket = "-"
	}
	return fmt.Sprintf("%s | %s | %s | %s | %s | %d\n", m.Category, m.Measure, bucket, m.Aggregation, formatValue(m.Value), m.N)
}

func rowsBytes(rows []aggregate.Metric) int {
	n := 0
	for _, r := range rows {
		n += len(renderRow(r))
	}
	return n
}

type fingerprintInput struct {
	Template   string             `json:"template"`
	Strict     bool               `json:"strict"`
	Intent     string             `json:"intent"`
	Categories []string           `json:"categories"`
	Rows       []aggregate.Metric `json:"rows"`
}

// fingerprint hashes the canonical JSON of everything that shapes the
// answer. Rows and categories are already sorted.
func fingerprint(req *Request) (string, error) {
	b, err := json.Marshal(fingerprintInput{
		Template:   TemplateVersion,
		Strict:     req.Strict,
		Intent:     req.Intent,
		Categories: req.Categories,
		Rows:       req.Rows,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
