package insight

import (
	"errors"
	"fmt"
	"testing"

	"github.com/KaramelBytes/govai/internal/aggregate"
	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumRows(n int) []aggregate.Metric {
	out := make([]aggregate.Metric, n)
	for i := range out {
		v := float64(i + 1)
		out[i] = aggregate.Metric{Category: fmt.Sprintf("c%d", i+1), Measure: "Deaths", Aggregation: aggregate.Sum, Value: v, Sum: v, N: 1}
	}
	return out
}

func TestFingerprintIgnoresRowOrder(t *testing.T) {
	b := NewBuilder(DefaultOptions())
	rows := sumRows(6)
	reversed := make([]aggregate.Metric, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}

	r1, err := b.Build(rows, "compare wards")
	require.NoError(t, err)
	r2, err := b.Build(reversed, "  compare   wards ")
	require.NoError(t, err)
	assert.Equal(t, r1.Fingerprint, r2.Fingerprint)
	assert.Equal(t, r1.Prompt, r2.Prompt)
	assert.Len(t, r1.Fingerprint, 64)

	r3, err := b.Build(rows, "compare districts")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Fingerprint, r3.Fingerprint)
}

func TestBuildDefaultIntentAndStrict(t *testing.T) {
	b := NewBuilder(DefaultOptions())
	rows := sumRows(2)
	r1, err := b.Build(rows, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultIntent, r1.Intent)
	r2, err := b.Build(rows, DefaultIntent)
	require.NoError(t, err)
	assert.Equal(t, r1.Fingerprint, r2.Fingerprint)

	strict, err := b.BuildStrict(rows, "")
	require.NoError(t, err)
	assert.True(t, strict.Strict)
	assert.NotEqual(t, r1.Fingerprint, strict.Fingerprint)
	assert.Contains(t, strict.Prompt, "could not be parsed")
	assert.NotContains(t, r1.Prompt, "could not be parsed")
	assert.NotEmpty(t, r1.System)
}

func TestBuildSingleMetric(t *testing.T) {
	m := aggregate.Metric{Category: "TB", Measure: "Deaths", Aggregation: aggregate.Sum, Value: 15, Sum: 15, N: 2}
	req, err := NewBuilder(DefaultOptions()).Build([]aggregate.Metric{m}, "")
	require.NoError(t, err)
	assert.Equal(t, []aggregate.Metric{m}, req.Rows)
	assert.Equal(t, []string{"TB"}, req.Categories)
	assert.Zero(t, req.Merged)
	assert.Contains(t, req.Prompt, "TB | Deaths | - | sum | 15 | 2\n")
}

func TestBuildMergesOverflowIntoOther(t *testing.T) {
	b := NewBuilder(Options{MaxRows: 4})
	req, err := b.Build(sumRows(10), "")
	require.NoError(t, err)
	require.Len(t, req.Rows, 4)
	assert.Equal(t, 7, req.Merged)

	var other aggregate.Metric
	var kept []string
	for _, r := range req.Rows {
		if r.Category == OtherCategory {
			other = r
			continue
		}
		kept = append(kept, r.Category)
	}
	assert.ElementsMatch(t, []string{"c10", "c9", "c8"}, kept)
	assert.Equal(t, 28.0, other.Value)
	assert.Equal(t, 7, other.N)
	assert.Contains(t, req.Categories, OtherCategory)
}

func TestBuildMergesMeansExactly(t *testing.T) {
	rows := []aggregate.Metric{
		{Category: "A", Measure: "Rate", Aggregation: aggregate.Mean, Sum: 900, N: 3, Value: 300},
		{Category: "B", Measure: "Rate", Aggregation: aggregate.Mean, Sum: 10, N: 1, Value: 10},
		{Category: "C", Measure: "Rate", Aggregation: aggregate.Mean, Sum: 30, N: 5, Value: 6},
	}
	req, err := NewBuilder(Options{MaxRows: 2}).Build(rows, "")
	require.NoError(t, err)
	require.Len(t, req.Rows, 2)
	for _, r := range req.Rows {
		if r.Category == OtherCategory {
			assert.Equal(t, 40.0, r.Sum)
			assert.Equal(t, 6, r.N)
			assert.InDelta(t, 40.0/6, r.Value, 1e-9)
		}
	}
}

func TestBuildFoldsAcrossBucketsWithoutLosingRows(t *testing.T) {
	var rows []aggregate.Metric
	for _, c := range []string{"A", "B", "C"} {
		for _, y := range []string{"2001", "2002", "2003"} {
			rows = append(rows, aggregate.Metric{Category: c, Measure: "Deaths", Bucket: y, Aggregation: aggregate.Sum, Value: 10, Sum: 10, N: 1})
		}
	}
	req, err := NewBuilder(Options{MaxRows: 2}).Build(rows, "")
	require.NoError(t, err)
	require.Len(t, req.Rows, 2)
	assert.Equal(t, 8, req.Merged)

	var total float64
	var n int
	for _, r := range req.Rows {
		total += r.Sum
		n += r.N
		if r.Category == OtherCategory {
			assert.Equal(t, AllBuckets, r.Bucket)
			assert.Equal(t, "Deaths", r.Measure)
			assert.Equal(t, 80.0, r.Value)
		}
	}
	assert.Equal(t, 90.0, total)
	assert.Equal(t, 9, n)
	assert.Contains(t, req.Prompt, "8 smaller ones merged")
}

func TestBuildFoldsAcrossMeasuresAsLastResort(t *testing.T) {
	var rows []aggregate.Metric
	for i, measure := range []string{"Deaths", "Cases", "Admissions"} {
		for _, c := range []string{"A", "B"} {
			v := float64(i + 1)
			rows = append(rows, aggregate.Metric{Category: c, Measure: measure, Aggregation: aggregate.Sum, Value: v, Sum: v, N: 1})
		}
	}
	req, err := NewBuilder(Options{MaxRows: 2}).Build(rows, "")
	require.NoError(t, err)
	require.Len(t, req.Rows, 2)

	var total float64
	for _, r := range req.Rows {
		total += r.Sum
		if r.Category == OtherCategory {
			assert.Equal(t, AllMeasures, r.Measure)
		}
	}
	assert.Equal(t, 12.0, total)
}

func TestBuildShrinksToFitPromptBytes(t *testing.T) {
	req, err := NewBuilder(Options{MaxPromptBytes: 64}).Build(sumRows(5), "")
	require.NoError(t, err)
	assert.Len(t, req.Rows, 2)
	assert.Equal(t, 4, req.Merged)
	assert.LessOrEqual(t, rowsBytes(req.Rows), 64)
}

func TestBuildRejectsOversizedRow(t *testing.T) {
	m := aggregate.Metric{Category: "A very long category name indeed", Measure: "Deaths", Aggregation: aggregate.Sum, Value: 1, Sum: 1, N: 1}
	_, err := NewBuilder(Options{MaxPromptBytes: 10}).Build([]aggregate.Metric{m}, "")
	var tooLarge *apperrors.RequestTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, 10, tooLarge.Limit)
	assert.Greater(t, tooLarge.RowBytes, 10)
}

func TestBuildRejectsEmptyMetrics(t *testing.T) {
	_, err := NewBuilder(DefaultOptions()).Build(nil, "")
	var se *apperrors.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, apperrors.StageBuild, se.Stage())
}
