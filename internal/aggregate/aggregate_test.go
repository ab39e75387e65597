package aggregate

import (
	"errors"
	"testing"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func deaths(t *testing.T) *dataset.Dataset {
	t.Helper()
	d, err := dataset.New("deaths.csv", []string{"Disease", "Deaths", "Year"}, [][]string{
		{"TB", "10", "2019"},
		{"Tuberculosis", "5", "2019"},
		{"tb", "n/a", "2020"},
		{"Malaria", "1,200", "2020-03-01"},
		{"Malaria", "approx. 30", "bad date"},
	})
	require.NoError(t, err)
	return d
}

func TestComputeSumWithMapping(t *testing.T) {
	ds := deaths(t)
	n, err := normalize.New(normalize.DefaultThreshold, zap.NewNop())
	require.NoError(t, err)
	m, _, err := n.NormalizeColumn(ds, "Disease", nil)
	require.NoError(t, err)

	res, err := Compute(ds, m, Spec{CategoryColumn: "disease", Measures: []string{"Deaths"}, Aggregation: Sum})
	require.NoError(t, err)
	assert.Equal(t, []Metric{
		{Category: "Malaria", Measure: "Deaths", Aggregation: Sum, Value: 1200, Sum: 1200, N: 1},
		{Category: "TB", Measure: "Deaths", Aggregation: Sum, Value: 15, Sum: 15, N: 2},
	}, res.Metrics)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, []string{"Deaths: skipped 2 non-numeric cell(s)"}, res.Notes)
}

func TestComputeLenientAndBuckets(t *testing.T) {
	res, err := Compute(deaths(t), nil, Spec{
		CategoryColumn: "Disease", Measures: []string{"Deaths"}, Aggregation: Mean,
		TimeColumn: "Year", Granularity: ByYear, Lenient: true,
	})
	require.NoError(t, err)
	var malaria []Metric
	for _, m := range res.Metrics {
		if m.Category == "Malaria" {
			malaria = append(malaria, m)
		}
	}
	require.Len(t, malaria, 2)
	assert.Equal(t, "2020", malaria[0].Bucket)
	assert.Equal(t, UnknownBucket, malaria[1].Bucket)
	assert.Equal(t, 30.0, malaria[1].Value)
	assert.Contains(t, res.Notes[len(res.Notes)-1], "unparsable dates")
}

func TestComputeKeepsFiscalYearPeriods(t *testing.T) {
	ds, err := dataset.New("tidy.csv", []string{"Cause", "Deaths", "Period"}, [][]string{
		{"TB", "4", "2011-12"},
		{"TB", "6", "2011"},
		{"TB", "3", "2014-15"},
		{"TB", "2", "2014/15"},
		{"TB", "1", "2019-03"},
	})
	require.NoError(t, err)

	for _, g := range []Granularity{ByYear, ByMonth} {
		res, err := Compute(ds, nil, Spec{
			CategoryColumn: "Cause", Measures: []string{"Deaths"}, Aggregation: Sum,
			TimeColumn: "Period", Granularity: g,
		})
		require.NoError(t, err)
		buckets := map[string]float64{}
		for _, m := range res.Metrics {
			buckets[m.Bucket] = m.Value
		}
		assert.Equal(t, 4.0, buckets["2011-12"], "granularity %v", g)
		assert.Equal(t, 6.0, buckets["2011"], "granularity %v", g)
		assert.Equal(t, 3.0, buckets["2014-15"], "granularity %v", g)
		assert.Equal(t, 2.0, buckets["2014/15"], "granularity %v", g)
		assert.NotContains(t, buckets, UnknownBucket)
		assert.Empty(t, res.Notes)
	}
}

func TestComputeCountsRowsWithoutMeasures(t *testing.T) {
	res, err := Compute(deaths(t), nil, Spec{CategoryColumn: "Disease"})
	require.NoError(t, err)
	for _, m := range res.Metrics {
		assert.Equal(t, Count, m.Aggregation)
		assert.Equal(t, RowsMeasure, m.Measure)
	}
	assert.Len(t, res.Metrics, 4)
}

func TestComputeUnmappedCategoryFails(t *testing.T) {
	_, err := Compute(deaths(t), normalize.Mapping{}, Spec{CategoryColumn: "Disease"})
	var se *apperrors.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, apperrors.StageAggregate, se.Stage())
}

func TestComputeMissingColumn(t *testing.T) {
	_, err := Compute(deaths(t), nil, Spec{CategoryColumn: "Region"})
	assert.Error(t, err)
	_, err = Compute(deaths(t), nil, Spec{CategoryColumn: "Disease", Measures: []string{"Births"}})
	assert.Error(t, err)
}

func TestMetricMergeIsExact(t *testing.T) {
	a := Metric{Category: "A", Measure: "Deaths", Aggregation: Mean, Sum: 10, N: 2, Value: 5}
	b := Metric{Category: "B", Measure: "Deaths", Aggregation: Mean, Sum: 20, N: 8, Value: 2.5}
	m := a.Merge(b)
	assert.Equal(t, 30.0, m.Sum)
	assert.Equal(t, 10, m.N)
	assert.Equal(t, 3.0, m.Value)
	assert.Equal(t, "A", m.Category)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Average")
	require.NoError(t, err)
	assert.Equal(t, Mean, k)
	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Sum, k)
	_, err = ParseKind("median")
	assert.Error(t, err)
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("Monthly")
	require.NoError(t, err)
	assert.Equal(t, ByMonth, g)
	g, err = ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, ByYear, g)
	_, err = ParseGranularity("week")
	assert.Error(t, err)
}
