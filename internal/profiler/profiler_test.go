package profiler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/dataset-processor/internal/parser"
)

func numRow(pairs ...any) parser.Row {
	row := parser.Row{}
	for i := 0; i < len(pairs); i += 2 {
		name := pairs[i].(string)
		var value parser.Value
		switch v := pairs[i+1].(type) {
		case float64:
			value = parser.Value{Kind: parser.KindNumber, Num: v}
		case int:
			value = parser.Value{Kind: parser.KindNumber, Num: float64(v)}
		case string:
			value = parser.Value{Kind: parser.KindString, Str: v}
		case bool:
			value = parser.Value{Kind: parser.KindBool, Bool: v}
		case nil:
			value = parser.Value{Kind: parser.KindNull}
		}
		row.Fields = append(row.Fields, parser.Field{Name: name, Value: value})
	}
	return row
}

func TestComputeStats_NumericSummaries(t *testing.T) {
	rows := []parser.Row{
		numRow("id", 1, "total", 10),
		numRow("id", 2, "total", 20),
		numRow("id", 3, "total", 30),
	}

	stats := ComputeStats(rows)

	assert.Equal(t, int64(3), stats.RowCount)
	assert.Equal(t, int64(0), stats.NullCounts["id"])
	assert.Equal(t, int64(0), stats.NullCounts["total"])

	require.Contains(t, stats.Numeric, "id")
	assert.Equal(t, NumericStats{Min: 1, Mean: 2, Max: 3}, stats.Numeric["id"])

	require.Contains(t, stats.Numeric, "total")
	assert.Equal(t, NumericStats{Min: 10, Mean: 20, Max: 30}, stats.Numeric["total"])
}

func TestComputeStats_NumericStringsQualify(t *testing.T) {
	rows := []parser.Row{
		numRow("price", "1.5"),
		numRow("price", "2.5"),
	}

	stats := ComputeStats(rows)

	require.Contains(t, stats.Numeric, "price")
	assert.Equal(t, NumericStats{Min: 1.5, Mean: 2.0, Max: 2.5}, stats.Numeric["price"])
}

func TestComputeStats_NullCounting(t *testing.T) {
	rows := []parser.Row{
		numRow("a", 1, "b", nil, "c", "x"),
		numRow("a", 2, "b", "   "),       // whitespace string is null; c absent
		numRow("a", nil),                 // b and c absent
	}

	stats := ComputeStats(rows)

	assert.Equal(t, int64(1), stats.NullCounts["a"], "explicit null")
	assert.Equal(t, int64(3), stats.NullCounts["b"], "null + whitespace + absent")
	assert.Equal(t, int64(2), stats.NullCounts["c"], "two absent rows")
}

func TestComputeStats_DuplicateFieldNamesCountOnce(t *testing.T) {
	// A duplicated CSV header column yields two fields named "a" per row.
	rows := []parser.Row{
		numRow("a", "1", "a", "2"),
		numRow("a", "3", "a", "4"),
		numRow("a", "5", "a", nil),
	}

	stats := ComputeStats(rows)

	assert.Equal(t, int64(3), stats.RowCount)
	assert.Equal(t, int64(1), stats.NullCounts["a"], "one row per null, never negative")

	// Last occurrence wins, matching map semantics on the read side
	require.Contains(t, stats.Numeric, "a")
	assert.Equal(t, NumericStats{Min: 2, Mean: 3, Max: 4}, stats.Numeric["a"])
}

func TestComputeAnomalies_DuplicateFieldNamesCollapse(t *testing.T) {
	rows := []parser.Row{
		numRow("a", "1", "a", "2"),
		numRow("a", "2"),
	}

	stats := ComputeStats(rows)
	anomalies := ComputeAnomalies(rows, stats, 0)

	assert.Equal(t, int64(1), anomalies.DuplicatesCount)
}

func TestComputeStats_NumericGating(t *testing.T) {
	t.Run("one non-numeric value disqualifies the field", func(t *testing.T) {
		rows := []parser.Row{
			numRow("v", 1),
			numRow("v", "oops"),
			numRow("v", 3),
		}
		stats := ComputeStats(rows)
		assert.NotContains(t, stats.Numeric, "v")
	})

	t.Run("booleans are not numeric", func(t *testing.T) {
		rows := []parser.Row{
			numRow("v", 1),
			numRow("v", true),
		}
		stats := ComputeStats(rows)
		assert.NotContains(t, stats.Numeric, "v")
	})

	t.Run("nulls do not disqualify", func(t *testing.T) {
		rows := []parser.Row{
			numRow("v", 1),
			numRow("v", nil),
			numRow("v", 3),
		}
		stats := ComputeStats(rows)
		require.Contains(t, stats.Numeric, "v")
		assert.Equal(t, NumericStats{Min: 1, Mean: 2, Max: 3}, stats.Numeric["v"])
	})

	t.Run("all-null field has no numeric stats", func(t *testing.T) {
		rows := []parser.Row{
			numRow("v", nil),
			numRow("v", nil),
		}
		stats := ComputeStats(rows)
		assert.NotContains(t, stats.Numeric, "v")
		assert.Equal(t, int64(2), stats.NullCounts["v"])
	})
}

func TestComputeAnomalies_Duplicates(t *testing.T) {
	rows := []parser.Row{
		numRow("a", 1, "b", "x"),
		numRow("a", 1, "b", "x"),
		numRow("b", "x", "a", 1), // same values, different key order
		numRow("a", 2, "b", "x"),
	}

	anomalies := ComputeAnomalies(rows, ComputeStats(rows), MaxOutlierExamples)

	assert.Equal(t, int64(2), anomalies.DuplicatesCount, "three identical rows count as two duplicates")
}

func TestComputeAnomalies_Outliers(t *testing.T) {
	rows := make([]parser.Row, 0, 21)
	for i := 1; i <= 20; i++ {
		rows = append(rows, numRow("v", i))
	}
	rows = append(rows, numRow("v", 1000))

	anomalies := ComputeAnomalies(rows, ComputeStats(rows), MaxOutlierExamples)

	require.Contains(t, anomalies.Outliers, "v")
	outliers := anomalies.Outliers["v"]
	assert.Equal(t, int64(1), outliers.Count)
	require.Len(t, outliers.Examples, 1)
	assert.Equal(t, int64(20), outliers.Examples[0].RowIndex)
	assert.Equal(t, float64(1000), outliers.Examples[0].Value)
}

func TestComputeAnomalies_OutlierExamplesCapped(t *testing.T) {
	rows := make([]parser.Row, 0, 23)
	for i := 1; i <= 20; i++ {
		rows = append(rows, numRow("v", i))
	}
	rows = append(rows, numRow("v", 1000), numRow("v", 1001), numRow("v", 1002))

	anomalies := ComputeAnomalies(rows, ComputeStats(rows), 2)

	require.Contains(t, anomalies.Outliers, "v")
	outliers := anomalies.Outliers["v"]
	assert.Equal(t, int64(3), outliers.Count)
	require.Len(t, outliers.Examples, 2, "examples must respect the cap")
	assert.Equal(t, int64(20), outliers.Examples[0].RowIndex, "first-seen order")
	assert.Equal(t, int64(21), outliers.Examples[1].RowIndex)
}

func TestComputeAnomalies_OutlierGates(t *testing.T) {
	t.Run("fewer than four samples", func(t *testing.T) {
		rows := []parser.Row{
			numRow("v", 1),
			numRow("v", 2),
			numRow("v", 1000),
		}
		anomalies := ComputeAnomalies(rows, ComputeStats(rows), MaxOutlierExamples)
		assert.NotContains(t, anomalies.Outliers, "v")
	})

	t.Run("zero IQR", func(t *testing.T) {
		rows := []parser.Row{
			numRow("v", 5),
			numRow("v", 5),
			numRow("v", 5),
			numRow("v", 5),
			numRow("v", 5),
		}
		anomalies := ComputeAnomalies(rows, ComputeStats(rows), MaxOutlierExamples)
		assert.NotContains(t, anomalies.Outliers, "v")
	})

	t.Run("non-numeric fields are skipped", func(t *testing.T) {
		rows := []parser.Row{
			numRow("v", "a"),
			numRow("v", "b"),
			numRow("v", "c"),
			numRow("v", "d"),
			numRow("v", "e"),
		}
		anomalies := ComputeAnomalies(rows, ComputeStats(rows), MaxOutlierExamples)
		assert.Empty(t, anomalies.Outliers)
	})
}

func TestQuantile_LinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	assert.Equal(t, 1.75, quantile(sorted, 0.25))
	assert.Equal(t, 2.5, quantile(sorted, 0.5))
	assert.Equal(t, 3.25, quantile(sorted, 0.75))
	assert.Equal(t, 1.0, quantile(sorted, 0))
	assert.Equal(t, 4.0, quantile(sorted, 1))
	assert.Equal(t, 9.0, quantile([]float64{9}, 0.75))
}

func TestBuildReport_Shape(t *testing.T) {
	rows := []parser.Row{
		numRow("id", 1, "total", 10),
		numRow("id", 2, "total", 20),
		numRow("id", 3, "total", 30),
	}
	stats := ComputeStats(rows)
	anomalies := ComputeAnomalies(rows, stats, MaxOutlierExamples)
	generatedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	report := BuildReport("ds-1", generatedAt, stats, anomalies)
	body, err := report.Marshal()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))

	assert.Equal(t, "ds-1", doc["dataset_id"])
	assert.Equal(t, "2025-06-01T12:00:00Z", doc["generated_at"])
	assert.Equal(t, float64(3), doc["row_count"])

	nullCounts := doc["null_counts"].(map[string]any)
	assert.Equal(t, float64(0), nullCounts["id"])

	numeric := doc["numeric"].(map[string]any)
	total := numeric["total"].(map[string]any)
	assert.Equal(t, float64(10), total["min"])
	assert.Equal(t, float64(20), total["mean"])
	assert.Equal(t, float64(30), total["max"])

	anomaliesDoc := doc["anomalies"].(map[string]any)
	assert.Equal(t, float64(0), anomaliesDoc["duplicates_count"])
}
