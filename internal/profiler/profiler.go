// Package profiler computes profile reports over parsed dataset rows:
// per-field null counts, numeric min/mean/max, exact-duplicate counts, and
// IQR-based outlier detection.
package profiler

import (
	"sort"

	"github.com/cuongbtq/dataset-processor/internal/parser"
)

// NumericStats summarizes a field whose observed non-null values are all numeric.
type NumericStats struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
}

// Stats is the first-pass profile: row count, null counts, numeric summaries.
type Stats struct {
	RowCount   int64
	NullCounts map[string]int64
	Numeric    map[string]NumericStats
}

// fieldAccumulator carries the bounded per-field state of the stats pass.
type fieldAccumulator struct {
	present    int64
	nulls      int64
	numCount   int64
	numSum     float64
	numMin     float64
	numMax     float64
	nonNumeric bool
}

// collapseFields keeps one value per field name within a row, the last
// occurrence winning, so a row contributes at most once per field. Duplicated
// CSV header columns and repeated JSON keys land here.
func collapseFields(fields []parser.Field) []parser.Field {
	index := make(map[string]int, len(fields))
	collapsed := make([]parser.Field, 0, len(fields))
	for _, field := range fields {
		if i, ok := index[field.Name]; ok {
			collapsed[i] = field
			continue
		}
		index[field.Name] = len(collapsed)
		collapsed = append(collapsed, field)
	}
	return collapsed
}

// ComputeStats profiles rows in a single pass with constant per-field state.
//
// A field is absent-null for every row that does not carry it; a field earns
// numeric stats only when every observed non-null value coerces to a finite
// number and at least one such value exists. Within a row, duplicate field
// names count once, keeping the last value.
func ComputeStats(rows []parser.Row) Stats {
	accs := make(map[string]*fieldAccumulator)

	for _, row := range rows {
		for _, field := range collapseFields(row.Fields) {
			acc := accs[field.Name]
			if acc == nil {
				acc = &fieldAccumulator{}
				accs[field.Name] = acc
			}
			acc.present++

			if field.Value.IsNull() {
				acc.nulls++
				continue
			}

			num, ok := field.Value.Numeric()
			if !ok {
				acc.nonNumeric = true
				continue
			}
			if acc.numCount == 0 || num < acc.numMin {
				acc.numMin = num
			}
			if acc.numCount == 0 || num > acc.numMax {
				acc.numMax = num
			}
			acc.numSum += num
			acc.numCount++
		}
	}

	rowCount := int64(len(rows))
	stats := Stats{
		RowCount:   rowCount,
		NullCounts: make(map[string]int64, len(accs)),
		Numeric:    make(map[string]NumericStats),
	}

	for name, acc := range accs {
		stats.NullCounts[name] = acc.nulls + (rowCount - acc.present)
		if !acc.nonNumeric && acc.numCount > 0 {
			stats.Numeric[name] = NumericStats{
				Min:  acc.numMin,
				Mean: acc.numSum / float64(acc.numCount),
				Max:  acc.numMax,
			}
		}
	}

	return stats
}

// OutlierExample is one flagged sample, 0-based row index from the parser.
type OutlierExample struct {
	RowIndex int64   `json:"row_index"`
	Value    float64 `json:"value"`
}

// FieldOutliers reports IQR outliers for one numeric field.
type FieldOutliers struct {
	Count    int64            `json:"count"`
	Examples []OutlierExample `json:"examples"`
}

// Anomalies is the second-pass profile: duplicates and per-field outliers.
type Anomalies struct {
	DuplicatesCount int64                    `json:"duplicates_count"`
	Outliers        map[string]FieldOutliers `json:"outliers"`
}

// MaxOutlierExamples caps the examples emitted per field.
const MaxOutlierExamples = 5

// ComputeAnomalies counts exact-row duplicates and detects IQR outliers.
//
// Duplicates count additional occurrences beyond the first per distinct row.
// Outliers are computed only for fields carrying numeric stats, with at least
// 4 samples and a strictly positive IQR; examples keep first-seen order and
// are capped at maxExamples.
func ComputeAnomalies(rows []parser.Row, stats Stats, maxExamples int) Anomalies {
	if maxExamples <= 0 {
		maxExamples = MaxOutlierExamples
	}

	type sample struct {
		rowIndex int64
		value    float64
	}

	seen := make(map[string]struct{}, len(rows))
	samples := make(map[string][]sample)
	var duplicates int64

	for idx, row := range rows {
		fields := collapseFields(row.Fields)
		key := parser.Row{Fields: fields}.CanonicalKey()
		if _, dup := seen[key]; dup {
			duplicates++
		} else {
			seen[key] = struct{}{}
		}

		for _, field := range fields {
			if _, qualifies := stats.Numeric[field.Name]; !qualifies {
				continue
			}
			if field.Value.IsNull() {
				continue
			}
			if num, ok := field.Value.Numeric(); ok {
				samples[field.Name] = append(samples[field.Name], sample{rowIndex: int64(idx), value: num})
			}
		}
	}

	anomalies := Anomalies{
		DuplicatesCount: duplicates,
		Outliers:        make(map[string]FieldOutliers),
	}

	for name, fieldSamples := range samples {
		if len(fieldSamples) < 4 {
			continue
		}

		values := make([]float64, len(fieldSamples))
		for i, s := range fieldSamples {
			values[i] = s.value
		}
		sort.Float64s(values)

		q1 := quantile(values, 0.25)
		q3 := quantile(values, 0.75)
		iqr := q3 - q1
		if iqr <= 0 {
			continue
		}
		lower := q1 - 1.5*iqr
		upper := q3 + 1.5*iqr

		var outliers FieldOutliers
		for _, s := range fieldSamples {
			if s.value < lower || s.value > upper {
				outliers.Count++
				if len(outliers.Examples) < maxExamples {
					outliers.Examples = append(outliers.Examples, OutlierExample{
						RowIndex: s.rowIndex,
						Value:    s.value,
					})
				}
			}
		}

		if outliers.Count > 0 {
			anomalies.Outliers[name] = outliers
		}
	}

	return anomalies
}

// quantile interpolates linearly on a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	index := float64(len(sorted)-1) * q
	lower := int(index)
	upper := lower + 1
	if upper > len(sorted)-1 {
		upper = len(sorted) - 1
	}
	fraction := index - float64(lower)
	return sorted[lower]*(1.0-fraction) + sorted[upper]*fraction
}
