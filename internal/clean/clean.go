// Package clean implements the bronze-to-silver cleaning stage:
// column drops, missing-value fills, range validation and
// deduplication, all driven by the per-source column manifest.
//
// Cleaning is idempotent: running it on already-clean data removes
// nothing, fills nothing and clips nothing.
package clean

import (
	"log"
	"sort"

	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
)

// Metrics counts what cleaning did to one source. The external
// quality report consumes these as a plain name-to-number mapping.
type Metrics struct {
	RowsBefore        int64
	RowsAfter         int64
	NullsFilled       int64
	DuplicatesRemoved int64
	OutliersClipped   int64
	RowsDiscarded     int64
	ColumnsDropped    int64
}

// Map returns the metrics as a metric-name to value mapping.
func (m Metrics) Map() map[string]int64 {
	return map[string]int64{
		"rows_before":        m.RowsBefore,
		"rows_after":         m.RowsAfter,
		"nulls_filled":       m.NullsFilled,
		"duplicates_removed": m.DuplicatesRemoved,
		"outliers_clipped":   m.OutliersClipped,
		"rows_discarded":     m.RowsDiscarded,
		"columns_dropped":    m.ColumnsDropped,
	}
}

// Empty reports whether cleaning left no rows. Downstream treats
// this as a warning, never as a fatal error.
func (m Metrics) Empty() bool { return m.RowsAfter == 0 }

// Clean applies the manifest's policies to one source table.
//
// Order matters and is fixed:
//  1. drop-column checks (whole-column missing fraction)
//  2. deduplication on (city, timestamp), keeping the first
//     occurrence in ingestion order
//  3. fill strategies, row-by-row in timestamp order per city
//  4. range validation: clip to bounds, or discard the row for
//     columns flagged discard_on_violation
//
// The returned table is sorted by (city, timestamp).
func Clean(m dataset.SourceManifest, t dataset.Table) (dataset.Table, Metrics, error) {
	if err := m.Validate(); err != nil {
		return dataset.Table{}, Metrics{}, err
	}

	var metrics Metrics
	metrics.RowsBefore = int64(t.Len())

	dropped := dropColumns(m, &t, &metrics)
	rows := dedupe(t.Rows, &metrics)
	byCity := partitionSorted(rows)

	out := dataset.NewTable(m.Name)
	cities := make([]string, 0, len(byCity))
	for c := range byCity {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	for _, city := range cities {
		series := byCity[city]
		fillSeries(m, dropped, series, &metrics)
		for _, row := range series {
			if keep := validateRanges(m, dropped, &row, &metrics); keep {
				out.Append(row)
			} else {
				metrics.RowsDiscarded++
			}
		}
	}

	metrics.RowsAfter = int64(out.Len())
	if metrics.Empty() && metrics.RowsBefore > 0 {
		log.Printf("[%s] warning: no rows left after cleaning", m.Name)
	}
	return out, metrics, nil
}

// dropColumns removes whole columns whose missing fraction exceeds
// the declared threshold. Runs before any fill so a dropped column is
// never resurrected by its fill policy.
func dropColumns(m dataset.SourceManifest, t *dataset.Table, metrics *Metrics) map[string]bool {
	dropped := make(map[string]bool)
	for _, c := range m.Columns {
		if c.Fill != dataset.DropColumn {
			continue
		}
		frac := t.MissingFraction(c.Name)
		if frac > c.DropThreshold {
			dropped[c.Name] = true
			metrics.ColumnsDropped++
			log.Printf("[%s] dropping column %q (%.1f%% missing)", m.Name, c.Name, frac*100)
		}
	}
	if len(dropped) > 0 {
		for i := range t.Rows {
			for col := range dropped {
				t.Rows[i].Clear(col)
			}
		}
	}
	return dropped
}

// dedupe keeps the first occurrence of each (city, timestamp) key in
// ingestion order.
func dedupe(rows []dataset.Row, metrics *Metrics) []dataset.Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]dataset.Row, 0, len(rows))
	for _, r := range rows {
		key := r.Key()
		if _, dup := seen[key]; dup {
			metrics.DuplicatesRemoved++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r.Clone())
	}
	return out
}

// partitionSorted splits rows by city and sorts each city's series by
// timestamp, as required for forward fill.
func partitionSorted(rows []dataset.Row) map[string][]dataset.Row {
	byCity := make(map[string][]dataset.Row)
	for _, r := range rows {
		byCity[r.CityKey] = append(byCity[r.CityKey], r)
	}
	for _, series := range byCity {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
	return byCity
}

// fillSeries applies constant and forward fills to one city's
// timestamp-ordered series.
func fillSeries(m dataset.SourceManifest, dropped map[string]bool, series []dataset.Row, metrics *Metrics) {
	for _, c := range m.Columns {
		if dropped[c.Name] {
			continue
		}
		switch c.Fill {
		case dataset.FillConstant:
			for i := range series {
				if _, ok := series[i].Value(c.Name); !ok {
					series[i].Set(c.Name, c.FillValue)
					metrics.NullsFilled++
				}
			}
		case dataset.FillForward:
			var last float64
			haveLast := false
			for i := range series {
				if v, ok := series[i].Value(c.Name); ok {
					last, haveLast = v, true
					continue
				}
				if haveLast {
					series[i].Set(c.Name, last)
					metrics.NullsFilled++
				}
			}
		}
	}
}

// validateRanges clips out-of-range values to the nearest bound, or
// reports the row as invalid when the violated column is flagged
// discard_on_violation. Returns false when the row must be excluded.
func validateRanges(m dataset.SourceManifest, dropped map[string]bool, row *dataset.Row, metrics *Metrics) bool {
	for _, c := range m.Columns {
		if c.Range == nil || dropped[c.Name] {
			continue
		}
		v, ok := row.Value(c.Name)
		if !ok || (v >= c.Range.Min && v <= c.Range.Max) {
			continue
		}
		if c.DiscardOnViolation {
			return false
		}
		if v < c.Range.Min {
			row.Set(c.Name, c.Range.Min)
		} else {
			row.Set(c.Name, c.Range.Max)
		}
		metrics.OutliersClipped++
	}
	return true
}
