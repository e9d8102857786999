// Package dataset defines the in-memory table model shared by every
// pipeline stage: timestamped observation rows keyed by city, the
// per-source column manifests that drive cleaning and transformation,
// and the immutable city registry.
//
// A missing measurement is represented by key absence in Row.Values,
// never by a sentinel value. Every stage preserves that distinction.
package dataset

import (
	"sort"
	"time"
)

// Row is a single observation: one city, one instant, and the numeric
// measurements the source reported for it.
type Row struct {
	CityKey   string
	Timestamp time.Time
	Values    map[string]float64
}

// NewRow creates a row with an empty value map.
func NewRow(cityKey string, ts time.Time) Row {
	return Row{CityKey: cityKey, Timestamp: ts, Values: make(map[string]float64)}
}

// Value returns the measurement for col and whether it is present.
func (r Row) Value(col string) (float64, bool) {
	v, ok := r.Values[col]
	return v, ok
}

// Set stores a measurement, allocating the value map if needed.
func (r *Row) Set(col string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[col] = v
}

// Clear removes a measurement, leaving the column missing.
func (r *Row) Clear(col string) {
	delete(r.Values, col)
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := Row{CityKey: r.CityKey, Timestamp: r.Timestamp, Values: make(map[string]float64, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// Key returns the (city, timestamp) join key for the row.
func (r Row) Key() string {
	return r.CityKey + "|" + r.Timestamp.UTC().Format(time.RFC3339)
}

// Table is an ordered collection of observation rows from one source.
// Row order is meaningful: ingestion order before cleaning,
// (city, timestamp) ascending after.
type Table struct {
	Source string
	Rows   []Row
}

// NewTable creates an empty table for a source.
func NewTable(source string) Table {
	return Table{Source: source}
}

// Append adds a row to the table.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Cities returns the sorted set of distinct city keys in the table.
func (t Table) Cities() []string {
	seen := make(map[string]struct{})
	for _, r := range t.Rows {
		seen[r.CityKey] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CitySet returns the distinct city keys as a set.
func (t Table) CitySet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range t.Rows {
		set[r.CityKey] = struct{}{}
	}
	return set
}

// ByCity partitions the table into per-city row slices, preserving
// the table's row order within each partition. Workers operating on
// different partitions share no mutable state.
func (t Table) ByCity() map[string][]Row {
	out := make(map[string][]Row)
	for _, r := range t.Rows {
		out[r.CityKey] = append(out[r.CityKey], r)
	}
	return out
}

// SortByCityTime orders rows by (city, timestamp) ascending. All
// cleaned tables are kept in this order so downstream stages and the
// final artifacts are deterministic.
func (t *Table) SortByCityTime() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if a.CityKey != b.CityKey {
			return a.CityKey < b.CityKey
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}

// MissingFraction returns the fraction of rows with no value for col.
// An empty table reports 0.
func (t Table) MissingFraction(col string) float64 {
	if len(t.Rows) == 0 {
		return 0
	}
	missing := 0
	for _, r := range t.Rows {
		if _, ok := r.Values[col]; !ok {
			missing++
		}
	}
	return float64(missing) / float64(len(t.Rows))
}
