// Package integrate merges the per-source hourly tables into one
// unified dataset: exact city intersection, inner join on
// (city, timestamp), and the shared categorical derivations attached
// once to the merged rows.
package integrate

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
	"github.com/youngleee/DataAnalyticsHAW/internal/transform"
)

// ErrAmbiguousColumnCollision marks two sources declaring the same
// column name without a disambiguating prefix. Integration stops;
// silently suffixing columns would hide which source a value came
// from.
var ErrAmbiguousColumnCollision = errors.New("ambiguous column collision")

// Row is one merged observation: every source's measurements for one
// city and hour, plus registry data and the shared categoricals.
type Row struct {
	CityKey   string
	City      string
	Lat       float64
	Lon       float64
	Timestamp time.Time
	Values    map[string]float64

	Season     string
	TimePeriod string
	IsWeekday  bool
	IsNight    bool
	IsRushHour bool
}

// Value returns the measurement for col and whether it is present.
func (r Row) Value(col string) (float64, bool) {
	v, ok := r.Values[col]
	return v, ok
}

// Set stores a measurement.
func (r *Row) Set(col string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[col] = v
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := r
	out.Values = make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// Dataset is the unified, feature-ready table. Rows are ordered by
// (city, timestamp) ascending; Columns lists the merged measurement
// columns in deterministic source-then-manifest order.
type Dataset struct {
	Rows    []Row
	Columns []string
}

// ByCity partitions the dataset into per-city row slices, preserving
// row order.
func (d Dataset) ByCity() map[string][]Row {
	out := make(map[string][]Row)
	for _, r := range d.Rows {
		out[r.CityKey] = append(out[r.CityKey], r)
	}
	return out
}

// Cities returns the sorted distinct city keys.
func (d Dataset) Cities() []string {
	seen := make(map[string]struct{})
	for _, r := range d.Rows {
		seen[r.CityKey] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Metrics describes one integration run for the quality report.
type Metrics struct {
	CommonCities  []string
	DroppedCities map[string][]string // source -> cities not shared by all
	RowsPerSource map[string]int64
	RowsUnified   int64
}

// Config carries integration settings.
type Config struct {
	Registry  *dataset.Registry
	RushHours transform.RushHours
}

// Integrate merges the transformed source tables.
//
// Cities are intersected exactly: a city missing from any source is
// dropped from all of them, and the drop is reported per source. Rows
// are then inner-joined on (city, timestamp); hours not covered by
// every source are omitted. An empty city intersection is reported
// loudly and yields an empty dataset, never an error.
func Integrate(ms dataset.Manifests, cfg Config, tables map[string]dataset.Table) (Dataset, Metrics, error) {
	sources := make([]string, 0, len(tables))
	for name := range tables {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	columns, err := mergedColumns(ms, sources)
	if err != nil {
		return Dataset{}, Metrics{}, err
	}

	metrics := Metrics{
		DroppedCities: make(map[string][]string, len(sources)),
		RowsPerSource: make(map[string]int64, len(sources)),
	}
	for _, name := range sources {
		metrics.RowsPerSource[name] = int64(tables[name].Len())
	}

	common := commonCities(sources, tables, &metrics)
	metrics.CommonCities = common
	if len(common) == 0 {
		log.Printf("integrate: no city is present in all %d sources, unified dataset is empty", len(sources))
		return Dataset{Columns: columns}, metrics, nil
	}

	commonSet := make(map[string]struct{}, len(common))
	for _, c := range common {
		commonSet[c] = struct{}{}
	}

	// Join keyed on (city, hour). The first source defines the key
	// set; every later source intersects it.
	merged := make(map[string]*Row)
	var keys []string
	for i, name := range sources {
		m := ms[name]
		present := make(map[string]struct{})
		for _, src := range tables[name].Rows {
			if _, ok := commonSet[src.CityKey]; !ok {
				continue
			}
			key := src.Key()
			present[key] = struct{}{}

			row, ok := merged[key]
			if !ok {
				if i > 0 {
					continue // hour unseen by an earlier source
				}
				row = &Row{CityKey: src.CityKey, Timestamp: src.Timestamp, Values: make(map[string]float64)}
				merged[key] = row
				keys = append(keys, key)
			}
			for col, v := range src.Values {
				row.Set(mergedName(m, col), v)
			}
		}
		// Inner join: drop keys this source did not cover.
		if i > 0 {
			kept := keys[:0]
			for _, key := range keys {
				if _, ok := present[key]; ok {
					kept = append(kept, key)
				} else {
					delete(merged, key)
				}
			}
			keys = kept
		}
	}

	out := Dataset{Columns: columns, Rows: make([]Row, 0, len(keys))}
	for _, key := range keys {
		out.Rows = append(out.Rows, *merged[key])
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := out.Rows[i], out.Rows[j]
		if a.CityKey != b.CityKey {
			return a.CityKey < b.CityKey
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	attachContext(cfg, out.Rows)
	metrics.RowsUnified = int64(len(out.Rows))
	return out, metrics, nil
}

// mergedColumns resolves every source's columns to their merged names
// and fails on an undeclared collision.
func mergedColumns(ms dataset.Manifests, sources []string) ([]string, error) {
	var columns []string
	owner := make(map[string]string)
	for _, name := range sources {
		m, ok := ms[name]
		if !ok {
			return nil, fmt.Errorf("no manifest for source %q", name)
		}
		for _, c := range m.Columns {
			merged := mergedName(m, c.Name)
			if prev, taken := owner[merged]; taken {
				return nil, fmt.Errorf("%w: column %q declared by both %q and %q (declare a prefix for one of them)",
					ErrAmbiguousColumnCollision, merged, prev, name)
			}
			owner[merged] = name
			columns = append(columns, merged)
		}
	}
	return columns, nil
}

// mergedName applies the source's declared prefix, if any.
func mergedName(m dataset.SourceManifest, col string) string {
	if m.Prefix == "" {
		return col
	}
	return m.Prefix + "_" + col
}

// commonCities returns the exact intersection of city sets across all
// sources, recording per-source drops for the quality report.
func commonCities(sources []string, tables map[string]dataset.Table, metrics *Metrics) []string {
	if len(sources) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, name := range sources {
		for c := range tables[name].CitySet() {
			counts[c]++
		}
	}
	var common []string
	for c, n := range counts {
		if n == len(sources) {
			common = append(common, c)
		}
	}
	sort.Strings(common)

	commonSet := make(map[string]struct{}, len(common))
	for _, c := range common {
		commonSet[c] = struct{}{}
	}
	for _, name := range sources {
		var dropped []string
		for c := range tables[name].CitySet() {
			if _, ok := commonSet[c]; !ok {
				dropped = append(dropped, c)
			}
		}
		sort.Strings(dropped)
		metrics.DroppedCities[name] = dropped
		if len(dropped) > 0 {
			log.Printf("integrate: dropping %v from %q (not present in all sources)", dropped, name)
		}
	}
	return common
}

// attachContext fills in registry data and the timestamp-derived
// categoricals. Derived once here so no two sources can ever collide
// on them.
func attachContext(cfg Config, rows []Row) {
	for i := range rows {
		r := &rows[i]
		if cfg.Registry != nil {
			if c, ok := cfg.Registry.City(r.CityKey); ok {
				r.City = c.Name
				r.Lat = c.Lat
				r.Lon = c.Lon
			}
		}
		if r.City == "" {
			r.City = r.CityKey
		}
		r.Season = transform.Season(r.Timestamp)
		r.TimePeriod = transform.TimePeriod(r.Timestamp)
		r.IsWeekday = transform.IsWeekday(r.Timestamp)
		r.IsNight = transform.IsNight(r.Timestamp)
		r.IsRushHour = cfg.RushHours.IsRushHour(r.Timestamp)
	}
}
