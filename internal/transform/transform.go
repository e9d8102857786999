package transform

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
)

// Config drives the transformation of every source onto one shared
// hourly grid.
type Config struct {
	// Grid boundaries, inclusive, interpreted in Location.
	Start time.Time
	End   time.Time

	// Location is the single civil timezone all sources are aligned
	// to. Naive local timestamps are interpreted here; UTC-stamped
	// sources are converted into it.
	Location *time.Location
}

// Metrics counts what transformation did to one source.
type Metrics struct {
	RowsIn         int64
	RowsOut        int64
	Converted      int64
	Broadcast      int64
	OutOfRange     int64
	DedupedOnGrid  int64
	CitiesExcluded int64
}

// Map returns the metrics as a metric-name to value mapping.
func (m Metrics) Map() map[string]int64 {
	return map[string]int64{
		"rows_in":            m.RowsIn,
		"rows_out":           m.RowsOut,
		"values_converted":   m.Converted,
		"rows_broadcast":     m.Broadcast,
		"rows_out_of_window": m.OutOfRange,
		"deduped_on_grid":    m.DedupedOnGrid,
		"cities_excluded":    m.CitiesExcluded,
	}
}

// Transform aligns one cleaned source table onto the canonical hourly
// grid:
//
//  1. declared unit conversions, per value
//  2. timezone normalization (naive local timestamps are resolved in
//     cfg.Location; UTC instants are viewed in it)
//  3. snapping to the top of the hour and dropping rows outside the
//     configured window
//  4. daily sources broadcast to all 24 slots of their day
//  5. per-city gap check: a city whose series has a gap longer than
//     the manifest's max_gap_hours is excluded from this source
//
// The returned excluded list names the dropped cities; exclusion is
// recoverable, never fatal. Output is sorted by (city, timestamp).
func Transform(m dataset.SourceManifest, cfg Config, t dataset.Table) (dataset.Table, []string, Metrics, error) {
	if err := m.Validate(); err != nil {
		return dataset.Table{}, nil, Metrics{}, err
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	var metrics Metrics
	metrics.RowsIn = int64(t.Len())

	converted, err := convertUnits(m, t, &metrics)
	if err != nil {
		return dataset.Table{}, nil, Metrics{}, err
	}

	gridded := dataset.NewTable(m.Name)
	start := TruncateHour(cfg.Start, loc)
	end := TruncateHour(cfg.End, loc)
	for _, row := range converted.Rows {
		ts := row.Timestamp
		if m.Timestamps == dataset.TimestampsLocal {
			ts = Localize(ts, loc)
		} else {
			ts = ts.In(loc)
		}
		ts = TruncateHour(ts, loc)

		if m.NativeResolution == dataset.ResolutionDaily {
			broadcastDay(&gridded, row, ts, start, end, loc, &metrics)
			continue
		}
		if ts.Before(start) || ts.After(end) {
			metrics.OutOfRange++
			continue
		}
		out := row.Clone()
		out.Timestamp = ts
		gridded.Append(out)
	}

	deduped := dedupeOnGrid(gridded, &metrics)
	result, excluded := excludeGappedCities(m, deduped, &metrics)
	result.SortByCityTime()
	metrics.RowsOut = int64(result.Len())
	return result, excluded, metrics, nil
}

// convertUnits applies each column's declared conversion to every
// present value. Unknown conversion names are a configuration error.
func convertUnits(m dataset.SourceManifest, t dataset.Table, metrics *Metrics) (dataset.Table, error) {
	type boundConv struct {
		col string
		fn  ConvertFunc
	}
	var convs []boundConv
	for _, c := range m.Columns {
		if c.Convert == "" {
			continue
		}
		fn, ok := Conversion(c.Convert)
		if !ok {
			return dataset.Table{}, fmt.Errorf("%w: column %q references unknown conversion %q",
				dataset.ErrInvalidRangeConfig, c.Name, c.Convert)
		}
		convs = append(convs, boundConv{col: c.Name, fn: fn})
	}

	out := dataset.NewTable(t.Source)
	for _, row := range t.Rows {
		r := row.Clone()
		for _, bc := range convs {
			if v, ok := r.Value(bc.col); ok {
				r.Set(bc.col, bc.fn(v))
				metrics.Converted++
			}
		}
		out.Append(r)
	}
	return out, nil
}

// broadcastDay emits one hourly row per slot of the daily
// observation's local day, each carrying the daily values unchanged.
// Broadcast follows the local calendar, so a DST day contributes its
// actual 23 or 25 distinct grid hours.
func broadcastDay(out *dataset.Table, row dataset.Row, dayStart, start, end time.Time, loc *time.Location, metrics *Metrics) {
	day := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), 0, 0, 0, 0, loc)
	next := day.AddDate(0, 0, 1)
	for ts := day; ts.Before(next); ts = ts.Add(time.Hour) {
		if ts.Before(start) || ts.After(end) {
			metrics.OutOfRange++
			continue
		}
		r := row.Clone()
		r.Timestamp = ts
		out.Append(r)
		metrics.Broadcast++
	}
}

// dedupeOnGrid drops rows that collapsed onto an occupied grid slot.
// Snapping and the fall-back DST transition can both map two distinct
// input timestamps onto one slot; the first row in input order wins,
// matching the cleaner's dedup rule.
func dedupeOnGrid(t dataset.Table, metrics *Metrics) dataset.Table {
	out := dataset.NewTable(t.Source)
	seen := make(map[string]struct{}, t.Len())
	for _, r := range t.Rows {
		key := r.Key()
		if _, dup := seen[key]; dup {
			metrics.DedupedOnGrid++
			continue
		}
		seen[key] = struct{}{}
		out.Append(r)
	}
	return out
}

// excludeGappedCities removes every city whose hourly series contains
// a gap longer than the manifest's max_gap_hours. Filling such a gap
// would manufacture data; excluding the city keeps the failure visible
// in the quality report.
func excludeGappedCities(m dataset.SourceManifest, t dataset.Table, metrics *Metrics) (dataset.Table, []string) {
	if m.MaxGapHours <= 0 {
		return t, nil
	}
	limit := time.Duration(m.MaxGapHours) * time.Hour

	var excluded []string
	for city, rows := range t.ByCity() {
		times := make([]time.Time, len(rows))
		for i, r := range rows {
			times[i] = r.Timestamp
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		for i := 1; i < len(times); i++ {
			if gap := times[i].Sub(times[i-1]); gap > limit {
				excluded = append(excluded, city)
				log.Printf("[%s] excluding city %q: %s gap exceeds %dh limit",
					m.Name, city, gap, m.MaxGapHours)
				break
			}
		}
	}
	if len(excluded) == 0 {
		return t, nil
	}
	sort.Strings(excluded)
	metrics.CitiesExcluded = int64(len(excluded))

	drop := make(map[string]struct{}, len(excluded))
	for _, c := range excluded {
		drop[c] = struct{}{}
	}
	out := dataset.NewTable(t.Source)
	for _, r := range t.Rows {
		if _, gone := drop[r.CityKey]; gone {
			continue
		}
		out.Append(r)
	}
	return out, excluded
}
