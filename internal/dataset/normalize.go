package dataset

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// Error throttling: don't spam logs with per-row parse errors.
const maxErrorsToLog = 10

// Timestamp layouts collectors are known to emit. Naive layouts are
// parsed as UTC here; interpreting them as local civil time (and the
// DST tie-breaks that implies) is the Transformer's job.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeStats counts the outcome of a normalization pass.
type NormalizeStats struct {
	RowsRead     int64
	Parsed       int64
	Failed       int64
	SkippedEmpty int64
}

// Normalize maps one source's raw CSV rows onto the common
// observation shape: stable city key, parsed timestamp, and the
// numeric columns the manifest declares. Columns the manifest does
// not declare are dropped here; empty cells become missing values.
// Row order is preserved (ingestion order matters for dedup).
func Normalize(m SourceManifest, reg *Registry, header []string, records [][]string) (Table, NormalizeStats, error) {
	t := NewTable(m.Name)
	var stats NormalizeStats

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cityCol, ok := findColumn(idx, "city_key", "city")
	if !ok {
		return t, stats, fmt.Errorf("source %q: no city_key or city column in header", m.Name)
	}
	tsCol, ok := findColumn(idx, "datetime", "timestamp", "date")
	if !ok {
		return t, stats, fmt.Errorf("source %q: no datetime, timestamp or date column in header", m.Name)
	}

	errorCount := 0
	for _, rec := range records {
		stats.RowsRead++
		if isEmptyRecord(rec) {
			stats.SkippedEmpty++
			continue
		}
		row, err := normalizeRecord(m, reg, idx, cityCol, tsCol, rec)
		if err != nil {
			stats.Failed++
			errorCount++
			if errorCount <= maxErrorsToLog {
				log.Printf("[%s] normalize error (row %d): %v", m.Name, stats.RowsRead, err)
			}
			continue
		}
		stats.Parsed++
		t.Append(row)
	}
	if errorCount > maxErrorsToLog {
		log.Printf("[%s] ... and %d more normalize errors (suppressed)", m.Name, errorCount-maxErrorsToLog)
	}
	return t, stats, nil
}

func normalizeRecord(m SourceManifest, reg *Registry, idx map[string]int, cityCol, tsCol int, rec []string) (Row, error) {
	if cityCol >= len(rec) || tsCol >= len(rec) {
		return Row{}, fmt.Errorf("record too short: %d fields", len(rec))
	}
	city := reg.NormalizeCityKey(rec[cityCol])
	if city == "" {
		return Row{}, fmt.Errorf("empty city name")
	}
	ts, err := parseTimestamp(rec[tsCol])
	if err != nil {
		return Row{}, err
	}

	row := NewRow(city, ts)
	for _, col := range m.Columns {
		i, ok := idx[col.Name]
		if !ok || i >= len(rec) {
			continue // column absent from this file: missing
		}
		cell := strings.TrimSpace(rec[i])
		if cell == "" {
			continue // empty cell: missing
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return Row{}, fmt.Errorf("column %q: invalid number %q", col.Name, cell)
		}
		row.Set(col.Name, v)
	}
	return row, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func findColumn(idx map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func isEmptyRecord(rec []string) bool {
	if len(rec) == 0 {
		return true
	}
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
