// Package transform implements the silver-stage transformation:
// declarative unit conversion, timezone normalization onto a single
// civil timezone, resampling onto the canonical hourly grid, and the
// categorical derivations shared by all sources.
package transform

import (
	"fmt"

	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
)

// ConvertFunc is a pure, deterministic per-value unit conversion.
type ConvertFunc func(float64) float64

// conversions are the declared unit standardizations a manifest may
// reference. All are strictly increasing, so a column's valid range
// maps through them unchanged in order.
var conversions = map[string]ConvertFunc{
	"fahrenheit_to_celsius": func(v float64) float64 { return (v - 32) * 5 / 9 },
	"kmh_to_ms":             func(v float64) float64 { return v / 3.6 },
	"mph_to_ms":             func(v float64) float64 { return v * 0.44704 },
	"mgm3_to_ugm3":          func(v float64) float64 { return v * 1000 },
	"bar_to_hpa":            func(v float64) float64 { return v * 1000 },
	"kpa_to_hpa":            func(v float64) float64 { return v * 10 },
	"fraction_to_index":     func(v float64) float64 { return v * 100 },
}

// Conversion returns the named conversion function.
func Conversion(name string) (ConvertFunc, bool) {
	f, ok := conversions[name]
	return f, ok
}

// ConvertedRange maps a column's declared valid range through its
// conversion, yielding the range its values satisfy after
// transformation. Columns without a conversion return the declared
// range unchanged; columns without a range return nil.
func ConvertedRange(p dataset.ColumnPolicy) (*dataset.Range, error) {
	if p.Range == nil {
		return nil, nil
	}
	if p.Convert == "" {
		r := *p.Range
		return &r, nil
	}
	f, ok := Conversion(p.Convert)
	if !ok {
		return nil, fmt.Errorf("%w: column %q references unknown conversion %q",
			dataset.ErrInvalidRangeConfig, p.Name, p.Convert)
	}
	return &dataset.Range{Min: f(p.Range.Min), Max: f(p.Range.Max)}, nil
}
