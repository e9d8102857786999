package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
)

func TestConversions(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"fahrenheit_to_celsius", 212, 100},
		{"kmh_to_ms", 36, 10},
		{"mph_to_ms", 100, 44.704},
		{"mgm3_to_ugm3", 0.04, 40},
		{"bar_to_hpa", 1.013, 1013},
		{"kpa_to_hpa", 101.3, 1013},
		{"fraction_to_index", 0.42, 42},
	}
	for _, tt := range tests {
		f, ok := Conversion(tt.name)
		require.True(t, ok, tt.name)
		assert.InDelta(t, tt.want, f(tt.in), 1e-9, tt.name)
	}

	_, ok := Conversion("cubits_to_meters")
	assert.False(t, ok)
}

func TestConvertedRange(t *testing.T) {
	p := dataset.ColumnPolicy{
		Name:    "wind_speed",
		Range:   &dataset.Range{Min: 0, Max: 180},
		Convert: "kmh_to_ms",
	}
	r, err := ConvertedRange(p)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.InDelta(t, 0, r.Min, 1e-9)
	assert.InDelta(t, 50, r.Max, 1e-9)
}

func TestConvertedRangePassthrough(t *testing.T) {
	p := dataset.ColumnPolicy{Name: "humidity", Range: &dataset.Range{Min: 0, Max: 100}}
	r, err := ConvertedRange(p)
	require.NoError(t, err)
	assert.Equal(t, dataset.Range{Min: 0, Max: 100}, *r)

	r, err = ConvertedRange(dataset.ColumnPolicy{Name: "no_range"})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestConvertedRangeUnknownConversion(t *testing.T) {
	p := dataset.ColumnPolicy{
		Name:    "pressure",
		Range:   &dataset.Range{Min: 0, Max: 1},
		Convert: "torr_to_hpa",
	}
	_, err := ConvertedRange(p)
	assert.ErrorIs(t, err, dataset.ErrInvalidRangeConfig)
}
