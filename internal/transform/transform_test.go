package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
)

func utcHour(d, h int) time.Time {
	return time.Date(2023, 6, d, h, 0, 0, 0, time.UTC)
}

func utcRow(city string, ts time.Time, cols map[string]float64) dataset.Row {
	r := dataset.NewRow(city, ts)
	for k, v := range cols {
		r.Set(k, v)
	}
	return r
}

func windowConfig() Config {
	return Config{
		Start:    time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2023, 6, 30, 23, 0, 0, 0, time.UTC),
		Location: time.UTC,
	}
}

func TestTransformAppliesConversions(t *testing.T) {
	m := dataset.SourceManifest{
		Name:             "weather",
		NativeResolution: dataset.ResolutionHourly,
		Timestamps:       dataset.TimestampsUTC,
		Columns: []dataset.ColumnPolicy{
			{Name: "wind_speed", Convert: "kmh_to_ms"},
			{Name: "temperature"},
		},
	}
	table := dataset.NewTable("weather")
	table.Append(utcRow("berlin", utcHour(1, 0), map[string]float64{"wind_speed": 36, "temperature": 20}))

	out, excluded, metrics, err := Transform(m, windowConfig(), table)
	require.NoError(t, err)
	assert.Empty(t, excluded)
	require.Equal(t, 1, out.Len())

	v, _ := out.Rows[0].Value("wind_speed")
	assert.InDelta(t, 10, v, 1e-9)
	v, _ = out.Rows[0].Value("temperature")
	assert.Equal(t, 20.0, v, "columns without a conversion pass through")
	assert.Equal(t, int64(1), metrics.Converted)
}

func TestTransformFiltersWindow(t *testing.T) {
	m := dataset.SourceManifest{
		Name:             "weather",
		NativeResolution: dataset.ResolutionHourly,
		Timestamps:       dataset.TimestampsUTC,
		Columns:          []dataset.ColumnPolicy{{Name: "temperature"}},
	}
	table := dataset.NewTable("weather")
	table.Append(utcRow("berlin", time.Date(2023, 5, 31, 23, 0, 0, 0, time.UTC), map[string]float64{"temperature": 1}))
	table.Append(utcRow("berlin", utcHour(1, 0), map[string]float64{"temperature": 2}))
	table.Append(utcRow("berlin", time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), map[string]float64{"temperature": 3}))

	out, _, metrics, err := Transform(m, windowConfig(), table)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	v, _ := out.Rows[0].Value("temperature")
	assert.Equal(t, 2.0, v)
	assert.Equal(t, int64(2), metrics.OutOfRange)
}

func TestTransformBroadcastsDailyToHourly(t *testing.T) {
	m := dataset.SourceManifest{
		Name:             "weather",
		NativeResolution: dataset.ResolutionDaily,
		Timestamps:       dataset.TimestampsUTC,
		Columns:          []dataset.ColumnPolicy{{Name: "temperature"}},
	}
	table := dataset.NewTable("weather")
	table.Append(utcRow("berlin", utcHour(15, 0), map[string]float64{"temperature": 18}))

	out, _, metrics, err := Transform(m, windowConfig(), table)
	require.NoError(t, err)
	require.Equal(t, 24, out.Len(), "one row per hourly slot of the day")
	assert.Equal(t, int64(24), metrics.Broadcast)

	for i, r := range out.Rows {
		assert.Equal(t, utcHour(15, i), r.Timestamp)
		v, ok := r.Value("temperature")
		require.True(t, ok)
		assert.Equal(t, 18.0, v, "broadcast copies, never interpolates")
	}
}

func TestTransformExcludesCityWithLargeGap(t *testing.T) {
	m := dataset.SourceManifest{
		Name:             "traffic",
		NativeResolution: dataset.ResolutionHourly,
		Timestamps:       dataset.TimestampsUTC,
		MaxGapHours:      72,
		Columns:          []dataset.ColumnPolicy{{Name: "traffic_index"}},
	}
	table := dataset.NewTable("traffic")
	// Berlin has a 96h hole; Munich is continuous.
	table.Append(utcRow("berlin", utcHour(1, 0), map[string]float64{"traffic_index": 10}))
	table.Append(utcRow("berlin", utcHour(5, 0), map[string]float64{"traffic_index": 20}))
	table.Append(utcRow("munich", utcHour(1, 0), map[string]float64{"traffic_index": 30}))
	table.Append(utcRow("munich", utcHour(1, 1), map[string]float64{"traffic_index": 31}))

	out, excluded, metrics, err := Transform(m, windowConfig(), table)
	require.NoError(t, err)
	assert.Equal(t, []string{"berlin"}, excluded)
	assert.Equal(t, int64(1), metrics.CitiesExcluded)
	assert.Equal(t, []string{"munich"}, out.Cities())
}

func TestTransformGapAtLimitIsKept(t *testing.T) {
	m := dataset.SourceManifest{
		Name:             "traffic",
		NativeResolution: dataset.ResolutionHourly,
		Timestamps:       dataset.TimestampsUTC,
		MaxGapHours:      72,
		Columns:          []dataset.ColumnPolicy{{Name: "traffic_index"}},
	}
	table := dataset.NewTable("traffic")
	table.Append(utcRow("berlin", utcHour(1, 0), map[string]float64{"traffic_index": 10}))
	table.Append(utcRow("berlin", utcHour(4, 0), map[string]float64{"traffic_index": 20})) // exactly 72h

	out, excluded, _, err := Transform(m, windowConfig(), table)
	require.NoError(t, err)
	assert.Empty(t, excluded)
	assert.Equal(t, 2, out.Len())
}

func TestTransformLocalTimestampsOnGrid(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	m := dataset.SourceManifest{
		Name:             "traffic",
		NativeResolution: dataset.ResolutionHourly,
		Timestamps:       dataset.TimestampsLocal,
		Columns:          []dataset.ColumnPolicy{{Name: "traffic_index"}},
	}
	// Naive 12:00, carried as a UTC instant by the normalizer.
	table := dataset.NewTable("traffic")
	table.Append(utcRow("berlin", utcHour(1, 12), map[string]float64{"traffic_index": 50}))

	cfg := Config{
		Start:    time.Date(2023, 6, 1, 0, 0, 0, 0, loc),
		End:      time.Date(2023, 6, 30, 23, 0, 0, 0, loc),
		Location: loc,
	}
	out, _, _, err := Transform(m, cfg, table)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	lt := out.Rows[0].Timestamp.In(loc)
	assert.Equal(t, 12, lt.Hour(), "naive noon means local noon")
	assert.Equal(t, time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC), out.Rows[0].Timestamp.UTC())
}

func TestTransformDedupesCollapsedSlots(t *testing.T) {
	m := dataset.SourceManifest{
		Name:             "traffic",
		NativeResolution: dataset.ResolutionHourly,
		Timestamps:       dataset.TimestampsUTC,
		Columns:          []dataset.ColumnPolicy{{Name: "traffic_index"}},
	}
	table := dataset.NewTable("traffic")
	table.Append(utcRow("berlin", time.Date(2023, 6, 1, 12, 10, 0, 0, time.UTC), map[string]float64{"traffic_index": 1}))
	table.Append(utcRow("berlin", time.Date(2023, 6, 1, 12, 50, 0, 0, time.UTC), map[string]float64{"traffic_index": 2}))

	out, _, metrics, err := Transform(m, windowConfig(), table)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len(), "both snap to 12:00; first wins")
	v, _ := out.Rows[0].Value("traffic_index")
	assert.Equal(t, 1.0, v)
	assert.Equal(t, int64(1), metrics.DedupedOnGrid)
}
