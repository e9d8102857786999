package integrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
	"github.com/youngleee/DataAnalyticsHAW/internal/transform"
)

func hour(h int) time.Time {
	return time.Date(2023, 6, 1, h, 0, 0, 0, time.UTC)
}

func sourceTable(source string, col string, cities []string, hours []int) dataset.Table {
	t := dataset.NewTable(source)
	for _, city := range cities {
		for _, h := range hours {
			r := dataset.NewRow(city, hour(h))
			r.Set(col, float64(h))
			t.Append(r)
		}
	}
	t.SortByCityTime()
	return t
}

func manifests(t *testing.T, cols map[string]string) dataset.Manifests {
	t.Helper()
	ms := make(dataset.Manifests)
	for source, col := range cols {
		ms[source] = dataset.SourceManifest{
			Name:    source,
			Columns: []dataset.ColumnPolicy{{Name: col}},
		}
	}
	require.NoError(t, ms.Validate())
	return ms
}

func defaultConfig() Config {
	return Config{
		Registry:  dataset.DefaultRegistry(),
		RushHours: transform.DefaultRushHours(),
	}
}

func TestCommonCitiesIsExactIntersection(t *testing.T) {
	ms := manifests(t, map[string]string{"weather": "temperature", "air_quality": "no2", "traffic": "traffic_index"})
	tables := map[string]dataset.Table{
		"weather":     sourceTable("weather", "temperature", []string{"berlin", "munich", "hamburg"}, []int{0}),
		"traffic":     sourceTable("traffic", "traffic_index", []string{"berlin", "munich"}, []int{0}),
		"air_quality": sourceTable("air_quality", "no2", []string{"berlin", "munich", "cologne"}, []int{0}),
	}

	out, metrics, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err)
	assert.Equal(t, []string{"berlin", "munich"}, metrics.CommonCities)
	assert.Equal(t, []string{"berlin", "munich"}, out.Cities())
	assert.Equal(t, []string{"hamburg"}, metrics.DroppedCities["weather"])
	assert.Equal(t, []string{"cologne"}, metrics.DroppedCities["air_quality"])
	assert.Empty(t, metrics.DroppedCities["traffic"])
}

func TestIntegrateInnerJoinsOnTimestamp(t *testing.T) {
	ms := manifests(t, map[string]string{"weather": "temperature", "traffic": "traffic_index"})
	tables := map[string]dataset.Table{
		"weather": sourceTable("weather", "temperature", []string{"berlin"}, []int{0, 1, 2}),
		"traffic": sourceTable("traffic", "traffic_index", []string{"berlin"}, []int{1, 2, 3}),
	}

	out, metrics, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err)
	require.Equal(t, int64(2), metrics.RowsUnified)

	for i, h := range []int{1, 2} {
		r := out.Rows[i]
		assert.Equal(t, hour(h), r.Timestamp)
		_, ok := r.Value("temperature")
		assert.True(t, ok)
		_, ok = r.Value("traffic_index")
		assert.True(t, ok)
	}
}

func TestIntegrateCollisionIsFatal(t *testing.T) {
	ms := manifests(t, map[string]string{"station_a": "no2", "station_b": "no2"})
	tables := map[string]dataset.Table{
		"station_a": sourceTable("station_a", "no2", []string{"berlin"}, []int{0}),
		"station_b": sourceTable("station_b", "no2", []string{"berlin"}, []int{0}),
	}

	_, _, err := Integrate(ms, defaultConfig(), tables)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousColumnCollision)
}

func TestIntegratePrefixDisambiguates(t *testing.T) {
	ms := manifests(t, map[string]string{"station_a": "no2", "station_b": "no2"})
	b := ms["station_b"]
	b.Prefix = "roadside"
	ms["station_b"] = b

	tables := map[string]dataset.Table{
		"station_a": sourceTable("station_a", "no2", []string{"berlin"}, []int{0}),
		"station_b": sourceTable("station_b", "no2", []string{"berlin"}, []int{0}),
	}

	out, _, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Contains(t, out.Columns, "no2")
	assert.Contains(t, out.Columns, "roadside_no2")

	_, ok := out.Rows[0].Value("no2")
	assert.True(t, ok)
	_, ok = out.Rows[0].Value("roadside_no2")
	assert.True(t, ok)
}

func TestIntegrateEmptyIntersectionYieldsZeroRows(t *testing.T) {
	ms := manifests(t, map[string]string{"weather": "temperature", "traffic": "traffic_index"})
	tables := map[string]dataset.Table{
		"weather": sourceTable("weather", "temperature", []string{"berlin"}, []int{0}),
		"traffic": sourceTable("traffic", "traffic_index", []string{"munich"}, []int{0}),
	}

	out, metrics, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err, "empty intersection degrades, it does not fail")
	assert.Empty(t, out.Rows)
	assert.Empty(t, metrics.CommonCities)
	assert.NotEmpty(t, out.Columns, "schema survives for consumers")
}

func TestIntegrateIsDeterministic(t *testing.T) {
	ms := manifests(t, map[string]string{"weather": "temperature", "traffic": "traffic_index"})
	tables := map[string]dataset.Table{
		"weather": sourceTable("weather", "temperature", []string{"munich", "berlin"}, []int{2, 0, 1}),
		"traffic": sourceTable("traffic", "traffic_index", []string{"berlin", "munich"}, []int{1, 2, 0}),
	}

	first, m1, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err)
	second, m2, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err)

	assert.Equal(t, m1.CommonCities, m2.CommonCities)
	assert.Equal(t, m1.RowsUnified, m2.RowsUnified)
	assert.Equal(t, first, second)

	// Ordered by (city, timestamp).
	for i := 1; i < len(first.Rows); i++ {
		a, b := first.Rows[i-1], first.Rows[i]
		ordered := a.CityKey < b.CityKey ||
			(a.CityKey == b.CityKey && a.Timestamp.Before(b.Timestamp))
		assert.True(t, ordered, "row %d out of order", i)
	}
}

func TestByCityPartitionsMatchUnified(t *testing.T) {
	ms := manifests(t, map[string]string{"weather": "temperature", "traffic": "traffic_index"})
	tables := map[string]dataset.Table{
		"weather": sourceTable("weather", "temperature", []string{"berlin", "munich"}, []int{0, 1, 2}),
		"traffic": sourceTable("traffic", "traffic_index", []string{"berlin", "munich"}, []int{0, 1, 2}),
	}

	out, metrics, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err)

	byCity := out.ByCity()
	require.Len(t, byCity, len(metrics.CommonCities), "one sub-table per common city")

	// Each partition holds exactly that city's slice of the unified
	// rows, in the same order.
	for _, city := range metrics.CommonCities {
		var want []Row
		for _, r := range out.Rows {
			if r.CityKey == city {
				want = append(want, r)
			}
		}
		assert.Equal(t, want, byCity[city], "city %s", city)
	}
}

func TestIntegrateAttachesContext(t *testing.T) {
	ms := manifests(t, map[string]string{"weather": "temperature"})
	tables := map[string]dataset.Table{
		// 2023-06-01 is a Thursday; hour 8 is morning rush.
		"weather": sourceTable("weather", "temperature", []string{"munich"}, []int{8}),
	}

	out, _, err := Integrate(ms, defaultConfig(), tables)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)

	r := out.Rows[0]
	assert.Equal(t, "Munich", r.City)
	assert.InDelta(t, 48.1351, r.Lat, 1e-9)
	assert.Equal(t, "summer", r.Season)
	assert.Equal(t, "morning_rush", r.TimePeriod)
	assert.True(t, r.IsWeekday)
	assert.True(t, r.IsRushHour)
	assert.False(t, r.IsNight)
}
