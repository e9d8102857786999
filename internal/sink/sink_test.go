package sink

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngleee/DataAnalyticsHAW/internal/integrate"
)

const sampleCSV = "city,datetime,temperature\nberlin,2023-06-01 00:00:00,20.5\nmunich,2023-06-01 00:00:00,18.0\n"

func TestReadCSVPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	header, records, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "datetime", "temperature"}, header)
	require.Len(t, records, 2)
	assert.Equal(t, "berlin", records[0][0])
}

func TestReadCSVGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	header, records, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "datetime", "temperature"}, header)
	assert.Len(t, records, 2)
}

func TestReadCSVZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.csv.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = zw.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	header, records, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "datetime", "temperature"}, header)
	assert.Len(t, records, 2)
}

func TestFindSourceFilePrefersPlainCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.csv"), []byte(sampleCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.csv.gz"), []byte("x"), 0o644))

	path, err := FindSourceFile(dir, "weather")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "weather.csv"))

	_, err = FindSourceFile(dir, "traffic")
	assert.Error(t, err)
}

func sampleDataset() integrate.Dataset {
	ts := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	return integrate.Dataset{
		Columns: []string{"temperature", "no2"},
		Rows: []integrate.Row{
			{
				CityKey: "berlin", City: "Berlin", Lat: 52.52, Lon: 13.405,
				Timestamp: ts, Season: "summer", TimePeriod: "morning_rush",
				IsWeekday: true, IsRushHour: true,
				Values: map[string]float64{"temperature": 21.5},
			},
		},
	}
}

func TestWriteDatasetCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "unified.csv")
	require.NoError(t, WriteDatasetCSV(path, sampleDataset()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	header := rows[0]
	assert.Equal(t, "city_key", header[0])
	assert.Contains(t, header, "temperature")
	assert.Contains(t, header, "no2")

	rec := rows[1]
	assert.Equal(t, "berlin", rec[0])
	assert.Equal(t, "true", rec[7])

	idx := map[string]int{}
	for i, h := range header {
		idx[h] = i
	}
	assert.Equal(t, "21.5", rec[idx["temperature"]])
	assert.Equal(t, "", rec[idx["no2"]], "missing value is an empty cell")
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	require.NoError(t, WriteQualityReport(path, NewQualityReport()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.json", entries[0].Name())
}

func TestQualityReportRoundTrip(t *testing.T) {
	report := NewQualityReport()
	require.NotEmpty(t, report.RunID)
	report.Sources["weather"] = SourceReport{
		File:      "weather.csv",
		Clean:     map[string]int64{"outliers_clipped": 1},
		Normalize: map[string]int64{"rows_read": 10},
		Transform: map[string]int64{"rows_out": 9},
	}
	report.Integration = IntegrationReport{
		CommonCities: []string{"berlin"},
		RowsUnified:  9,
	}

	path := filepath.Join(t.TempDir(), "quality_report.json")
	require.NoError(t, WriteQualityReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got QualityReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, int64(1), got.Sources["weather"].Clean["outliers_clipped"])
	assert.Equal(t, []string{"berlin"}, got.Integration.CommonCities)
}

func TestFeatureRecordMapping(t *testing.T) {
	d := sampleDataset()
	d.Rows[0].Values["temperature_lag_1h"] = 20.0

	rec := ToFeatureRecord(d.Rows[0])
	assert.Equal(t, "berlin", rec.CityKey)
	require.NotNil(t, rec.Temperature)
	assert.Equal(t, 21.5, *rec.Temperature)
	assert.Nil(t, rec.NO2, "missing stays nil, never a sentinel")
	require.NotNil(t, rec.TempLag1h)
	assert.Equal(t, 20.0, *rec.TempLag1h)
	assert.Equal(t, d.Rows[0].Timestamp.Unix(), rec.Timestamp)
}

func TestWriteFeatureParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.parquet")
	require.NoError(t, WriteFeatureParquet(path, sampleDataset()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
