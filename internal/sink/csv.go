package sink

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/youngleee/DataAnalyticsHAW/internal/integrate"
)

// identityColumns lead every CSV artifact, before the measurement and
// feature columns.
var identityColumns = []string{
	"city_key", "city", "lat", "lon", "datetime",
	"season", "time_period", "is_weekday", "is_night", "is_rush_hour",
}

// WriteDatasetCSV writes the dataset with all of its columns,
// identity first, then measurements and features in dataset order.
// Missing values are empty cells.
func WriteDatasetCSV(path string, d integrate.Dataset) error {
	return atomicWrite(path, func(f *os.File) error {
		w := csv.NewWriter(f)

		header := append(append([]string{}, identityColumns...), d.Columns...)
		if err := w.Write(header); err != nil {
			return err
		}

		record := make([]string, len(header))
		for _, r := range d.Rows {
			record[0] = r.CityKey
			record[1] = r.City
			record[2] = strconv.FormatFloat(r.Lat, 'f', 4, 64)
			record[3] = strconv.FormatFloat(r.Lon, 'f', 4, 64)
			record[4] = r.Timestamp.Format(time.RFC3339)
			record[5] = r.Season
			record[6] = r.TimePeriod
			record[7] = strconv.FormatBool(r.IsWeekday)
			record[8] = strconv.FormatBool(r.IsNight)
			record[9] = strconv.FormatBool(r.IsRushHour)
			for i, col := range d.Columns {
				if v, ok := r.Value(col); ok {
					record[len(identityColumns)+i] = strconv.FormatFloat(v, 'g', -1, 64)
				} else {
					record[len(identityColumns)+i] = ""
				}
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// WritePerCityCSVs writes one <city_key>.csv per city into dir, each
// carrying that city's slice of the dataset with the full column set.
func WritePerCityCSVs(dir string, d integrate.Dataset) error {
	for city, rows := range d.ByCity() {
		sub := integrate.Dataset{Rows: rows, Columns: d.Columns}
		if err := WriteDatasetCSV(filepath.Join(dir, city+".csv"), sub); err != nil {
			return err
		}
	}
	return nil
}
