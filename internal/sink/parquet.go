package sink

import (
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/youngleee/DataAnalyticsHAW/internal/integrate"
)

// FeatureRecord is the fixed schema of the feature Parquet artifact,
// covering the default manifest's measurement columns and the default
// feature set. Runs with custom manifests or feature specs carry
// their extra columns in the CSV artifact only; the Parquet schema
// stays stable for downstream consumers.
//
// Measurements and derived features are optional: absence in the
// value map becomes a Parquet null, never a sentinel.
type FeatureRecord struct {
	CityKey   string  `parquet:"city_key"`
	City      string  `parquet:"city"`
	Lat       float64 `parquet:"lat"`
	Lon       float64 `parquet:"lon"`
	Timestamp int64   `parquet:"timestamp"`

	Season     string `parquet:"season"`
	TimePeriod string `parquet:"time_period"`
	IsWeekday  bool   `parquet:"is_weekday"`
	IsNight    bool   `parquet:"is_night"`
	IsRushHour bool   `parquet:"is_rush_hour"`

	Temperature     *float64 `parquet:"temperature,optional"`
	Humidity        *float64 `parquet:"humidity,optional"`
	Precipitation   *float64 `parquet:"precipitation,optional"`
	Snow            *float64 `parquet:"snow,optional"`
	WindSpeed       *float64 `parquet:"wind_speed,optional"`
	Pressure        *float64 `parquet:"pressure,optional"`
	NO2             *float64 `parquet:"no2,optional"`
	PM10            *float64 `parquet:"pm10,optional"`
	O3              *float64 `parquet:"o3,optional"`
	TrafficIndex    *float64 `parquet:"traffic_index,optional"`
	CongestionLevel *float64 `parquet:"congestion_level,optional"`
	CurrentSpeed    *float64 `parquet:"current_speed,optional"`
	FreeFlowSpeed   *float64 `parquet:"free_flow_speed,optional"`

	HeatIndex *float64 `parquet:"heat_index,optional"`
	WindChill *float64 `parquet:"wind_chill,optional"`
	AqiAvg    *float64 `parquet:"aqi_avg,optional"`

	HourSin      *float64 `parquet:"hour_sin,optional"`
	HourCos      *float64 `parquet:"hour_cos,optional"`
	DayOfYearSin *float64 `parquet:"day_of_year_sin,optional"`
	DayOfYearCos *float64 `parquet:"day_of_year_cos,optional"`
	MonthSin     *float64 `parquet:"month_sin,optional"`
	MonthCos     *float64 `parquet:"month_cos,optional"`
	DowSin       *float64 `parquet:"day_of_week_sin,optional"`
	DowCos       *float64 `parquet:"day_of_week_cos,optional"`

	TempRollMean24h    *float64 `parquet:"temperature_roll_mean_24h,optional"`
	TempRollStd24h     *float64 `parquet:"temperature_roll_std_24h,optional"`
	TempRollMean168h   *float64 `parquet:"temperature_roll_mean_168h,optional"`
	TempRollStd168h    *float64 `parquet:"temperature_roll_std_168h,optional"`
	NO2RollMean24h     *float64 `parquet:"no2_roll_mean_24h,optional"`
	NO2RollStd24h      *float64 `parquet:"no2_roll_std_24h,optional"`
	NO2RollMean168h    *float64 `parquet:"no2_roll_mean_168h,optional"`
	NO2RollStd168h     *float64 `parquet:"no2_roll_std_168h,optional"`
	TrafficRollMean24h *float64 `parquet:"traffic_index_roll_mean_24h,optional"`
	TrafficRollStd24h  *float64 `parquet:"traffic_index_roll_std_24h,optional"`
	TrafficRollMean168 *float64 `parquet:"traffic_index_roll_mean_168h,optional"`
	TrafficRollStd168h *float64 `parquet:"traffic_index_roll_std_168h,optional"`

	TempLag1h     *float64 `parquet:"temperature_lag_1h,optional"`
	TempLag6h     *float64 `parquet:"temperature_lag_6h,optional"`
	TempLag24h    *float64 `parquet:"temperature_lag_24h,optional"`
	NO2Lag1h      *float64 `parquet:"no2_lag_1h,optional"`
	NO2Lag6h      *float64 `parquet:"no2_lag_6h,optional"`
	NO2Lag24h     *float64 `parquet:"no2_lag_24h,optional"`
	TrafficLag1h  *float64 `parquet:"traffic_index_lag_1h,optional"`
	TrafficLag6h  *float64 `parquet:"traffic_index_lag_6h,optional"`
	TrafficLag24h *float64 `parquet:"traffic_index_lag_24h,optional"`

	WindNO2Interaction      *float64 `parquet:"wind_no2_interaction,optional"`
	HumidityTempInteraction *float64 `parquet:"humidity_temp_interaction,optional"`
}

// ToFeatureRecord maps one unified row onto the fixed schema.
func ToFeatureRecord(r integrate.Row) FeatureRecord {
	opt := func(col string) *float64 {
		if v, ok := r.Value(col); ok {
			out := v
			return &out
		}
		return nil
	}
	return FeatureRecord{
		CityKey:    r.CityKey,
		City:       r.City,
		Lat:        r.Lat,
		Lon:        r.Lon,
		Timestamp:  r.Timestamp.Unix(),
		Season:     r.Season,
		TimePeriod: r.TimePeriod,
		IsWeekday:  r.IsWeekday,
		IsNight:    r.IsNight,
		IsRushHour: r.IsRushHour,

		Temperature:     opt("temperature"),
		Humidity:        opt("humidity"),
		Precipitation:   opt("precipitation"),
		Snow:            opt("snow"),
		WindSpeed:       opt("wind_speed"),
		Pressure:        opt("pressure"),
		NO2:             opt("no2"),
		PM10:            opt("pm10"),
		O3:              opt("o3"),
		TrafficIndex:    opt("traffic_index"),
		CongestionLevel: opt("congestion_level"),
		CurrentSpeed:    opt("current_speed"),
		FreeFlowSpeed:   opt("free_flow_speed"),

		HeatIndex: opt("heat_index"),
		WindChill: opt("wind_chill"),
		AqiAvg:    opt("aqi_avg"),

		HourSin:      opt("hour_sin"),
		HourCos:      opt("hour_cos"),
		DayOfYearSin: opt("day_of_year_sin"),
		DayOfYearCos: opt("day_of_year_cos"),
		MonthSin:     opt("month_sin"),
		MonthCos:     opt("month_cos"),
		DowSin:       opt("day_of_week_sin"),
		DowCos:       opt("day_of_week_cos"),

		TempRollMean24h:    opt("temperature_roll_mean_24h"),
		TempRollStd24h:     opt("temperature_roll_std_24h"),
		TempRollMean168h:   opt("temperature_roll_mean_168h"),
		TempRollStd168h:    opt("temperature_roll_std_168h"),
		NO2RollMean24h:     opt("no2_roll_mean_24h"),
		NO2RollStd24h:      opt("no2_roll_std_24h"),
		NO2RollMean168h:    opt("no2_roll_mean_168h"),
		NO2RollStd168h:     opt("no2_roll_std_168h"),
		TrafficRollMean24h: opt("traffic_index_roll_mean_24h"),
		TrafficRollStd24h:  opt("traffic_index_roll_std_24h"),
		TrafficRollMean168: opt("traffic_index_roll_mean_168h"),
		TrafficRollStd168h: opt("traffic_index_roll_std_168h"),

		TempLag1h:     opt("temperature_lag_1h"),
		TempLag6h:     opt("temperature_lag_6h"),
		TempLag24h:    opt("temperature_lag_24h"),
		NO2Lag1h:      opt("no2_lag_1h"),
		NO2Lag6h:      opt("no2_lag_6h"),
		NO2Lag24h:     opt("no2_lag_24h"),
		TrafficLag1h:  opt("traffic_index_lag_1h"),
		TrafficLag6h:  opt("traffic_index_lag_6h"),
		TrafficLag24h: opt("traffic_index_lag_24h"),

		WindNO2Interaction:      opt("wind_no2_interaction"),
		HumidityTempInteraction: opt("humidity_temp_interaction"),
	}
}

// WriteFeatureParquet writes the feature dataset under the fixed
// schema, zstd-compressed.
func WriteFeatureParquet(path string, d integrate.Dataset) error {
	return atomicWrite(path, func(f *os.File) error {
		w := parquet.NewGenericWriter[FeatureRecord](f, parquet.Compression(&parquet.Zstd))
		buf := make([]FeatureRecord, 0, 4096)
		flush := func() error {
			if len(buf) == 0 {
				return nil
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
			return nil
		}
		for _, r := range d.Rows {
			buf = append(buf, ToFeatureRecord(r))
			if len(buf) == cap(buf) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}
		return w.Close()
	})
}
