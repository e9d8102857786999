package feature

import (
	"math"

	"github.com/youngleee/DataAnalyticsHAW/internal/integrate"
)

var timeColumns = []string{
	"year", "month", "day", "hour", "day_of_week", "day_of_year",
	"hour_sin", "hour_cos",
	"day_of_year_sin", "day_of_year_cos",
	"month_sin", "month_cos",
	"day_of_week_sin", "day_of_week_cos",
}

// deriveTime fills the calendar components and their cyclical
// encodings. Sine/cosine pairs keep hour 23 adjacent to hour 0 and
// December adjacent to January, which plain integers do not.
func deriveTime(r *integrate.Row) {
	t := r.Timestamp
	hour := float64(t.Hour())
	doy := float64(t.YearDay())
	month := float64(int(t.Month()))
	dow := float64(int(t.Weekday()))

	r.Set("year", float64(t.Year()))
	r.Set("month", month)
	r.Set("day", float64(t.Day()))
	r.Set("hour", hour)
	r.Set("day_of_week", dow)
	r.Set("day_of_year", doy)

	r.Set("hour_sin", math.Sin(2*math.Pi*hour/24))
	r.Set("hour_cos", math.Cos(2*math.Pi*hour/24))
	r.Set("day_of_year_sin", math.Sin(2*math.Pi*doy/365.25))
	r.Set("day_of_year_cos", math.Cos(2*math.Pi*doy/365.25))
	r.Set("month_sin", math.Sin(2*math.Pi*month/12))
	r.Set("month_cos", math.Cos(2*math.Pi*month/12))
	r.Set("day_of_week_sin", math.Sin(2*math.Pi*dow/7))
	r.Set("day_of_week_cos", math.Cos(2*math.Pi*dow/7))
}
