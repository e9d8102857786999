package feature

import (
	"math"

	"github.com/youngleee/DataAnalyticsHAW/internal/integrate"
)

var compositeColumns = []string{"heat_index", "wind_chill", "aqi_avg"}

// Heat index regression coefficients (Rothfusz, metric form).
var heatIndexCoeff = [9]float64{
	-8.78469475556,
	1.61139411,
	2.33854883889,
	-0.14611605,
	-0.012308094,
	-0.0164248277778,
	0.002211732,
	0.00072546,
	-0.000003582,
}

// deriveComposites fills the apparent-temperature indicators and the
// simple pollution average. Each stays missing when its inputs are.
func deriveComposites(r *integrate.Row) {
	if t, okT := r.Value("temperature"); okT {
		if h, okH := r.Value("humidity"); okH {
			r.Set("heat_index", heatIndex(t, h))
		}
		if v, okV := r.Value("wind_speed"); okV {
			r.Set("wind_chill", windChill(t, v))
		}
	}

	var sum float64
	n := 0
	for _, col := range []string{"no2", "pm10", "o3"} {
		if v, ok := r.Value(col); ok {
			sum += v
			n++
		}
	}
	if n > 0 {
		r.Set("aqi_avg", sum/float64(n))
	}
}

// heatIndex is the metric Rothfusz regression over temperature in
// Celsius and relative humidity in percent.
func heatIndex(t, h float64) float64 {
	c := heatIndexCoeff
	return c[0] + c[1]*t + c[2]*h + c[3]*t*h +
		c[4]*t*t + c[5]*h*h +
		c[6]*t*t*h + c[7]*t*h*h + c[8]*t*t*h*h
}

// windChill applies the Environment Canada formula below 10°C with
// wind above 1.33 m/s (4.8 km/h); outside that envelope the air
// temperature stands as-is. Wind speed arrives in m/s after unit
// standardization and the formula wants km/h.
func windChill(t, v float64) float64 {
	if t >= 10 || v <= 1.33 {
		return t
	}
	kmh := v * 3.6
	p := math.Pow(kmh, 0.16)
	return 13.12 + 0.6215*t - 11.37*p + 0.3965*t*p
}
