package transform

import "time"

// Categorical derivations are pure functions of the (already
// timezone-normalized) timestamp, independent of source. They are
// attached once, on the unified table, so identical derived columns
// never collide at merge time.

// Season buckets by fixed month ranges.
func Season(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

// IsWeekday reports Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsNight reports hours before 06:00 or from 22:00.
func IsNight(t time.Time) bool {
	h := t.Hour()
	return h < 6 || h >= 22
}

// RushHours holds the two configured rush-hour ranges, each an
// inclusive [from, to] hour pair.
type RushHours struct {
	Morning [2]int
	Evening [2]int
}

// DefaultRushHours matches the traffic collectors' manifest: 07-09
// and 17-19 local time.
func DefaultRushHours() RushHours {
	return RushHours{Morning: [2]int{7, 9}, Evening: [2]int{17, 19}}
}

// IsRushHour reports whether the hour falls in either configured
// rush-hour range.
func (r RushHours) IsRushHour(t time.Time) bool {
	h := t.Hour()
	return (h >= r.Morning[0] && h <= r.Morning[1]) || (h >= r.Evening[0] && h <= r.Evening[1])
}

// TimePeriod buckets the day into the five analysis periods.
func TimePeriod(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 6 && h < 10:
		return "morning_rush"
	case h >= 10 && h < 16:
		return "midday"
	case h >= 16 && h < 20:
		return "evening_rush"
	case h >= 20 && h < 23:
		return "evening"
	default:
		return "night"
	}
}
