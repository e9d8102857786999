package transform

import (
	"time"
)

// Localize interprets the civil fields of a naive timestamp (carried
// as a UTC instant by the normalizer) as local time in loc.
//
// Daylight-saving tie-breaks, chosen once and applied everywhere:
//   - Ambiguous times during the fall-back transition resolve to the
//     standard-time offset (for Europe/Berlin: CET, the later of the
//     two instants).
//   - Non-existent times during the spring-forward transition are
//     shifted forward by the width of the gap.
func Localize(naive time.Time, loc *time.Location) time.Time {
	y, mo, d := naive.Date()
	h, mi, s := naive.Clock()

	// Candidate instants: subtract each UTC offset in effect around
	// the target and keep those that round-trip to the same wall
	// clock.
	wall := time.Date(y, mo, d, h, mi, s, 0, time.UTC)
	var matches []time.Time
	for _, off := range probeOffsets(wall, loc) {
		cand := wall.Add(-time.Duration(off) * time.Second)
		ly, lmo, ld := cand.In(loc).Date()
		lh, lmi, ls := cand.In(loc).Clock()
		if ly == y && lmo == mo && ld == d && lh == h && lmi == mi && ls == s {
			matches = append(matches, cand)
		}
	}

	switch len(matches) {
	case 0:
		// Non-existent local time: time.Date normalizes forward
		// across the gap.
		return time.Date(y, mo, d, h, mi, s, 0, loc)
	case 1:
		return matches[0]
	}

	// Ambiguous: prefer the standard-time (non-DST) instant. With
	// two matches the later one is the standard-time repeat; fall
	// back to it if neither reports DST.
	best := matches[0]
	for _, cand := range matches[1:] {
		if cand.After(best) {
			best = cand
		}
	}
	for _, cand := range matches {
		if !cand.In(loc).IsDST() {
			return cand
		}
	}
	return best
}

// probeOffsets returns the distinct UTC offsets (seconds) in effect
// in loc within a day of t, covering both sides of a DST transition.
func probeOffsets(t time.Time, loc *time.Location) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, delta := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		_, off := t.Add(delta).In(loc).Zone()
		if _, ok := seen[off]; !ok {
			seen[off] = struct{}{}
			out = append(out, off)
		}
	}
	return out
}

// TruncateHour snaps an instant to the top of its hour in loc.
func TruncateHour(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
}
