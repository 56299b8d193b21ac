// Package timeutil provides local-day arithmetic across user timezones.
// The engine counts streaks in the user's own calendar, so every day-boundary
// computation goes through this package rather than raw time.Time math.
// No external dependencies - uses only standard library.
package timeutil

import (
	"sync"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// zoneCache caches loaded IANA locations. time.LoadLocation reads from the
// zone database on every call, and the engine resolves the same handful of
// zones for every event.
var zoneCache sync.Map // map[string]*time.Location

// Zone resolves an IANA timezone name to a location. Empty or unknown names
// fall back to UTC; the second return value reports whether the name resolved.
func Zone(name string) (*time.Location, bool) {
	if name == "" || name == "UTC" {
		return time.UTC, name == "UTC"
	}
	if cached, ok := zoneCache.Load(name); ok {
		if cached == nil {
			return time.UTC, false
		}
		return cached.(*time.Location), true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		zoneCache.Store(name, (*time.Location)(nil))
		return time.UTC, false
	}
	zoneCache.Store(name, loc)
	return loc, true
}

// LocalDay returns the number of calendar days since the Unix epoch of the
// wall-clock date that t represents in the given zone. Unknown zones fall
// back to UTC. Two instants map to the same value exactly when they fall on
// the same local calendar day, which makes the result safe across DST
// transitions: a local day always has a well-defined date regardless of its
// length in hours.
func LocalDay(t time.Time, zone string) int {
	loc, _ := Zone(zone)
	y, m, d := t.In(loc).Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

// StartOfLocalDay returns the first instant of t's calendar day in the zone.
func StartOfLocalDay(t time.Time, zone string) time.Time {
	loc, _ := Zone(zone)
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfLocalDay returns the last instant of t's calendar day in the zone.
// Used for recovery deadlines: "end of the current local day".
func EndOfLocalDay(t time.Time, zone string) time.Time {
	loc, _ := Zone(zone)
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

// SameLocalDay reports whether two instants fall on the same calendar day in
// the zone.
func SameLocalDay(a, b time.Time, zone string) bool {
	return LocalDay(a, zone) == LocalDay(b, zone)
}

// DaysBetween returns the signed number of calendar-day boundaries crossed
// going from a to b in the zone. Positive when b is on a later local day.
func DaysBetween(a, b time.Time, zone string) int {
	return LocalDay(b, zone) - LocalDay(a, zone)
}
