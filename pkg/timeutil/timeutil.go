// Package timeutil buckets UTC timestamps into calendar periods.
package timeutil

import (
	"fmt"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
)

// BucketStart returns the UTC start of the calendar period containing t:
// midnight for days, the ISO Monday for weeks and the 1st for months.
func BucketStart(t time.Time, unit enums.TimeUnit) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch unit {
	case enums.TimeUnitWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case enums.TimeUnitMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Add advances t by n calendar units.
func Add(t time.Time, unit enums.TimeUnit, n int) time.Time {
	switch unit {
	case enums.TimeUnitWeek:
		return t.AddDate(0, 0, 7*n)
	case enums.TimeUnitMonth:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Label renders a bucket start as a stable identifier.
func Label(start time.Time, unit enums.TimeUnit) string {
	start = start.UTC()
	switch unit {
	case enums.TimeUnitWeek:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case enums.TimeUnitMonth:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02")
	}
}

// Buckets returns the start of every bucket lying wholly inside [from, to).
// Partial periods at either end are left out.
func Buckets(from, to time.Time, unit enums.TimeUnit) []time.Time {
	if !to.After(from) {
		return nil
	}
	s := BucketStart(from, unit)
	if s.Before(from) {
		s = Add(s, unit, 1)
	}
	var out []time.Time
	for ; !Add(s, unit, 1).After(to); s = Add(s, unit, 1) {
		out = append(out, s)
	}
	return out
}
