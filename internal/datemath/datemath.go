// Package datemath holds the calendar-day arithmetic used by the view engine.
// Every function returns a new time.Time in the location of its input.
package datemath

import "time"

// DateKeyLayout is the layout produced by DateKey.
const DateKeyLayout = "2006-01-02"

// Midnight returns the start of t's calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns the Monday of the week containing t, at midnight.
func WeekStart(t time.Time) time.Time {
	day := Midnight(t)
	back := int(day.Weekday()) - 1
	if day.Weekday() == time.Sunday {
		back = 6
	}
	return day.AddDate(0, 0, -back)
}

// DateKey encodes t's calendar day as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// SameDay reports whether a and b fall on the same calendar day once b is
// viewed in a's location.
func SameDay(a, b time.Time) bool {
	return DateKey(a) == DateKey(b.In(a.Location()))
}

// FirstOfMonth returns midnight of the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// DaysInMonth returns the length of the given month, leap years included.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths moves t by n calendar months, keeping the day of month but
// clamping it to the last day of a shorter target month
// (2024-01-31 + 1 month = 2024-02-29). The result is at midnight.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := DaysInMonth(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days and renormalizes to midnight, so DST
// transitions never leak an hour offset into the result.
func AddDays(t time.Time, n int) time.Time {
	return Midnight(t).AddDate(0, 0, n)
}
