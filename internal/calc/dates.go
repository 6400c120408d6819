// Package calc holds the pure derivations the academy shows on read paths:
// billing cycles, attendance expectation and streaks, and dashboard rollups.
// Nothing here performs I/O or returns errors for malformed optional data.
package calc

import "time"

// ClassDays are the weekdays the academy runs sessions on.
var ClassDays = map[time.Weekday]bool{
	time.Saturday: true,
	time.Sunday:   true,
	time.Monday:   true,
}

// Day truncates t to midnight UTC using t's own wall-clock date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// SameMonth reports whether a and b fall in the same calendar month and year.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// IsClassDay reports whether t falls on a class day.
func IsClassDay(t time.Time) bool {
	return ClassDays[t.Weekday()]
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped moves t by n calendar months and pins the day to
// min(day, last day of the target month).
func AddMonthsClamped(t time.Time, n int, day int) time.Time {
	y, m, _ := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := DaysIn(target.Year(), target.Month())
	if day < 1 {
		day = 1
	}
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
