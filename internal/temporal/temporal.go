// Package temporal provides calendar date arithmetic for the eligibility
// engine. All dates are treated as naive calendar dates: times are
// normalized to UTC midnight before any comparison and no time zone
// conversion is performed.
package temporal

import (
	"math"
	"time"
)

// DateOnly normalizes a time to UTC midnight, discarding the clock portion
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns the number of whole calendar months from one date to
// a later date. The count is consistent with AddMonths: for any date d and
// integer n, MonthsBetween(d, AddMonths(d, n)) == n.
func MonthsBetween(from, to time.Time) int {
	from, to = DateOnly(from), DateOnly(to)
	if to.Before(from) {
		return -MonthsBetween(to, from)
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	return months
}

// DaysBetween returns the ceiling of the calendar difference in days
func DaysBetween(from, to time.Time) int {
	d := DateOnly(to).Sub(DateOnly(from))
	return int(math.Ceil(d.Hours() / 24))
}

// AddMonths advances a date by n calendar months. Overflow past a shorter
// month normalizes forward (Jan 31 + 1 month is Mar 2 or Mar 3), matching
// time.Time.AddDate and keeping MonthsBetween round-trip consistent.
func AddMonths(d time.Time, n int) time.Time {
	return DateOnly(d).AddDate(0, n, 0)
}

// AddYears advances a date by n calendar years
func AddYears(d time.Time, n int) time.Time {
	return DateOnly(d).AddDate(n, 0, 0)
}

// YearsBetween returns the number of whole calendar years from one date to a
// later date (a person's age, for birth dates)
func YearsBetween(from, to time.Time) int {
	return MonthsBetween(from, to) / 12
}
