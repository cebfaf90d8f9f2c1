// Package timeutil provides calendar helpers for statistics windows:
// day/week/month/year boundaries, ISO week lookups, date parsing and
// human readable session durations.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the layout used for dates on the command line and in cache keys.
const DateLayout = "2006-01-02"

// Date creates midnight UTC of the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns 00:00:00 of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns Monday 00:00:00 of t's week.
func StartOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(t.AddDate(0, 0, -(weekday - 1)))
}

// StartOfMonth returns the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// StartOfYear returns January 1st of t's year.
func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// WeekBounds returns the half-open [Monday, next Monday) range of ISO week
// `week` of ISO year `year`, in UTC.
func WeekBounds(year, week int) (time.Time, time.Time, error) {
	if week < 1 || week > ISOWeeksInYear(year) {
		return time.Time{}, time.Time{}, fmt.Errorf("week %d out of range for %d", week, year)
	}
	// January 4th is always in ISO week 1.
	start := StartOfWeek(Date(year, 1, 4)).AddDate(0, 0, 7*(week-1))
	return start, start.AddDate(0, 0, 7), nil
}

// MonthBounds returns the half-open range of a calendar month, in UTC.
func MonthBounds(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, fmt.Errorf("month %d out of range", month)
	}
	start := Date(year, month, 1)
	return start, start.AddDate(0, 1, 0), nil
}

// YearBounds returns the half-open range of a calendar year, in UTC.
func YearBounds(year int) (time.Time, time.Time) {
	start := Date(year, 1, 1)
	return start, start.AddDate(1, 0, 0)
}

// ISOWeeksInYear returns 52 or 53.
func ISOWeeksInYear(year int) int {
	_, w := Date(year, 12, 28).ISOWeek()
	return w
}

// FormatHours renders a duration in fractional hours as "XhY",
// where Y is whole minutes: 1.5 -> "1h30".
func FormatHours(hours float64) string {
	if hours < 0 || math.IsNaN(hours) {
		hours = 0
	}
	whole := math.Floor(hours)
	minutes := math.Floor((hours - whole) * 60)
	return fmt.Sprintf("%dh%d", int(whole), int(minutes))
}

// ParseDate parses a YYYY-MM-DD date at midnight UTC. An empty string
// yields the zero time.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// IsSameDay checks if two times are on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return t1.Year() == t2.Year() && t1.YearDay() == t2.YearDay()
}

// DaysBetween returns the number of whole days from t1 to t2.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2.In(t1.Location()))
	return int(math.Round(d2.Sub(d1).Hours() / 24))
}
