package util

import (
	"fmt"
	"time"
)

const (
	// DisplayDateLayout is the DD/MM/YYYY form users type and read
	DisplayDateLayout = "02/01/2006"
	// StorageDateLayout is the YYYY-MM-DD form the engine works in
	StorageDateLayout = "2006-01-02"
)

// ParseDisplayDate converts a DD/MM/YYYY string into a storage-form midnight
func ParseDisplayDate(s string) (time.Time, error) {
	t, err := time.Parse(DisplayDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected DD/MM/YYYY: %w", s, err)
	}
	return t, nil
}

// ParseStorageDate parses a YYYY-MM-DD string
func ParseStorageDate(s string) (time.Time, error) {
	t, err := time.Parse(StorageDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// DisplayToStorage rewrites DD/MM/YYYY as YYYY-MM-DD
func DisplayToStorage(s string) (string, error) {
	t, err := ParseDisplayDate(s)
	if err != nil {
		return "", err
	}
	return FormatStorageDate(t), nil
}

func FormatStorageDate(t time.Time) string {
	return t.Format(StorageDateLayout)
}

func FormatDisplayDate(t time.Time) string {
	return t.Format(DisplayDateLayout)
}

// Midnight returns the calendar date of t (in t's location) as a UTC midnight
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc as a UTC midnight
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return Midnight(now)
}

// DaysBetween returns the whole calendar days from a to b (negative when b is before a)
func DaysBetween(a, b time.Time) int {
	return int(Midnight(b).Sub(Midnight(a)).Hours() / 24)
}

// AddDays adds n calendar days
func AddDays(t time.Time, n int) time.Time {
	return Midnight(t).AddDate(0, 0, n)
}

// CalculateActualDate returns the actual date for a target day in a given month,
// handling months with fewer days (e.g., day 31 in February returns Feb 28/29)
func CalculateActualDate(year int, month time.Month, targetDay int) time.Time {
	// Get last day of month by going to day 0 of next month
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	actualDay := targetDay
	if actualDay > lastDay {
		actualDay = lastDay
	}

	return time.Date(year, month, actualDay, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped moves anchor forward by n months keeping its day of month,
// clamped to the last day of shorter months
func AddMonthsClamped(anchor time.Time, n int) time.Time {
	y, m, d := anchor.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return CalculateActualDate(first.Year(), first.Month(), d)
}
