package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by every tool and by the backend.
const DateLayout = "2006-01-02"

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// IsDate reports whether value is a real YYYY-MM-DD calendar date.
func IsDate(value string) bool {
	if !datePattern.MatchString(value) {
		return false
	}
	_, err := time.Parse(DateLayout, value)
	return err == nil
}

// IsClock reports whether value is a 24-hour H:MM or HH:MM time.
func IsClock(value string) bool {
	return clockPattern.MatchString(value)
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, newError("", fmt.Sprintf("Некорректная дата: %s", value))
	}
	return d, nil
}

// ValidateFutureDate reports whether date is today or later, comparing local
// midnights in now's location. Unparseable dates are never in the future.
func ValidateFutureDate(date string, now time.Time) bool {
	d, err := ParseDate(date, now.Location())
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return !d.Before(today)
}

// ValidateTimeRange reports whether to is strictly later than from. Both are HH:MM.
func ValidateTimeRange(from, to string) bool {
	fromMinutes, ok := minutesSinceMidnight(from)
	if !ok {
		return false
	}
	toMinutes, ok := minutesSinceMidnight(to)
	if !ok {
		return false
	}
	return toMinutes > fromMinutes
}

// NormalizeClock pads the hour of an H:MM time so it compares equal to the
// backend's HH:MM form. Values that are not clock times are returned as is.
func NormalizeClock(value string) string {
	minutes, ok := minutesSinceMidnight(value)
	if !ok {
		return value
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// FormatDateTimeForBackend joins a date and a time into the backend's local
// datetime form "{date}T{time}:00". No timezone conversion is applied.
func FormatDateTimeForBackend(date, clock string) string {
	return fmt.Sprintf("%sT%s:00", date, clock)
}

func minutesSinceMidnight(value string) (int, bool) {
	if !IsClock(value) {
		return 0, false
	}
	hh, mm, _ := strings.Cut(value, ":")
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}
