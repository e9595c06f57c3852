package models

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// TimeRange is a half-open [StartMin, EndMin) window expressed in minutes
// from midnight.
type TimeRange struct {
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

// Valid reports whether the range is well-formed (start before end, within a
// single day). Callers reject malformed ranges before any overlap check runs.
func (r TimeRange) Valid() bool {
	return r.StartMin >= 0 && r.EndMin > r.StartMin && r.EndMin <= minutesPerDay
}

// Overlaps reports whether two half-open ranges intersect. Touching
// endpoints (a ends exactly when b starts) do not count as overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.StartMin < other.EndMin && r.EndMin > other.StartMin
}

// ParseClock converts an HH:MM string into minutes from midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hours*60 + minutes, nil
}

// FormatClock renders minutes from midnight as HH:MM.
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// Weekday names a day of the week for recurring slots.
type Weekday string

const (
	WeekdayMonday    Weekday = "MONDAY"
	WeekdayTuesday   Weekday = "TUESDAY"
	WeekdayWednesday Weekday = "WEDNESDAY"
	WeekdayThursday  Weekday = "THURSDAY"
	WeekdayFriday    Weekday = "FRIDAY"
	WeekdaySaturday  Weekday = "SATURDAY"
	WeekdaySunday    Weekday = "SUNDAY"
)

// Valid returns true when the weekday is a supported value.
func (d Weekday) Valid() bool {
	switch d {
	case WeekdayMonday, WeekdayTuesday, WeekdayWednesday, WeekdayThursday,
		WeekdayFriday, WeekdaySaturday, WeekdaySunday:
		return true
	default:
		return false
	}
}
