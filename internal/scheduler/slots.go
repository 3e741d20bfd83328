package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// Weekdays is the number of teaching days in a week (0..4).
const Weekdays = 5

// DayNames labels weekday indexes for presentation.
var DayNames = [Weekdays]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday"}

// Clock is a time of day expressed in minutes after midnight.
type Clock int

// NewClock builds a Clock from hour and minute components.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" or "HH:MM:SS" (the PostgreSQL TIME text form).
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	// lib/pq may hand TIME columns back as full timestamps
	if idx := strings.LastIndex(raw, "T"); idx >= 0 {
		raw = raw[idx+1:]
	}
	if idx := strings.IndexAny(raw, "Z+"); idx >= 0 {
		raw = raw[:idx]
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return NewClock(hour, minute), nil
}

// String renders the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// SQL renders the clock in the HH:MM:SS form stored in TIME columns.
func (c Clock) SQL() string {
	return c.String() + ":00"
}

// TimeSlot is a half-open [Start, End) teaching interval.
type TimeSlot struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// String renders the slot as HH:MM-HH:MM.
func (s TimeSlot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// Catalog is the fixed set of two-hour slots offered on every weekday.
var Catalog = []TimeSlot{
	{Start: NewClock(8, 0), End: NewClock(10, 0)},
	{Start: NewClock(10, 0), End: NewClock(12, 0)},
	{Start: NewClock(12, 0), End: NewClock(14, 0)},
	{Start: NewClock(14, 0), End: NewClock(16, 0)},
	{Start: NewClock(16, 0), End: NewClock(18, 0)},
}

// CatalogIndex returns the position of slot in the catalog or -1.
func CatalogIndex(slot TimeSlot) int {
	for i, candidate := range Catalog {
		if candidate == slot {
			return i
		}
	}
	return -1
}

// ValidDay reports whether day is a teaching weekday index.
func ValidDay(day int) bool {
	return day >= 0 && day < Weekdays
}
