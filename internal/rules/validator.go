// Package rules implements the stateless time and policy checks applied to
// every booking and availability mutation. All validators are pure functions
// that fail fast with the specific violated rule and its concrete bound.
package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/havenmind/booking/internal/apperr"
)

const clockLayout = "15:04"

// ValidateTimeFormat accepts zero-padded HH:MM clock strings (00-23 hours,
// 00-59 minutes).
func ValidateTimeFormat(s string) error {
	if len(s) != len("HH:MM") {
		return apperr.Validation("invalid time format %q: expected HH:MM", s)
	}
	if _, err := time.Parse(clockLayout, s); err != nil {
		return apperr.Validation("invalid time format %q: expected HH:MM", s)
	}
	return nil
}

// ClockMinutes converts a validated HH:MM string to minutes since midnight.
func ClockMinutes(s string) (int, error) {
	if err := ValidateTimeFormat(s); err != nil {
		return 0, err
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h*60 + m, nil
}

func ValidateDuration(minutes int, allowed []int) error {
	for _, d := range allowed {
		if d == minutes {
			return nil
		}
	}
	parts := make([]string, 0, len(allowed))
	for _, d := range allowed {
		parts = append(parts, strconv.Itoa(d))
	}
	return apperr.RuleViolation(
		"unsupported duration %d: allowed durations are %s minutes",
		minutes, strings.Join(parts, ", "),
	)
}

// ValidateAdvanceWindow enforces the lead-time policy. A start exactly at
// now + minHours passes; one second less fails.
func ValidateAdvanceWindow(start, now time.Time, advance AdvanceBooking) error {
	lead := start.Sub(now)
	if lead < time.Duration(advance.MinHours)*time.Hour {
		return apperr.RuleViolation(
			"must be booked at least %d hours in advance", advance.MinHours,
		)
	}
	if lead > time.Duration(advance.MaxDays)*24*time.Hour {
		return apperr.RuleViolation(
			"can be booked up to %d days in advance", advance.MaxDays,
		)
	}
	return nil
}

// ValidateBusinessHours checks the local clock interval [start, start+duration)
// against the configured window. The caller supplies start already in the
// provider's timezone.
func ValidateBusinessHours(start time.Time, durationMin int, hours BusinessHours) error {
	openMin, err := ClockMinutes(hours.Start)
	if err != nil {
		return err
	}
	closeMin, err := ClockMinutes(hours.End)
	if err != nil {
		return err
	}
	startMin := start.Hour()*60 + start.Minute()
	if startMin < openMin || startMin+durationMin > closeMin {
		return apperr.RuleViolation(
			"must fall within business hours %s-%s", hours.Start, hours.End,
		)
	}
	return nil
}

func ValidateWeekendPolicy(start time.Time, weekendAllowed bool) error {
	if weekendAllowed {
		return nil
	}
	wd := start.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return apperr.RuleViolation("weekend bookings are not allowed")
	}
	return nil
}

// IntervalsOverlap is the canonical half-open overlap test used everywhere
// overlap is checked: [aStart,aEnd) overlaps [bStart,bEnd) iff
// aStart < bEnd && aEnd > bStart. Touching endpoints never overlap.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ValidateIntervalOverlap rejects overlapping HH:MM clock windows. Zero-padded
// clock strings order lexicographically, so plain string comparison applies
// the same half-open rule.
func ValidateIntervalOverlap(aStart, aEnd, bStart, bEnd string) error {
	for _, s := range []string{aStart, aEnd, bStart, bEnd} {
		if err := ValidateTimeFormat(s); err != nil {
			return err
		}
	}
	if aStart < bEnd && aEnd > bStart {
		return apperr.Conflict(
			"availability window %s-%s overlaps existing window %s-%s",
			aStart, aEnd, bStart, bEnd,
		)
	}
	return nil
}

func ValidateWindowOrder(start, end string) error {
	if err := ValidateTimeFormat(start); err != nil {
		return err
	}
	if err := ValidateTimeFormat(end); err != nil {
		return err
	}
	if start >= end {
		return apperr.Validation("start time %s must be before end time %s", start, end)
	}
	return nil
}

func ValidateDayOfWeek(day int) error {
	if day < 0 || day > 6 {
		return apperr.Validation(
			"day of week must be between 0 (Sunday) and 6 (Saturday), got %d", day,
		)
	}
	return nil
}

func ValidateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return apperr.Validation("invalid timezone: %s", tz)
	}
	return nil
}

// DateLayout is the YYYY-MM-DD layout used on the public slot endpoint.
const DateLayout = "2006-01-02"
