package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/havenmind/booking/internal/apperr"
)

func TestValidateTimeFormat(t *testing.T) {
	valid := []string{"00:00", "09:30", "14:05", "23:59"}
	for _, s := range valid {
		if err := ValidateTimeFormat(s); err != nil {
			t.Errorf("ValidateTimeFormat(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{"9:30", "24:00", "12:60", "12-30", "12:3", "1230", "", "ab:cd"}
	for _, s := range invalid {
		err := ValidateTimeFormat(s)
		if err == nil {
			t.Errorf("ValidateTimeFormat(%q) = nil, want error", s)
			continue
		}
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("ValidateTimeFormat(%q) kind = %v, want validation", s, apperr.KindOf(err))
		}
	}
}

func TestClockMinutes(t *testing.T) {
	m, err := ClockMinutes("09:30")
	if err != nil {
		t.Fatalf("ClockMinutes: %v", err)
	}
	if m != 570 {
		t.Fatalf("ClockMinutes(09:30) = %d, want 570", m)
	}
}

func TestValidateDuration(t *testing.T) {
	allowed := DefaultConfig().AllowedDurations
	for _, d := range allowed {
		if err := ValidateDuration(d, allowed); err != nil {
			t.Errorf("duration %d should be allowed: %v", d, err)
		}
	}

	err := ValidateDuration(45, allowed)
	if err == nil {
		t.Fatal("duration 45 should be rejected")
	}
	if !strings.Contains(err.Error(), "30, 60, 90, 120") {
		t.Fatalf("error should name the allowed set, got %q", err.Error())
	}
	if !apperr.Is(err, apperr.KindRuleViolation) {
		t.Fatalf("kind = %v, want rule_violation", apperr.KindOf(err))
	}

	err = ValidateDuration(60, []int{45, 75})
	if err == nil || !strings.Contains(err.Error(), "45, 75") {
		t.Fatalf("custom allowed set should be named, got %v", err)
	}
}

func TestValidateAdvanceWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	adv := AdvanceBooking{MinHours: 2, MaxDays: 90}

	// Exactly at the minimum boundary passes.
	if err := ValidateAdvanceWindow(now.Add(2*time.Hour), now, adv); err != nil {
		t.Fatalf("start at exactly minHours should pass: %v", err)
	}
	// One second inside the boundary fails.
	err := ValidateAdvanceWindow(now.Add(2*time.Hour-time.Second), now, adv)
	if err == nil {
		t.Fatal("start one second before minHours should fail")
	}
	if !strings.Contains(err.Error(), "at least 2 hours in advance") {
		t.Fatalf("error should carry the bound, got %q", err.Error())
	}

	if err := ValidateAdvanceWindow(now.AddDate(0, 0, 90), now, adv); err != nil {
		t.Fatalf("start at maxDays should pass: %v", err)
	}
	err = ValidateAdvanceWindow(now.Add(91*24*time.Hour), now, adv)
	if err == nil {
		t.Fatal("start beyond maxDays should fail")
	}
	if !strings.Contains(err.Error(), "up to 90 days in advance") {
		t.Fatalf("error should carry the bound, got %q", err.Error())
	}
}

func TestValidateBusinessHours(t *testing.T) {
	hours := BusinessHours{Start: "08:00", End: "20:00"}
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if err := ValidateBusinessHours(day.Add(8*time.Hour), 60, hours); err != nil {
		t.Fatalf("08:00 start should pass: %v", err)
	}
	// Session ending exactly at close passes.
	if err := ValidateBusinessHours(day.Add(19*time.Hour), 60, hours); err != nil {
		t.Fatalf("19:00 + 60min ends exactly at close, should pass: %v", err)
	}

	err := ValidateBusinessHours(day.Add(7*time.Hour+30*time.Minute), 60, hours)
	if err == nil {
		t.Fatal("start before opening should fail")
	}
	if !strings.Contains(err.Error(), "08:00-20:00") {
		t.Fatalf("error should name the window, got %q", err.Error())
	}

	if err := ValidateBusinessHours(day.Add(19*time.Hour+30*time.Minute), 60, hours); err == nil {
		t.Fatal("session running past close should fail")
	}
}

func TestValidateWeekendPolicy(t *testing.T) {
	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	if err := ValidateWeekendPolicy(monday, false); err != nil {
		t.Fatalf("weekday should always pass: %v", err)
	}
	if err := ValidateWeekendPolicy(saturday, true); err != nil {
		t.Fatalf("saturday with weekends allowed should pass: %v", err)
	}
	for _, d := range []time.Time{saturday, sunday} {
		if err := ValidateWeekendPolicy(d, false); err == nil {
			t.Errorf("%s with weekends disallowed should fail", d.Weekday())
		}
	}
}

func TestIntervalsOverlapSymmetric(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

	cases := []struct {
		aS, aE, bS, bE int
		want           bool
	}{
		{9, 11, 10, 12, true},
		{9, 10, 10, 11, false}, // touching endpoints
		{9, 12, 10, 11, true},  // containment
		{9, 10, 11, 12, false},
		{10, 11, 10, 11, true}, // identical
	}
	for _, c := range cases {
		got := IntervalsOverlap(at(c.aS), at(c.aE), at(c.bS), at(c.bE))
		if got != c.want {
			t.Errorf("overlap(%d-%d, %d-%d) = %v, want %v", c.aS, c.aE, c.bS, c.bE, got, c.want)
		}
		// Symmetry.
		if rev := IntervalsOverlap(at(c.bS), at(c.bE), at(c.aS), at(c.aE)); rev != got {
			t.Errorf("overlap not symmetric for %d-%d vs %d-%d", c.aS, c.aE, c.bS, c.bE)
		}
	}
}

func TestValidateIntervalOverlap(t *testing.T) {
	if err := ValidateIntervalOverlap("09:00", "12:00", "12:00", "14:00"); err != nil {
		t.Fatalf("touching clock windows must not conflict: %v", err)
	}
	err := ValidateIntervalOverlap("09:00", "12:30", "12:00", "14:00")
	if err == nil {
		t.Fatal("overlapping clock windows must conflict")
	}
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("kind = %v, want conflict", apperr.KindOf(err))
	}
}

func TestValidateWindowOrder(t *testing.T) {
	if err := ValidateWindowOrder("09:00", "17:00"); err != nil {
		t.Fatalf("ordered window should pass: %v", err)
	}
	if err := ValidateWindowOrder("17:00", "09:00"); err == nil {
		t.Fatal("inverted window should fail")
	}
	if err := ValidateWindowOrder("09:00", "09:00"); err == nil {
		t.Fatal("empty window should fail")
	}
}

func TestValidateDayOfWeek(t *testing.T) {
	for d := 0; d <= 6; d++ {
		if err := ValidateDayOfWeek(d); err != nil {
			t.Errorf("day %d should be valid: %v", d, err)
		}
	}
	for _, d := range []int{-1, 7, 100} {
		if err := ValidateDayOfWeek(d); err == nil {
			t.Errorf("day %d should be rejected", d)
		}
	}
}

func TestValidateTimezone(t *testing.T) {
	if err := ValidateTimezone("UTC"); err != nil {
		t.Fatalf("UTC should be valid: %v", err)
	}
	if err := ValidateTimezone(""); err != nil {
		t.Fatalf("empty timezone defaults to UTC: %v", err)
	}
	err := ValidateTimezone("Invalid/Timezone")
	if err == nil {
		t.Fatal("bogus timezone should be rejected")
	}
	if !strings.Contains(err.Error(), "Invalid/Timezone") {
		t.Fatalf("error should name the timezone, got %q", err.Error())
	}
}
