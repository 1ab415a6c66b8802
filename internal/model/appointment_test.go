package model

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusScheduled, StatusInProgress, false},
		{StatusConfirmed, StatusInProgress, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCompleted, StatusConfirmed, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusConfirmed, StatusInProgress} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestAppointmentOverlaps(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt := Appointment{StartTime: start, DurationMin: 60}

	if !appt.Overlaps(start.Add(30*time.Minute), start.Add(90*time.Minute)) {
		t.Fatal("expected overlap with partially covering interval")
	}
	// Touching endpoints are not an overlap (half-open intervals).
	if appt.Overlaps(start.Add(60*time.Minute), start.Add(120*time.Minute)) {
		t.Fatal("interval starting exactly at end must not overlap")
	}
	if appt.Overlaps(start.Add(-60*time.Minute), start) {
		t.Fatal("interval ending exactly at start must not overlap")
	}
}
