package model

import (
	"fmt"
	"time"
)

// AvailabilityWindow is a weekly-recurring bookable window for a provider.
// StartTime/EndTime are HH:MM clock strings local to the provider's
// configured timezone; DayOfWeek is 0-6 with Sunday = 0, matching
// time.Weekday.
type AvailabilityWindow struct {
	ID          string
	ProviderID  string
	DayOfWeek   int
	StartTime   string
	EndTime     string
	IsAvailable bool
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Provider struct {
	ID       string
	Timezone string
	IsActive bool
}

// Location resolves the provider's IANA timezone, defaulting to UTC when
// unset.
func (p Provider) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}

// DurationOption mirrors the public "list durations" enumeration shape.
type DurationOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration"`
}

func NewDurationOption(minutes int) DurationOption {
	return DurationOption{
		ID:          fmt.Sprintf("%d", minutes),
		Name:        fmt.Sprintf("%d minutes", minutes),
		DurationMin: minutes,
	}
}

// Slot is a computed candidate start time with the durations that fit.
// Slots are advisory snapshots, never persisted; they can go stale between
// generation and submission.
type Slot struct {
	StartTime          time.Time        `json:"startTime"`
	AvailableDurations []DurationOption `json:"availableDurations"`
}
