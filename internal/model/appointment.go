package model

import "time"

// Status is the closed set of appointment states. Transitions are checked
// centrally through CanTransitionTo rather than inline string comparisons.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the permitted next states per state. Completed and
// Cancelled are terminal and have no entries.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ActiveStatuses are the states that participate in conflict checks.
// Terminal appointments never block a slot.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

type MeetingType string

const (
	MeetingVideo    MeetingType = "video"
	MeetingAudio    MeetingType = "audio"
	MeetingInPerson MeetingType = "in_person"
	MeetingChat     MeetingType = "chat"
)

func (m MeetingType) Valid() bool {
	switch m {
	case MeetingVideo, MeetingAudio, MeetingInPerson, MeetingChat:
		return true
	}
	return false
}

type Appointment struct {
	ID          string
	ProviderID  string
	ClientID    string
	StartTime   time.Time
	DurationMin int
	Status      Status
	MeetingType MeetingType
	Title       string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EndTime is derived; appointments are half-open intervals [StartTime, EndTime).
func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMin) * time.Minute)
}

// Overlaps reports whether the appointment overlaps [start, end) under the
// half-open convention: touching endpoints do not overlap.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime().After(start)
}
