package rules

// BusinessHours bounds the local clock window bookings may occupy.
// Start and End are zero-padded HH:MM strings.
type BusinessHours struct {
	Start string
	End   string
}

// AdvanceBooking bounds how far from "now" a booking may start.
type AdvanceBooking struct {
	MinHours int
	MaxDays  int
}

// ValidationConfig carries every tunable booking rule. It is passed by value
// to the services; the process-wide default is a convenience, never mutated
// global state.
type ValidationConfig struct {
	AllowedDurations []int
	BusinessHours    BusinessHours
	AdvanceBooking   AdvanceBooking
	WeekendAllowed   bool
	SlotIntervalMin  int
	// ClientOverlapAllowed controls whether a client may hold appointments
	// with different providers at overlapping times. Off means client-side
	// conflicts are enforced alongside provider-side ones.
	ClientOverlapAllowed bool
}

// DefaultConfig returns the platform booking policy: 30/60/90/120 minute
// sessions, business hours 08:00-20:00, bookings between 2 hours and 90 days
// out, no weekends, 30 minute slot grid.
func DefaultConfig() ValidationConfig {
	return ValidationConfig{
		AllowedDurations: []int{30, 60, 90, 120},
		BusinessHours:    BusinessHours{Start: "08:00", End: "20:00"},
		AdvanceBooking:   AdvanceBooking{MinHours: 2, MaxDays: 90},
		WeekendAllowed:   false,
		SlotIntervalMin:  30,
	}
}
