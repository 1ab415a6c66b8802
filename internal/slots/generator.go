// Package slots computes bookable start times for a provider's day from the
// weekly availability windows and the current appointment load. Slots are
// advisory: the orchestrator re-checks at commit time.
package slots

import (
	"context"
	"sort"
	"time"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/rules"
	"github.com/havenmind/booking/internal/storage"
)

// Generator is stateless apart from configuration; the store is passed per
// call so the same generator serves both pooled reads and the orchestrator's
// transaction-scoped commit-time check.
type Generator struct {
	cfg rules.ValidationConfig
	now func() time.Time
}

func NewGenerator(cfg rules.ValidationConfig) *Generator {
	return &Generator{cfg: cfg, now: time.Now}
}

// WithClock fixes the generator's notion of now. Test hook.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateSlots returns the ordered bookable slots for the given provider on
// the given YYYY-MM-DD date, interpreted in the provider's timezone. A day
// with no availability yields an empty list, not an error.
func (g *Generator) GenerateSlots(ctx context.Context, st storage.Store, providerID, date string) ([]model.Slot, error) {
	provider, err := st.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := provider.Location()
	if err != nil {
		return nil, apperr.Validation("invalid timezone: %s", provider.Timezone)
	}

	dayStart, err := time.ParseInLocation(rules.DateLayout, date, loc)
	if err != nil {
		return nil, apperr.Validation("invalid date %q: expected YYYY-MM-DD", date)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	now := g.now()
	earliest := now.Add(time.Duration(g.cfg.AdvanceBooking.MinHours) * time.Hour)
	latest := now.Add(time.Duration(g.cfg.AdvanceBooking.MaxDays) * 24 * time.Hour)
	if !dayEnd.After(earliest) {
		return nil, apperr.RuleViolation(
			"slots must be requested at least %d hours in advance", g.cfg.AdvanceBooking.MinHours,
		)
	}
	if dayStart.After(latest) {
		return nil, apperr.RuleViolation(
			"slots can be requested up to %d days in advance", g.cfg.AdvanceBooking.MaxDays,
		)
	}
	if !g.cfg.WeekendAllowed {
		if wd := dayStart.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return nil, nil
		}
	}

	windows, err := st.FindAvailability(ctx, providerID, int(dayStart.Weekday()))
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}
	booked, err := st.FindAppointments(ctx, providerID, dayStart, dayEnd, model.ActiveStatuses)
	if err != nil {
		return nil, err
	}

	var out []model.Slot
	for _, w := range windows {
		slotsInWindow, err := g.walkWindow(w, dayStart, earliest, booked)
		if err != nil {
			return nil, err
		}
		out = append(out, slotsInWindow...)
	}
	// Windows are walked independently, so split shifts come out in window
	// order rather than time order.
	sortSlots(out)
	return out, nil
}

// walkWindow steps a cursor through one availability window at the configured
// interval and attaches the durations that fit at each position.
func (g *Generator) walkWindow(w model.AvailabilityWindow, dayStart, earliest time.Time, booked []model.Appointment) ([]model.Slot, error) {
	startMin, err := rules.ClockMinutes(w.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := rules.ClockMinutes(w.EndTime)
	if err != nil {
		return nil, err
	}

	interval := g.cfg.SlotIntervalMin
	var out []model.Slot
	for cur := startMin; cur+interval <= endMin; cur += interval {
		slotStart := dayStart.Add(time.Duration(cur) * time.Minute)
		if slotStart.Before(earliest) {
			continue
		}
		if overlapsAny(slotStart, slotStart.Add(time.Duration(interval)*time.Minute), booked, "") {
			continue
		}

		var fits []model.DurationOption
		for _, d := range g.cfg.AllowedDurations {
			if cur+d > endMin {
				continue
			}
			if overlapsAny(slotStart, slotStart.Add(time.Duration(d)*time.Minute), booked, "") {
				continue
			}
			fits = append(fits, model.NewDurationOption(d))
		}
		if len(fits) == 0 {
			continue
		}
		out = append(out, model.Slot{StartTime: slotStart, AvailableDurations: fits})
	}
	return out, nil
}

// IsSlotAvailable is the commit-time point check: the requested interval must
// fit inside one availability window for its weekday and must not overlap any
// freshly reloaded active appointment. Slots handed out earlier can have gone
// stale by the time a booking is submitted. excludeID skips the appointment
// being rescheduled so it never blocks its own new time.
func (g *Generator) IsSlotAvailable(ctx context.Context, st storage.Store, provider model.Provider, start time.Time, durationMin int, excludeID string) (bool, error) {
	loc, err := provider.Location()
	if err != nil {
		return false, apperr.Validation("invalid timezone: %s", provider.Timezone)
	}
	local := start.In(loc)
	startMin := local.Hour()*60 + local.Minute()
	endMin := startMin + durationMin

	windows, err := st.FindAvailability(ctx, provider.ID, int(local.Weekday()))
	if err != nil {
		return false, err
	}
	covered := false
	for _, w := range windows {
		ws, err := rules.ClockMinutes(w.StartTime)
		if err != nil {
			return false, err
		}
		we, err := rules.ClockMinutes(w.EndTime)
		if err != nil {
			return false, err
		}
		if startMin >= ws && endMin <= we {
			covered = true
			break
		}
	}
	if !covered {
		return false, nil
	}

	end := start.Add(time.Duration(durationMin) * time.Minute)
	booked, err := st.FindAppointments(ctx, provider.ID, start, end, model.ActiveStatuses)
	if err != nil {
		return false, err
	}
	return !overlapsAny(start, end, booked, excludeID), nil
}

func overlapsAny(start, end time.Time, appts []model.Appointment, excludeID string) bool {
	for _, a := range appts {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if rules.IntervalsOverlap(start, end, a.StartTime, a.EndTime()) {
			return true
		}
	}
	return false
}

func sortSlots(slots []model.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}
