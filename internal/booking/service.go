// Package booking orchestrates appointment lifecycle and availability
// management. Every mutating operation runs its full validation chain inside
// one locked unit of work, so concurrent requests for the same provider
// cannot both pass the conflict check and commit.
package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/auth"
	"github.com/havenmind/booking/internal/conflict"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/rules"
	"github.com/havenmind/booking/internal/slots"
	"github.com/havenmind/booking/internal/storage"
)

type Service struct {
	db  storage.DB
	gen *slots.Generator
	det *conflict.Detector
	cfg rules.ValidationConfig
	log *slog.Logger
	now func() time.Time
}

func NewService(db storage.DB, gen *slots.Generator, det *conflict.Detector, cfg rules.ValidationConfig, log *slog.Logger) *Service {
	return &Service{db: db, gen: gen, det: det, cfg: cfg, log: log, now: time.Now}
}

// WithClock fixes the service's notion of now. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// lockKeys partitions the unit-of-work locks per provider, plus the client
// when client double-booking is enforced, so unrelated providers never
// serialize against each other.
func (s *Service) lockKeys(providerID, clientID string) []storage.LockKey {
	keys := []storage.LockKey{storage.LockKey(providerID)}
	if !s.cfg.ClientOverlapAllowed && clientID != "" && clientID != providerID {
		keys = append(keys, storage.LockKey(clientID))
	}
	return keys
}

type CreateAppointmentInput struct {
	ProviderID  string
	ClientID    string // admin callers may book on a client's behalf
	StartTime   time.Time
	DurationMin int
	MeetingType model.MeetingType
	Title       string
	Notes       string
}

func (s *Service) CreateAppointment(ctx context.Context, p auth.Principal, in CreateAppointmentInput) (model.Appointment, error) {
	if p.Role == auth.RoleProvider {
		return model.Appointment{}, apperr.Forbidden("providers cannot book their own calendar")
	}
	clientID := p.UserID
	if p.Role == auth.RoleAdmin && in.ClientID != "" {
		clientID = in.ClientID
	}
	if strings.TrimSpace(in.ProviderID) == "" {
		return model.Appointment{}, apperr.Validation("providerId is required")
	}
	if in.MeetingType == "" {
		in.MeetingType = model.MeetingVideo
	}
	if !in.MeetingType.Valid() {
		return model.Appointment{}, apperr.Validation("invalid meeting type %q", in.MeetingType)
	}

	var created model.Appointment
	err := s.db.RunInTx(ctx, s.lockKeys(in.ProviderID, clientID), func(ctx context.Context, tx storage.Store) error {
		provider, err := tx.GetProvider(ctx, in.ProviderID)
		if err != nil {
			return err
		}
		if !provider.IsActive {
			return apperr.RuleViolation("provider is not currently accepting bookings")
		}
		ok, err := tx.RelationshipExists(ctx, clientID, provider.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Forbidden("no established relationship with this provider")
		}
		if err := s.validateTiming(provider, in.StartTime, in.DurationMin); err != nil {
			return err
		}
		if err := s.det.ValidateNoConflicts(ctx, tx, conflict.Request{
			ProviderID:  provider.ID,
			ClientID:    clientID,
			StartTime:   in.StartTime,
			DurationMin: in.DurationMin,
		}); err != nil {
			return err
		}
		available, err := s.gen.IsSlotAvailable(ctx, tx, provider, in.StartTime, in.DurationMin, "")
		if err != nil {
			return err
		}
		if !available {
			return apperr.Conflict("the requested time is no longer available")
		}

		created, err = tx.CreateAppointment(ctx, model.Appointment{
			ProviderID:  provider.ID,
			ClientID:    clientID,
			StartTime:   in.StartTime,
			DurationMin: in.DurationMin,
			Status:      model.StatusScheduled,
			MeetingType: in.MeetingType,
			Title:       strings.TrimSpace(in.Title),
			Notes:       strings.TrimSpace(in.Notes),
		})
		if err != nil {
			return err
		}
		return appendBooked(ctx, tx, created)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.log.InfoContext(ctx, "appointment booked",
		"appointment_id", created.ID,
		"provider_id", created.ProviderID,
		"start_time", created.StartTime,
		"duration_min", created.DurationMin,
	)
	return created, nil
}

// validateTiming runs the stateless rule chain in the provider's timezone.
func (s *Service) validateTiming(provider model.Provider, start time.Time, durationMin int) error {
	if err := rules.ValidateDuration(durationMin, s.cfg.AllowedDurations); err != nil {
		return err
	}
	if err := rules.ValidateAdvanceWindow(start, s.now(), s.cfg.AdvanceBooking); err != nil {
		return err
	}
	loc, err := provider.Location()
	if err != nil {
		return apperr.Validation("invalid timezone: %s", provider.Timezone)
	}
	local := start.In(loc)
	if err := rules.ValidateWeekendPolicy(local, s.cfg.WeekendAllowed); err != nil {
		return err
	}
	return rules.ValidateBusinessHours(local, durationMin, s.cfg.BusinessHours)
}

func (s *Service) GetAppointment(ctx context.Context, p auth.Principal, id string) (model.Appointment, error) {
	a, err := s.db.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !p.IsParticipant(a.ProviderID, a.ClientID) {
		return model.Appointment{}, apperr.Forbidden("not a participant of this appointment")
	}
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, p auth.Principal, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.db.ListAppointmentsForParticipant(ctx, p.UserID, limit)
}

// UpdatePatch carries the mutable appointment fields; nil means unchanged.
type UpdatePatch struct {
	StartTime   *time.Time
	DurationMin *int
	Status      *model.Status
	MeetingType *model.MeetingType
	Title       *string
	Notes       *string
}

func (s *Service) UpdateAppointment(ctx context.Context, p auth.Principal, id string, patch UpdatePatch) (model.Appointment, error) {
	// Pre-read outside the unit of work to learn which locks to take; the
	// row is re-read under lock before any decision is made.
	pre, err := s.db.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !p.IsParticipant(pre.ProviderID, pre.ClientID) {
		return model.Appointment{}, apperr.Forbidden("not a participant of this appointment")
	}

	var updated model.Appointment
	var timeChanged bool
	err = s.db.RunInTx(ctx, s.lockKeys(pre.ProviderID, pre.ClientID), func(ctx context.Context, tx storage.Store) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			return apperr.ImmutableState("appointment is already %s", cur.Status)
		}

		next := cur
		if patch.StartTime != nil {
			next.StartTime = *patch.StartTime
		}
		if patch.DurationMin != nil {
			next.DurationMin = *patch.DurationMin
		}
		if patch.MeetingType != nil {
			if !patch.MeetingType.Valid() {
				return apperr.Validation("invalid meeting type %q", *patch.MeetingType)
			}
			next.MeetingType = *patch.MeetingType
		}
		if patch.Title != nil {
			next.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Notes != nil {
			next.Notes = strings.TrimSpace(*patch.Notes)
		}
		if patch.Status != nil {
			if patch.Status.IsTerminal() {
				return apperr.Validation("use the cancel or complete operation to end an appointment")
			}
			if !cur.Status.CanTransitionTo(*patch.Status) {
				return apperr.Validation("invalid status transition from %q to %q", cur.Status, *patch.Status)
			}
			next.Status = *patch.Status
		}

		timeChanged = !next.StartTime.Equal(cur.StartTime) || next.DurationMin != cur.DurationMin
		if timeChanged {
			provider, err := tx.GetProvider(ctx, cur.ProviderID)
			if err != nil {
				return err
			}
			if err := s.validateTiming(provider, next.StartTime, next.DurationMin); err != nil {
				return err
			}
			if err := s.det.ValidateNoConflicts(ctx, tx, conflict.Request{
				ProviderID:  cur.ProviderID,
				ClientID:    cur.ClientID,
				StartTime:   next.StartTime,
				DurationMin: next.DurationMin,
				ExcludeID:   cur.ID,
			}); err != nil {
				return err
			}
			available, err := s.gen.IsSlotAvailable(ctx, tx, provider, next.StartTime, next.DurationMin, cur.ID)
			if err != nil {
				return err
			}
			if !available {
				return apperr.Conflict("the requested time is no longer available")
			}
		}

		updated, err = tx.UpdateAppointment(ctx, next)
		if err != nil {
			return err
		}
		if timeChanged {
			return appendEvent(ctx, tx, updated.ID, EventAppointmentRescheduled, appointmentRescheduledPayload{
				AppointmentID:     updated.ID,
				OriginalStartTime: cur.StartTime,
				NewStartTime:      updated.StartTime,
				RescheduledBy:     p.UserID,
			})
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.log.InfoContext(ctx, "appointment updated",
		"appointment_id", updated.ID, "time_changed", timeChanged)
	return updated, nil
}

// CancelAppointment moves the appointment to cancelled and records how many
// whole hours of notice the caller gave, clamped to zero when the start has
// already passed. Downstream billing policy consumes the notice figure.
func (s *Service) CancelAppointment(ctx context.Context, p auth.Principal, id string) (model.Appointment, int, error) {
	pre, err := s.db.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, 0, err
	}
	if !p.IsParticipant(pre.ProviderID, pre.ClientID) {
		return model.Appointment{}, 0, apperr.Forbidden("not a participant of this appointment")
	}

	var cancelled model.Appointment
	var notice int
	err = s.db.RunInTx(ctx, s.lockKeys(pre.ProviderID, pre.ClientID), func(ctx context.Context, tx storage.Store) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			return apperr.ImmutableState("appointment is already %s", cur.Status)
		}
		if !cur.Status.CanTransitionTo(model.StatusCancelled) {
			return apperr.Validation("cannot cancel an appointment that is %s", cur.Status)
		}

		notice = int(cur.StartTime.Sub(s.now()).Hours())
		if notice < 0 {
			notice = 0
		}
		cur.Status = model.StatusCancelled
		cancelled, err = tx.UpdateAppointment(ctx, cur)
		if err != nil {
			return err
		}
		return appendEvent(ctx, tx, cancelled.ID, EventAppointmentCancelled, appointmentCancelledPayload{
			AppointmentID:           cancelled.ID,
			CancelledBy:             p.UserID,
			CancellationNoticeHours: notice,
		})
	})
	if err != nil {
		return model.Appointment{}, 0, err
	}
	s.log.InfoContext(ctx, "appointment cancelled",
		"appointment_id", cancelled.ID, "notice_hours", notice)
	return cancelled, notice, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, p auth.Principal, id, attendanceStatus string) (model.Appointment, error) {
	pre, err := s.db.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if p.Role != auth.RoleAdmin && p.UserID != pre.ProviderID {
		return model.Appointment{}, apperr.Forbidden("only the provider can complete an appointment")
	}
	if attendanceStatus == "" {
		attendanceStatus = "attended"
	}

	var completed model.Appointment
	err = s.db.RunInTx(ctx, s.lockKeys(pre.ProviderID, pre.ClientID), func(ctx context.Context, tx storage.Store) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			return apperr.ImmutableState("appointment is already %s", cur.Status)
		}
		if !cur.Status.CanTransitionTo(model.StatusCompleted) {
			return apperr.Validation("cannot complete an appointment that is %s", cur.Status)
		}
		cur.Status = model.StatusCompleted
		completed, err = tx.UpdateAppointment(ctx, cur)
		if err != nil {
			return err
		}
		return appendEvent(ctx, tx, completed.ID, EventAppointmentCompleted, appointmentCompletedPayload{
			AppointmentID:    completed.ID,
			AttendanceStatus: attendanceStatus,
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.log.InfoContext(ctx, "appointment completed", "appointment_id", completed.ID)
	return completed, nil
}

// Slots computes the bookable slots for a provider and date. Read-only,
// retry-safe.
func (s *Service) Slots(ctx context.Context, providerID, date string) ([]model.Slot, error) {
	return s.gen.GenerateSlots(ctx, s.db, providerID, date)
}

// ListDurations is the static enumeration of bookable session lengths.
func (s *Service) ListDurations() []model.DurationOption {
	out := make([]model.DurationOption, len(s.cfg.AllowedDurations))
	for i, d := range s.cfg.AllowedDurations {
		out[i] = model.NewDurationOption(d)
	}
	return out
}
