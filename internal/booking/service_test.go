package booking

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/auth"
	"github.com/havenmind/booking/internal/conflict"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/outbox"
	"github.com/havenmind/booking/internal/rules"
	"github.com/havenmind/booking/internal/slots"
	"github.com/havenmind/booking/internal/storage"
)

var (
	fixedNow  = time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC) // a Wednesday
	mondayTen = time.Date(2026, 10, 5, 10, 0, 0, 0, time.UTC)

	asClient   = auth.Principal{UserID: "client-1", Role: auth.RoleClient}
	asProvider = auth.Principal{UserID: "prov-1", Role: auth.RoleProvider}
	asAdmin    = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
)

func newService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	mem.PutProvider(model.Provider{ID: "prov-1", Timezone: "UTC", IsActive: true})
	mem.PutRelationship("client-1", "prov-1")
	for _, day := range []int{1, 2, 3, 4, 5} {
		_, err := mem.CreateAvailabilityWindow(context.Background(), model.AvailabilityWindow{
			ProviderID:  "prov-1",
			DayOfWeek:   day,
			StartTime:   "09:00",
			EndTime:     "17:00",
			IsAvailable: true,
		})
		if err != nil {
			t.Fatalf("seed availability: %v", err)
		}
	}

	cfg := rules.DefaultConfig()
	clock := func() time.Time { return fixedNow }
	gen := slots.NewGenerator(cfg).WithClock(clock)
	svc := NewService(mem, gen, conflict.NewDetector(cfg), cfg, slog.New(slog.DiscardHandler)).WithClock(clock)
	return svc, mem
}

func mustBook(t *testing.T, svc *Service, start time.Time, durationMin int) model.Appointment {
	t.Helper()
	a, err := svc.CreateAppointment(context.Background(), asClient, CreateAppointmentInput{
		ProviderID:  "prov-1",
		StartTime:   start,
		DurationMin: durationMin,
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	return a
}

func eventsOfType(events []outbox.Event, eventType string) []outbox.Event {
	var out []outbox.Event
	for _, e := range events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestCreateAppointment(t *testing.T) {
	svc, mem := newService(t)

	a := mustBook(t, svc, mondayTen, 60)
	if a.Status != model.StatusScheduled {
		t.Fatalf("status = %q, want scheduled", a.Status)
	}
	if a.MeetingType != model.MeetingVideo {
		t.Fatalf("meeting type = %q, want default video", a.MeetingType)
	}
	booked := eventsOfType(mem.Events(), EventAppointmentBooked)
	if len(booked) != 1 {
		t.Fatalf("booked events = %d, want 1", len(booked))
	}
	if booked[0].AggregateID != a.ID {
		t.Fatalf("event aggregate = %q, want %q", booked[0].AggregateID, a.ID)
	}
}

func TestCreateAppointmentValidationChain(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateAppointmentInput
		p    auth.Principal
		kind apperr.Kind
	}{
		{
			"unknown provider",
			CreateAppointmentInput{ProviderID: "nobody", StartTime: mondayTen, DurationMin: 60},
			asClient, apperr.KindNotFound,
		},
		{
			"no relationship",
			CreateAppointmentInput{ProviderID: "prov-1", StartTime: mondayTen, DurationMin: 60},
			auth.Principal{UserID: "stranger", Role: auth.RoleClient}, apperr.KindForbidden,
		},
		{
			"unsupported duration",
			CreateAppointmentInput{ProviderID: "prov-1", StartTime: mondayTen, DurationMin: 45},
			asClient, apperr.KindRuleViolation,
		},
		{
			"too soon",
			CreateAppointmentInput{ProviderID: "prov-1", StartTime: fixedNow.Add(time.Hour), DurationMin: 60},
			asClient, apperr.KindRuleViolation,
		},
		{
			"weekend",
			CreateAppointmentInput{ProviderID: "prov-1", StartTime: time.Date(2026, 10, 3, 10, 0, 0, 0, time.UTC), DurationMin: 60},
			asClient, apperr.KindRuleViolation,
		},
		{
			"outside business hours",
			CreateAppointmentInput{ProviderID: "prov-1", StartTime: time.Date(2026, 10, 5, 6, 0, 0, 0, time.UTC), DurationMin: 60},
			asClient, apperr.KindRuleViolation,
		},
		{
			"outside availability window",
			CreateAppointmentInput{ProviderID: "prov-1", StartTime: time.Date(2026, 10, 5, 8, 0, 0, 0, time.UTC), DurationMin: 60},
			asClient, apperr.KindConflict,
		},
		{
			"provider booking own calendar",
			CreateAppointmentInput{ProviderID: "prov-1", StartTime: mondayTen, DurationMin: 60},
			asProvider, apperr.KindForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateAppointment(ctx, tc.p, tc.in)
			if !apperr.Is(err, tc.kind) {
				t.Fatalf("err = %v, want kind %v", err, tc.kind)
			}
		})
	}
}

func TestCreateAppointmentRejectsOverlapAndLeavesNoSideEffects(t *testing.T) {
	svc, mem := newService(t)
	mustBook(t, svc, mondayTen, 60)

	_, err := svc.CreateAppointment(context.Background(), asClient, CreateAppointmentInput{
		ProviderID:  "prov-1",
		StartTime:   mondayTen.Add(30 * time.Minute),
		DurationMin: 60,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("overlapping create err = %v, want conflict", err)
	}
	if got := len(eventsOfType(mem.Events(), EventAppointmentBooked)); got != 1 {
		t.Fatalf("booked events = %d after failed create, want 1", got)
	}
	// A back-to-back appointment is fine, touching endpoints never conflict.
	mustBook(t, svc, mondayTen.Add(time.Hour), 60)
}

func TestCreateAppointmentConcurrentOneWins(t *testing.T) {
	svc, mem := newService(t)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateAppointment(context.Background(), asClient, CreateAppointmentInput{
				ProviderID:  "prov-1",
				StartTime:   mondayTen,
				DurationMin: 60,
			})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d concurrent creates succeeded, want exactly 1", wins)
	}
	if got := len(eventsOfType(mem.Events(), EventAppointmentBooked)); got != 1 {
		t.Fatalf("booked events = %d, want 1", got)
	}
}

func TestUpdateAppointmentReschedule(t *testing.T) {
	svc, mem := newService(t)
	a := mustBook(t, svc, mondayTen, 60)

	// Shifting by 30 minutes overlaps the old time; the row must not
	// conflict with itself.
	newStart := mondayTen.Add(30 * time.Minute)
	updated, err := svc.UpdateAppointment(context.Background(), asClient, a.ID, UpdatePatch{StartTime: &newStart})
	if err != nil {
		t.Fatalf("UpdateAppointment: %v", err)
	}
	if !updated.StartTime.Equal(newStart) {
		t.Fatalf("start = %v, want %v", updated.StartTime, newStart)
	}
	rescheduled := eventsOfType(mem.Events(), EventAppointmentRescheduled)
	if len(rescheduled) != 1 {
		t.Fatalf("rescheduled events = %d, want 1", len(rescheduled))
	}
}

func TestUpdateAppointmentAuthorizationAndState(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a := mustBook(t, svc, mondayTen, 60)

	stranger := auth.Principal{UserID: "stranger", Role: auth.RoleClient}
	if _, err := svc.UpdateAppointment(ctx, stranger, a.ID, UpdatePatch{}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("stranger update err = %v, want forbidden", err)
	}

	confirmed := model.StatusConfirmed
	if _, err := svc.UpdateAppointment(ctx, asProvider, a.ID, UpdatePatch{Status: &confirmed}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	completed := model.StatusCompleted
	if _, err := svc.UpdateAppointment(ctx, asProvider, a.ID, UpdatePatch{Status: &completed}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("terminal via patch err = %v, want validation", err)
	}

	if _, _, err := svc.CancelAppointment(ctx, asClient, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.UpdateAppointment(ctx, asClient, a.ID, UpdatePatch{}); !apperr.Is(err, apperr.KindImmutableState) {
		t.Fatalf("update after cancel err = %v, want immutable state", err)
	}
}

func TestCancelAppointmentNoticeHours(t *testing.T) {
	svc, mem := newService(t)
	// Same Wednesday, three hours out.
	a := mustBook(t, svc, fixedNow.Add(3*time.Hour), 60)

	_, notice, err := svc.CancelAppointment(context.Background(), asClient, a.ID)
	if err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if notice != 3 {
		t.Fatalf("notice = %d hours, want 3", notice)
	}
	if got := len(eventsOfType(mem.Events(), EventAppointmentCancelled)); got != 1 {
		t.Fatalf("cancelled events = %d, want 1", got)
	}

	if _, _, err := svc.CancelAppointment(context.Background(), asClient, a.ID); !apperr.Is(err, apperr.KindImmutableState) {
		t.Fatalf("double cancel err = %v, want immutable state", err)
	}
}

func TestCancelNoticeClampedToZero(t *testing.T) {
	svc, _ := newService(t)
	a := mustBook(t, svc, mondayTen, 60)

	// Move the clock past the appointment start before cancelling.
	late := mondayTen.Add(2 * time.Hour)
	svc.WithClock(func() time.Time { return late })
	_, notice, err := svc.CancelAppointment(context.Background(), asClient, a.ID)
	if err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if notice != 0 {
		t.Fatalf("notice = %d, want 0 for a start already passed", notice)
	}
}

func TestCompleteAppointment(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	a := mustBook(t, svc, mondayTen, 60)

	if _, err := svc.CompleteAppointment(ctx, asClient, a.ID, ""); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("client complete err = %v, want forbidden", err)
	}
	// scheduled appointments cannot jump straight to completed
	if _, err := svc.CompleteAppointment(ctx, asProvider, a.ID, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("complete from scheduled err = %v, want validation", err)
	}

	confirmed := model.StatusConfirmed
	inProgress := model.StatusInProgress
	if _, err := svc.UpdateAppointment(ctx, asProvider, a.ID, UpdatePatch{Status: &confirmed}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.UpdateAppointment(ctx, asProvider, a.ID, UpdatePatch{Status: &inProgress}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	done, err := svc.CompleteAppointment(ctx, asProvider, a.ID, "attended")
	if err != nil {
		t.Fatalf("CompleteAppointment: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed", done.Status)
	}
	if got := len(eventsOfType(mem.Events(), EventAppointmentCompleted)); got != 1 {
		t.Fatalf("completed events = %d, want 1", got)
	}
}

func TestAvailabilityWindowManagement(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.CreateAvailabilityWindow(ctx, asClient, AvailabilityInput{
		DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00", IsAvailable: true,
	}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("client create err = %v, want forbidden", err)
	}

	// prov-1 already has Mon 09:00-17:00 seeded; overlap must be rejected.
	if _, err := svc.CreateAvailabilityWindow(ctx, asProvider, AvailabilityInput{
		DayOfWeek: 1, StartTime: "16:00", EndTime: "18:00", IsAvailable: true,
	}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("overlapping window err = %v, want conflict", err)
	}
	// Touching the existing window is fine.
	evening, err := svc.CreateAvailabilityWindow(ctx, asProvider, AvailabilityInput{
		DayOfWeek: 1, StartTime: "17:00", EndTime: "19:00", IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("touching window: %v", err)
	}

	if _, err := svc.UpdateAvailabilityWindow(ctx, asProvider, evening.ID, AvailabilityInput{
		DayOfWeek: 1, StartTime: "16:30", EndTime: "19:00", IsAvailable: true,
	}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("update into overlap err = %v, want conflict", err)
	}
	if _, err := svc.UpdateAvailabilityWindow(ctx, asProvider, evening.ID, AvailabilityInput{
		DayOfWeek: 1, StartTime: "18:00", EndTime: "20:00", IsAvailable: true,
	}); err != nil {
		t.Fatalf("legal update: %v", err)
	}

	windows, err := svc.ListAvailability(ctx, "prov-1")
	if err != nil {
		t.Fatalf("ListAvailability: %v", err)
	}
	var monday int
	for _, w := range windows {
		if w.DayOfWeek == 1 {
			monday++
		}
	}
	if monday != 2 {
		t.Fatalf("monday windows = %d, want 2", monday)
	}

	if err := svc.DeleteAvailabilityWindow(ctx, asProvider, "", evening.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteAvailabilityWindow(ctx, asProvider, "", evening.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("second delete err = %v, want not found", err)
	}
}

func TestListDurations(t *testing.T) {
	svc, _ := newService(t)
	got := svc.ListDurations()
	want := []int{30, 60, 90, 120}
	if len(got) != len(want) {
		t.Fatalf("durations = %d, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.DurationMin != want[i] {
			t.Fatalf("duration[%d] = %d, want %d", i, d.DurationMin, want[i])
		}
	}
}
