package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/outbox"
)

func TestMemoryRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	boom := errors.New("boom")
	err := mem.RunInTx(ctx, []LockKey{"provider-1"}, func(ctx context.Context, tx Store) error {
		if _, err := tx.CreateAppointment(ctx, model.Appointment{
			ID:          "appt-1",
			ProviderID:  "provider-1",
			ClientID:    "client-1",
			StartTime:   time.Now().Add(24 * time.Hour),
			DurationMin: 60,
			Status:      model.StatusScheduled,
		}); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, outbox.NewEvent("appointment", "appt-1", "booking.appointment.booked.v1", []byte(`{}`))); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx err = %v, want boom", err)
	}

	if _, err := mem.GetAppointment(ctx, "appt-1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("appointment survived rollback: err = %v", err)
	}
	if got := mem.Events(); len(got) != 0 {
		t.Fatalf("events survived rollback: %d", len(got))
	}
}

func TestMemoryRunInTxCommitsWritesAndEvents(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	err := mem.RunInTx(ctx, []LockKey{"provider-1"}, func(ctx context.Context, tx Store) error {
		if _, err := tx.CreateAppointment(ctx, model.Appointment{
			ID:          "appt-1",
			ProviderID:  "provider-1",
			ClientID:    "client-1",
			StartTime:   time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC),
			DurationMin: 60,
			Status:      model.StatusScheduled,
		}); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, outbox.NewEvent("appointment", "appt-1", "booking.appointment.booked.v1", []byte(`{}`)))
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	a, err := mem.GetAppointment(ctx, "appt-1")
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if a.Status != model.StatusScheduled {
		t.Fatalf("status = %q", a.Status)
	}
	events := mem.Events()
	if len(events) != 1 || events[0].EventType != "booking.appointment.booked.v1" {
		t.Fatalf("events = %+v", events)
	}
}

func TestMemoryFindAppointmentsHalfOpenOverlap(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	day := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	seed := []model.Appointment{
		{ID: "ends-at-query-start", ProviderID: "p", ClientID: "c", StartTime: day.Add(8 * time.Hour), DurationMin: 60, Status: model.StatusScheduled},
		{ID: "inside", ProviderID: "p", ClientID: "c", StartTime: day.Add(10 * time.Hour), DurationMin: 60, Status: model.StatusConfirmed},
		{ID: "starts-at-query-end", ProviderID: "p", ClientID: "c", StartTime: day.Add(12 * time.Hour), DurationMin: 60, Status: model.StatusScheduled},
		{ID: "cancelled", ProviderID: "p", ClientID: "c", StartTime: day.Add(10 * time.Hour), DurationMin: 60, Status: model.StatusCancelled},
	}
	for _, a := range seed {
		if _, err := mem.CreateAppointment(ctx, a); err != nil {
			t.Fatalf("seed %s: %v", a.ID, err)
		}
	}

	got, err := mem.FindAppointments(ctx, "p", day.Add(9*time.Hour), day.Add(12*time.Hour), model.ActiveStatuses)
	if err != nil {
		t.Fatalf("FindAppointments: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inside" {
		t.Fatalf("got %+v, want only the inside appointment", got)
	}
}

func TestMemoryAvailabilityCRUD(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	w, err := mem.CreateAvailabilityWindow(ctx, model.AvailabilityWindow{
		ProviderID:  "p",
		DayOfWeek:   1,
		StartTime:   "09:00",
		EndTime:     "17:00",
		IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.ID == "" {
		t.Fatal("create did not assign an id")
	}

	w.EndTime = "18:00"
	if _, err := mem.UpdateAvailabilityWindow(ctx, w); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := mem.GetAvailabilityWindow(ctx, "p", w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EndTime != "18:00" {
		t.Fatalf("EndTime = %q after update", got.EndTime)
	}

	if err := mem.DeleteAvailabilityWindow(ctx, "p", w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mem.DeleteAvailabilityWindow(ctx, "p", w.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("second delete err = %v, want not found", err)
	}
}
