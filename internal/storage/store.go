// Package storage defines the availability store consumed by the slot
// generator, the conflict detector and the booking orchestrator, plus its
// Postgres and in-memory implementations.
package storage

import (
	"context"
	"time"

	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/outbox"
)

// LockKey partitions the unit-of-work lock space. The provider's appointment
// set is the contended resource, so keys are provider (and optionally client)
// ids — never a global lock.
type LockKey string

// Store is the read/write surface of the availability store. Every method
// does bounded I/O; implementations may be transaction-scoped.
type Store interface {
	GetProvider(ctx context.Context, providerID string) (model.Provider, error)
	RelationshipExists(ctx context.Context, clientID, providerID string) (bool, error)

	FindAvailability(ctx context.Context, providerID string, dayOfWeek int) ([]model.AvailabilityWindow, error)
	ListAvailability(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	GetAvailabilityWindow(ctx context.Context, providerID, windowID string) (model.AvailabilityWindow, error)
	CreateAvailabilityWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error)
	UpdateAvailabilityWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error)
	DeleteAvailabilityWindow(ctx context.Context, providerID, windowID string) error

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// GetAppointmentForUpdate additionally locks the row for the remainder
	// of the enclosing unit of work.
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	FindAppointments(ctx context.Context, providerID string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error)
	FindAppointmentsForClient(ctx context.Context, clientID string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error)
	ListAppointmentsForParticipant(ctx context.Context, participantID string, limit int) ([]model.Appointment, error)
	CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)

	// AppendEvent writes a domain event to the outbox inside the same unit
	// of work as the mutation it describes.
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

// DB is a Store that can open a locked unit of work. RunInTx acquires an
// advisory lock per key (in sorted order, to keep lock acquisition
// deadlock-free), runs fn against a transaction-scoped Store and commits.
// Any error from fn rolls back every write, including appended events.
type DB interface {
	Store
	RunInTx(ctx context.Context, keys []LockKey, fn func(ctx context.Context, tx Store) error) error
}
