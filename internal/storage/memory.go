package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/outbox"
)

// Memory is an in-process DB used by tests and local development. RunInTx
// clones the state, applies fn to the clone and swaps it in on success, so a
// failed unit of work leaves no partial writes. A single mutex serializes
// units of work, which mirrors the per-key advisory locking closely enough
// for the race-sensitive tests.
type Memory struct {
	mu sync.Mutex
	st *memState

	// Events collects everything appended through committed units of work,
	// in commit order.
	eventsMu sync.Mutex
	events   []outbox.Event
}

type memState struct {
	providers     map[string]model.Provider
	relationships map[string]bool // clientID + "\x00" + providerID
	windows       map[string]model.AvailabilityWindow
	appointments  map[string]model.Appointment
}

func NewMemory() *Memory {
	return &Memory{st: &memState{
		providers:     map[string]model.Provider{},
		relationships: map[string]bool{},
		windows:       map[string]model.AvailabilityWindow{},
		appointments:  map[string]model.Appointment{},
	}}
}

func relKey(clientID, providerID string) string {
	return clientID + "\x00" + providerID
}

// Fixture helpers, test-only seeding outside any unit of work.

func (m *Memory) PutProvider(p model.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.providers[p.ID] = p
}

func (m *Memory) PutRelationship(clientID, providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.relationships[relKey(clientID, providerID)] = true
}

// Events returns a copy of every event committed so far.
func (m *Memory) Events() []outbox.Event {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	out := make([]outbox.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (st *memState) clone() *memState {
	next := &memState{
		providers:     make(map[string]model.Provider, len(st.providers)),
		relationships: make(map[string]bool, len(st.relationships)),
		windows:       make(map[string]model.AvailabilityWindow, len(st.windows)),
		appointments:  make(map[string]model.Appointment, len(st.appointments)),
	}
	for k, v := range st.providers {
		next.providers[k] = v
	}
	for k, v := range st.relationships {
		next.relationships[k] = v
	}
	for k, v := range st.windows {
		next.windows[k] = v
	}
	for k, v := range st.appointments {
		next.appointments[k] = v
	}
	return next
}

func (m *Memory) RunInTx(ctx context.Context, _ []LockKey, fn func(ctx context.Context, tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{st: m.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.st = tx.st
	m.eventsMu.Lock()
	m.events = append(m.events, tx.events...)
	m.eventsMu.Unlock()
	return nil
}

// Plain Store methods run as single-operation units of work.

func (m *Memory) withTx(ctx context.Context, fn func(tx *memTx) error) error {
	return m.RunInTx(ctx, nil, func(_ context.Context, tx Store) error {
		return fn(tx.(*memTx))
	})
}

func (m *Memory) GetProvider(ctx context.Context, providerID string) (p model.Provider, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { p, err = tx.GetProvider(ctx, providerID); return err })
	return p, err
}

func (m *Memory) RelationshipExists(ctx context.Context, clientID, providerID string) (ok bool, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { ok, err = tx.RelationshipExists(ctx, clientID, providerID); return err })
	return ok, err
}

func (m *Memory) FindAvailability(ctx context.Context, providerID string, dayOfWeek int) (ws []model.AvailabilityWindow, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { ws, err = tx.FindAvailability(ctx, providerID, dayOfWeek); return err })
	return ws, err
}

func (m *Memory) ListAvailability(ctx context.Context, providerID string) (ws []model.AvailabilityWindow, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { ws, err = tx.ListAvailability(ctx, providerID); return err })
	return ws, err
}

func (m *Memory) GetAvailabilityWindow(ctx context.Context, providerID, windowID string) (w model.AvailabilityWindow, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { w, err = tx.GetAvailabilityWindow(ctx, providerID, windowID); return err })
	return w, err
}

func (m *Memory) CreateAvailabilityWindow(ctx context.Context, in model.AvailabilityWindow) (w model.AvailabilityWindow, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { w, err = tx.CreateAvailabilityWindow(ctx, in); return err })
	return w, err
}

func (m *Memory) UpdateAvailabilityWindow(ctx context.Context, in model.AvailabilityWindow) (w model.AvailabilityWindow, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { w, err = tx.UpdateAvailabilityWindow(ctx, in); return err })
	return w, err
}

func (m *Memory) DeleteAvailabilityWindow(ctx context.Context, providerID, windowID string) error {
	return m.withTx(ctx, func(tx *memTx) error { return tx.DeleteAvailabilityWindow(ctx, providerID, windowID) })
}

func (m *Memory) GetAppointment(ctx context.Context, id string) (a model.Appointment, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { a, err = tx.GetAppointment(ctx, id); return err })
	return a, err
}

func (m *Memory) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return m.GetAppointment(ctx, id)
}

func (m *Memory) FindAppointments(ctx context.Context, providerID string, from, to time.Time, statuses []model.Status) (as []model.Appointment, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { as, err = tx.FindAppointments(ctx, providerID, from, to, statuses); return err })
	return as, err
}

func (m *Memory) FindAppointmentsForClient(ctx context.Context, clientID string, from, to time.Time, statuses []model.Status) (as []model.Appointment, err error) {
	err = m.withTx(ctx, func(tx *memTx) error {
		as, err = tx.FindAppointmentsForClient(ctx, clientID, from, to, statuses)
		return err
	})
	return as, err
}

func (m *Memory) ListAppointmentsForParticipant(ctx context.Context, participantID string, limit int) (as []model.Appointment, err error) {
	err = m.withTx(ctx, func(tx *memTx) error {
		as, err = tx.ListAppointmentsForParticipant(ctx, participantID, limit)
		return err
	})
	return as, err
}

func (m *Memory) CreateAppointment(ctx context.Context, in model.Appointment) (a model.Appointment, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { a, err = tx.CreateAppointment(ctx, in); return err })
	return a, err
}

func (m *Memory) UpdateAppointment(ctx context.Context, in model.Appointment) (a model.Appointment, err error) {
	err = m.withTx(ctx, func(tx *memTx) error { a, err = tx.UpdateAppointment(ctx, in); return err })
	return a, err
}

func (m *Memory) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return m.withTx(ctx, func(tx *memTx) error { return tx.AppendEvent(ctx, evt) })
}

// memTx is the transaction-scoped view handed to RunInTx callbacks.
type memTx struct {
	st     *memState
	events []outbox.Event
}

func (t *memTx) GetProvider(_ context.Context, providerID string) (model.Provider, error) {
	p, ok := t.st.providers[providerID]
	if !ok {
		return model.Provider{}, apperr.NotFound("provider not found")
	}
	return p, nil
}

func (t *memTx) RelationshipExists(_ context.Context, clientID, providerID string) (bool, error) {
	return t.st.relationships[relKey(clientID, providerID)], nil
}

func (t *memTx) FindAvailability(_ context.Context, providerID string, dayOfWeek int) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	for _, w := range t.st.windows {
		if w.ProviderID == providerID && w.DayOfWeek == dayOfWeek && w.IsAvailable {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (t *memTx) ListAvailability(_ context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	for _, w := range t.st.windows {
		if w.ProviderID == providerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return strings.Compare(out[i].StartTime, out[j].StartTime) < 0
	})
	return out, nil
}

func (t *memTx) GetAvailabilityWindow(_ context.Context, providerID, windowID string) (model.AvailabilityWindow, error) {
	w, ok := t.st.windows[windowID]
	if !ok || w.ProviderID != providerID {
		return model.AvailabilityWindow{}, apperr.NotFound("availability window not found")
	}
	return w, nil
}

func (t *memTx) CreateAvailabilityWindow(_ context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	t.st.windows[w.ID] = w
	return w, nil
}

func (t *memTx) UpdateAvailabilityWindow(_ context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	cur, ok := t.st.windows[w.ID]
	if !ok || cur.ProviderID != w.ProviderID {
		return model.AvailabilityWindow{}, apperr.NotFound("availability window not found")
	}
	w.CreatedAt = cur.CreatedAt
	w.UpdatedAt = time.Now().UTC()
	t.st.windows[w.ID] = w
	return w, nil
}

func (t *memTx) DeleteAvailabilityWindow(_ context.Context, providerID, windowID string) error {
	w, ok := t.st.windows[windowID]
	if !ok || w.ProviderID != providerID {
		return apperr.NotFound("availability window not found")
	}
	delete(t.st.windows, windowID)
	return nil
}

func (t *memTx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	return a, nil
}

func (t *memTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.GetAppointment(ctx, id)
}

func statusSet(statuses []model.Status) map[model.Status]bool {
	set := make(map[model.Status]bool, len(statuses))
	for _, st := range statuses {
		set[st] = true
	}
	return set
}

func (t *memTx) findOverlapping(match func(model.Appointment) bool, from, to time.Time, statuses []model.Status) []model.Appointment {
	set := statusSet(statuses)
	var out []model.Appointment
	for _, a := range t.st.appointments {
		if match(a) && set[a.Status] && a.Overlaps(from, to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (t *memTx) FindAppointments(_ context.Context, providerID string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error) {
	return t.findOverlapping(func(a model.Appointment) bool { return a.ProviderID == providerID }, from, to, statuses), nil
}

func (t *memTx) FindAppointmentsForClient(_ context.Context, clientID string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error) {
	return t.findOverlapping(func(a model.Appointment) bool { return a.ClientID == clientID }, from, to, statuses), nil
}

func (t *memTx) ListAppointmentsForParticipant(_ context.Context, participantID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.st.appointments {
		if a.ProviderID == participantID || a.ClientID == participantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) CreateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := t.st.appointments[a.ID]; exists {
		return model.Appointment{}, apperr.Conflict("a record with this id already exists")
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	t.st.appointments[a.ID] = a
	return a, nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	cur, ok := t.st.appointments[a.ID]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	t.st.appointments[a.ID] = a
	return a, nil
}

func (t *memTx) AppendEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}
