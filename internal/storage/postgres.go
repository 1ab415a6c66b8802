package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/outbox"
	"github.com/havenmind/booking/internal/platform/db"
)

const (
	pgcodeExclusionViolation = "23P01"
	pgcodeUniqueViolation    = "23505"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the store needs, so the
// same methods serve both pooled and transaction-scoped calls.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements DB on top of a pgx pool.
type Postgres struct {
	pool *db.Pool
	q    querier
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool.Pool}
}

// RunInTx opens a transaction, takes one pg_advisory_xact_lock per key in
// sorted order and runs fn against a transaction-scoped store. Locks are
// released automatically at commit or rollback.
func (s *Postgres) RunInTx(ctx context.Context, keys []LockKey, fn func(ctx context.Context, tx Store) error) error {
	tx, err := s.pool.Pool.Begin(ctx)
	if err != nil {
		return apperr.Unavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	sorted := make([]string, len(keys))
	for i, k := range keys {
		sorted[i] = string(k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, db.AdvisoryKey(k)); err != nil {
			return apperr.Unavailable(fmt.Errorf("advisory lock %q: %w", k, err))
		}
	}

	if err := fn(ctx, &Postgres{pool: s.pool, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Unavailable(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *Postgres) GetProvider(ctx context.Context, providerID string) (model.Provider, error) {
	var p model.Provider
	err := s.q.QueryRow(ctx,
		`SELECT id, timezone, is_active FROM providers WHERE id = $1`,
		providerID,
	).Scan(&p.ID, &p.Timezone, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Provider{}, apperr.NotFound("provider not found")
	}
	if err != nil {
		return model.Provider{}, apperr.Unavailable(fmt.Errorf("get provider: %w", err))
	}
	return p, nil
}

func (s *Postgres) RelationshipExists(ctx context.Context, clientID, providerID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM client_provider_relationships
		    WHERE client_id = $1 AND provider_id = $2
		 )`,
		clientID, providerID,
	).Scan(&exists)
	if err != nil {
		return false, apperr.Unavailable(fmt.Errorf("relationship lookup: %w", err))
	}
	return exists, nil
}

const availabilityColumns = `id, provider_id, day_of_week, start_time, end_time, is_available, notes, created_at, updated_at`

func scanAvailability(row pgx.Row) (model.AvailabilityWindow, error) {
	var w model.AvailabilityWindow
	err := row.Scan(&w.ID, &w.ProviderID, &w.DayOfWeek, &w.StartTime, &w.EndTime,
		&w.IsAvailable, &w.Notes, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *Postgres) collectAvailability(rows pgx.Rows) ([]model.AvailabilityWindow, error) {
	defer rows.Close()
	var out []model.AvailabilityWindow
	for rows.Next() {
		w, err := scanAvailability(rows)
		if err != nil {
			return nil, apperr.Unavailable(fmt.Errorf("scan availability: %w", err))
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable(fmt.Errorf("iterate availability: %w", err))
	}
	return out, nil
}

func (s *Postgres) FindAvailability(ctx context.Context, providerID string, dayOfWeek int) ([]model.AvailabilityWindow, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+availabilityColumns+`
		   FROM availability_windows
		  WHERE provider_id = $1 AND day_of_week = $2 AND is_available
		  ORDER BY start_time`,
		providerID, dayOfWeek,
	)
	if err != nil {
		return nil, apperr.Unavailable(fmt.Errorf("find availability: %w", err))
	}
	return s.collectAvailability(rows)
}

func (s *Postgres) ListAvailability(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+availabilityColumns+`
		   FROM availability_windows
		  WHERE provider_id = $1
		  ORDER BY day_of_week, start_time`,
		providerID,
	)
	if err != nil {
		return nil, apperr.Unavailable(fmt.Errorf("list availability: %w", err))
	}
	return s.collectAvailability(rows)
}

func (s *Postgres) GetAvailabilityWindow(ctx context.Context, providerID, windowID string) (model.AvailabilityWindow, error) {
	w, err := scanAvailability(s.q.QueryRow(ctx,
		`SELECT `+availabilityColumns+`
		   FROM availability_windows
		  WHERE id = $1 AND provider_id = $2`,
		windowID, providerID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AvailabilityWindow{}, apperr.NotFound("availability window not found")
	}
	if err != nil {
		return model.AvailabilityWindow{}, apperr.Unavailable(fmt.Errorf("get availability window: %w", err))
	}
	return w, nil
}

func (s *Postgres) CreateAvailabilityWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	_, err := s.q.Exec(ctx,
		`INSERT INTO availability_windows
		   (id, provider_id, day_of_week, start_time, end_time, is_available, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.ProviderID, w.DayOfWeek, w.StartTime, w.EndTime, w.IsAvailable, w.Notes, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return model.AvailabilityWindow{}, mapPgWriteErr("create availability window", err)
	}
	return w, nil
}

func (s *Postgres) UpdateAvailabilityWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	w.UpdatedAt = time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE availability_windows
		    SET day_of_week = $3, start_time = $4, end_time = $5, is_available = $6, notes = $7, updated_at = $8
		  WHERE id = $1 AND provider_id = $2`,
		w.ID, w.ProviderID, w.DayOfWeek, w.StartTime, w.EndTime, w.IsAvailable, w.Notes, w.UpdatedAt,
	)
	if err != nil {
		return model.AvailabilityWindow{}, mapPgWriteErr("update availability window", err)
	}
	if tag.RowsAffected() == 0 {
		return model.AvailabilityWindow{}, apperr.NotFound("availability window not found")
	}
	return w, nil
}

func (s *Postgres) DeleteAvailabilityWindow(ctx context.Context, providerID, windowID string) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM availability_windows WHERE id = $1 AND provider_id = $2`,
		windowID, providerID,
	)
	if err != nil {
		return apperr.Unavailable(fmt.Errorf("delete availability window: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("availability window not found")
	}
	return nil
}

const appointmentColumns = `id, provider_id, client_id, start_time, duration_minutes, status, meeting_type, title, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.ProviderID, &a.ClientID, &a.StartTime, &a.DurationMin,
		&a.Status, &a.MeetingType, &a.Title, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Postgres) getAppointment(ctx context.Context, id, suffix string) (model.Appointment, error) {
	a, err := scanAppointment(s.q.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`+suffix,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return model.Appointment{}, apperr.Unavailable(fmt.Errorf("get appointment: %w", err))
	}
	return a, nil
}

func (s *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return s.getAppointment(ctx, id, ``)
}

func (s *Postgres) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return s.getAppointment(ctx, id, ` FOR UPDATE`)
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (s *Postgres) collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, apperr.Unavailable(fmt.Errorf("scan appointment: %w", err))
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable(fmt.Errorf("iterate appointments: %w", err))
	}
	return out, nil
}

// FindAppointments returns appointments that intersect [from, to). The where
// clause mirrors the half-open overlap rule used everywhere else.
func (s *Postgres) FindAppointments(ctx context.Context, providerID string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentColumns+`
		   FROM appointments
		  WHERE provider_id = $1
		    AND status = ANY($2)
		    AND start_time < $4
		    AND start_time + make_interval(mins => duration_minutes) > $3
		  ORDER BY start_time`,
		providerID, statusStrings(statuses), from, to,
	)
	if err != nil {
		return nil, apperr.Unavailable(fmt.Errorf("find appointments: %w", err))
	}
	return s.collectAppointments(rows)
}

func (s *Postgres) FindAppointmentsForClient(ctx context.Context, clientID string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentColumns+`
		   FROM appointments
		  WHERE client_id = $1
		    AND status = ANY($2)
		    AND start_time < $4
		    AND start_time + make_interval(mins => duration_minutes) > $3
		  ORDER BY start_time`,
		clientID, statusStrings(statuses), from, to,
	)
	if err != nil {
		return nil, apperr.Unavailable(fmt.Errorf("find client appointments: %w", err))
	}
	return s.collectAppointments(rows)
}

func (s *Postgres) ListAppointmentsForParticipant(ctx context.Context, participantID string, limit int) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentColumns+`
		   FROM appointments
		  WHERE provider_id = $1 OR client_id = $1
		  ORDER BY start_time DESC
		  LIMIT $2`,
		participantID, limit,
	)
	if err != nil {
		return nil, apperr.Unavailable(fmt.Errorf("list appointments: %w", err))
	}
	return s.collectAppointments(rows)
}

func (s *Postgres) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.q.Exec(ctx,
		`INSERT INTO appointments
		   (id, provider_id, client_id, start_time, duration_minutes, status, meeting_type, title, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.ProviderID, a.ClientID, a.StartTime, a.DurationMin, a.Status, a.MeetingType,
		a.Title, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, mapPgWriteErr("create appointment", err)
	}
	return a, nil
}

func (s *Postgres) UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	a.UpdatedAt = time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE appointments
		    SET start_time = $2, duration_minutes = $3, status = $4, meeting_type = $5,
		        title = $6, notes = $7, updated_at = $8
		  WHERE id = $1`,
		a.ID, a.StartTime, a.DurationMin, a.Status, a.MeetingType, a.Title, a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, mapPgWriteErr("update appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	return a, nil
}

func (s *Postgres) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, s.q, evt)
}

// mapPgWriteErr folds constraint violations into the conflict kind so the
// caller surfaces them as 409s rather than 503s.
func mapPgWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgcodeExclusionViolation:
			return apperr.Conflict("the requested time overlaps an existing appointment")
		case pgcodeUniqueViolation:
			return apperr.Conflict("a record with this id already exists")
		}
	}
	return apperr.Unavailable(fmt.Errorf("%s: %w", op, err))
}
