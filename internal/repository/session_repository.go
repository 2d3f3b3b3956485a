package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opentutor/tutor-ops-api/internal/models"
)

const sessionColumns = "id, batch_id, subject, teacher_id, scheduled_date, start_time, duration_minutes, teaching_minutes, prep_buffer_minutes, status, room_reference, topic, notes, cancel_reason, created_at, started_at, ended_at, cancelled_at"

// SessionRepository provides persistence for teaching sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns a batch's sessions with optional filtering and pagination.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	base := "FROM sessions WHERE batch_id = $1"
	args := []interface{}{filter.BatchID}

	if filter.Status != "" {
		base += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		base += fmt.Sprintf(" AND scheduled_date >= $%d", len(args)+1)
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		base += fmt.Sprintf(" AND scheduled_date <= $%d", len(args)+1)
		args = append(args, *filter.DateTo)
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY scheduled_date %s, start_time %s LIMIT %d OFFSET %d", sessionColumns, base, order, order, size, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// ListActiveByBatchAndDate returns a batch's non-cancelled sessions on a date,
// ordered by start time, for conflict detection.
func (r *SessionRepository) ListActiveByBatchAndDate(ctx context.Context, batchID string, date time.Time) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE batch_id = $1 AND scheduled_date = $2 AND status <> $3 ORDER BY start_time ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, batchID, date, models.SessionCancelled); err != nil {
		return nil, fmt.Errorf("list sessions by batch and date: %w", err)
	}
	return sessions, nil
}

// ListActiveByBatch returns all non-cancelled sessions of a batch for the
// timetable projection.
func (r *SessionRepository) ListActiveByBatch(ctx context.Context, batchID string) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE batch_id = $1 AND status <> $2 ORDER BY scheduled_date ASC, start_time ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, batchID, models.SessionCancelled); err != nil {
		return nil, fmt.Errorf("list sessions by batch: %w", err)
	}
	return sessions, nil
}

// ListByIDs loads sessions for the provided id set. Missing ids are skipped.
func (r *SessionRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM sessions WHERE id IN (?)", sessionColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("build session id query: %w", err)
	}
	query = r.db.Rebind(query)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions by ids: %w", err)
	}
	return sessions, nil
}

// ListDueForStart returns scheduled sessions whose start moment has passed.
func (r *SessionRepository) ListDueForStart(ctx context.Context, now time.Time) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE status = $1 AND scheduled_date + start_time::time <= $2 ORDER BY scheduled_date ASC, start_time ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionScheduled, now); err != nil {
		return nil, fmt.Errorf("list sessions due for start: %w", err)
	}
	return sessions, nil
}

// ListStartingBetween returns scheduled sessions starting inside [from, to).
func (r *SessionRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE status = $1 AND scheduled_date + start_time::time >= $2 AND scheduled_date + start_time::time < $3 ORDER BY scheduled_date ASC, start_time ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionScheduled, from, to); err != nil {
		return nil, fmt.Errorf("list sessions starting between: %w", err)
	}
	return sessions, nil
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO sessions (id, batch_id, subject, teacher_id, scheduled_date, start_time, duration_minutes, teaching_minutes, prep_buffer_minutes, status, room_reference, topic, notes, cancel_reason, created_at, started_at, ended_at, cancelled_at) VALUES (:id, :batch_id, :subject, :teacher_id, :scheduled_date, :start_time, :duration_minutes, :teaching_minutes, :prep_buffer_minutes, :status, :room_reference, :topic, :notes, :cancel_reason, :created_at, :started_at, :ended_at, :cancelled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// MarkLive transitions a scheduled session to live, recording the provisioned
// room. The status guard in the WHERE clause makes concurrent start attempts
// lose cleanly: the second caller sees zero rows updated.
func (r *SessionRepository) MarkLive(ctx context.Context, id, roomReference string, at time.Time) (bool, error) {
	const query = `UPDATE sessions SET status = $1, room_reference = $2, started_at = $3 WHERE id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, models.SessionLive, roomReference, at, id, models.SessionScheduled)
	if err != nil {
		return false, fmt.Errorf("mark session live: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark session live: %w", err)
	}
	return affected == 1, nil
}

// MarkEnded transitions a live session to ended.
func (r *SessionRepository) MarkEnded(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE sessions SET status = $1, ended_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, models.SessionEnded, at, id, models.SessionLive)
	if err != nil {
		return false, fmt.Errorf("mark session ended: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark session ended: %w", err)
	}
	return affected == 1, nil
}

// MarkCancelled soft-cancels a scheduled session with the given reason.
func (r *SessionRepository) MarkCancelled(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	const query = `UPDATE sessions SET status = $1, cancel_reason = $2, cancelled_at = $3 WHERE id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, models.SessionCancelled, reason, at, id, models.SessionScheduled)
	if err != nil {
		return false, fmt.Errorf("mark session cancelled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark session cancelled: %w", err)
	}
	return affected == 1, nil
}

// Delete permanently removes a session. Live sessions are excluded at the
// query level so the record can never vanish while a room is in use.
func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1 AND status <> $2`, id, models.SessionLive)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return affected == 1, nil
}
