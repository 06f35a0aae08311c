package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

const sessionColumns = `id, app_id, start_time, end_time, duration_seconds, date, rate_multiplier, comment, project_id, is_hidden`

func scanSession(row interface{ Scan(...interface{}) error }) (models.Session, error) {
	var sess models.Session
	var start, end string
	var comment sql.NullString
	var projectID sql.NullInt64
	if err := row.Scan(&sess.ID, &sess.AppID, &start, &end, &sess.DurationSeconds, &sess.Date,
		&sess.RateMultiplier, &comment, &projectID, &sess.IsHidden); err != nil {
		return sess, err
	}
	sess.StartTime, _ = parseTime(start)
	sess.EndTime, _ = parseTime(end)
	if comment.Valid {
		sess.Comment = comment.String
	}
	if projectID.Valid {
		sess.ProjectID = &projectID.Int64
	}
	return sess, nil
}

// UpsertSession inserts a session, or on a (app_id, start_time) collision
// keeps whichever row has the longer duration — the same "dedup by keeping
// max duration" rule the original applies before adding the unique index
// (db.rs run_migrations). Idempotent re-ingestion of the same daily file
// relies on this (spec.md §8, P2).
func (s *Store) UpsertSession(ctx context.Context, sess models.Session) (models.Session, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (app_id, start_time, end_time, duration_seconds, date, rate_multiplier, comment, project_id, is_hidden)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, start_time) DO UPDATE SET
			end_time         = CASE WHEN excluded.duration_seconds > sessions.duration_seconds THEN excluded.end_time ELSE sessions.end_time END,
			duration_seconds = MAX(excluded.duration_seconds, sessions.duration_seconds)`,
		sess.AppID, formatTime(sess.StartTime), formatTime(sess.EndTime), sess.DurationSeconds, sess.Date,
		valueOr(sess.RateMultiplier, 1.0), nullIfEmpty(sess.Comment), sess.ProjectID, sess.IsHidden)
	if err != nil {
		return models.Session{}, terrors.IntegrityWrap("upsert session", err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE app_id = ? AND start_time = ?`,
			sess.AppID, formatTime(sess.StartTime))
		return scanSession(row)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) GetSession(ctx context.Context, id int64) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, terrors.NotFound("session not found")
	}
	if err != nil {
		return models.Session{}, terrors.IO("get session", err)
	}
	return sess, nil
}

// SessionsInRange returns every session whose date falls within [from, to]
// (YYYY-MM-DD, both ends inclusive), ordered by start time, the basic read
// path for the Interval Analyzer (C6).
func (s *Store) SessionsInRange(ctx context.Context, from, to string) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE date >= ? AND date <= ? ORDER BY start_time`, from, to)
	if err != nil {
		return nil, terrors.IO("sessions in range", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, terrors.IO("scan session", err)
		}
		out = append(out, sess)
	}
	return out, terrors.IO("iterate sessions", rows.Err())
}

// UnassignedSessions returns sessions with no project_id, visible (not
// hidden), the classifier's and resolver's scan set (spec.md §4.7).
func (s *Store) UnassignedSessions(ctx context.Context, limit int) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE project_id IS NULL AND is_hidden = 0 ORDER BY start_time LIMIT ?`, limit)
	if err != nil {
		return nil, terrors.IO("unassigned sessions", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, terrors.IO("scan session", err)
		}
		out = append(out, sess)
	}
	return out, terrors.IO("iterate unassigned sessions", rows.Err())
}

// CountUnassignedSessions is the Attention Signal's source count: visible
// sessions with no project assigned yet (spec.md §6).
func (s *Store) CountUnassignedSessions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE project_id IS NULL AND is_hidden = 0`).Scan(&n)
	if err != nil {
		return 0, terrors.IO("count unassigned sessions", err)
	}
	return n, nil
}

// UnassignedSessionsForApp returns appID's unassigned, visible sessions
// longer than 10 seconds — the scan set for apply_deterministic_assignment
// (spec.md §4.7), which excludes noise-length sessions from the history
// count and from the sessions it reassigns.
func (s *Store) UnassignedSessionsForApp(ctx context.Context, appID int64) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE app_id = ? AND project_id IS NULL AND is_hidden = 0 AND duration_seconds > 10 ORDER BY start_time`, appID)
	if err != nil {
		return nil, terrors.IO("unassigned sessions for app", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, terrors.IO("scan session", err)
		}
		out = append(out, sess)
	}
	return out, terrors.IO("iterate unassigned sessions for app", rows.Err())
}

// SessionsForAppOverlapping returns appID's sessions whose [start, end)
// overlaps [from, to) — the Manual Override Book's "matching session"
// lookup when reapplying a pin after import (spec.md §4.10).
func (s *Store) SessionsForAppOverlapping(ctx context.Context, appID int64, from, to time.Time) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE app_id = ? AND start_time < ? AND end_time > ? ORDER BY start_time`,
		appID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, terrors.IO("sessions for app overlapping", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, terrors.IO("scan session", err)
		}
		out = append(out, sess)
	}
	return out, terrors.IO("iterate sessions for app overlapping", rows.Err())
}

// AssignSessionToProject is the canonical single-session mutation used by
// the Attribution Sweeper (C11).
func (s *Store) AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET project_id = ? WHERE id = ?`, projectID, sessionID)
	if err != nil {
		return terrors.IO("assign session to project", err)
	}
	return nil
}

func (s *Store) SetSessionHidden(ctx context.Context, sessionID int64, hidden bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_hidden = ? WHERE id = ?`, hidden, sessionID)
	if err != nil {
		return terrors.IO("set session hidden", err)
	}
	return nil
}

func valueOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
