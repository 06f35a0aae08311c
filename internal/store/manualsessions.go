package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

const manualSessionColumns = `id, title, session_type, project_id, app_id, start_time, end_time, duration_seconds, date, created_at`

func scanManualSession(row interface{ Scan(...interface{}) error }) (models.ManualSession, error) {
	var m models.ManualSession
	var start, end, createdAt string
	var appID sql.NullInt64
	if err := row.Scan(&m.ID, &m.Title, &m.SessionType, &m.ProjectID, &appID, &start, &end, &m.DurationSeconds, &m.Date, &createdAt); err != nil {
		return m, err
	}
	m.StartTime, _ = parseTime(start)
	m.EndTime, _ = parseTime(end)
	m.CreatedAt, _ = parseTime(createdAt)
	if appID.Valid {
		m.AppID = &appID.Int64
	}
	return m, nil
}

func (s *Store) CreateManualSession(ctx context.Context, m models.ManualSession) (models.ManualSession, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_sessions (title, session_type, project_id, app_id, start_time, end_time, duration_seconds, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, m.SessionType, m.ProjectID, m.AppID, formatTime(m.StartTime), formatTime(m.EndTime),
		m.DurationSeconds, m.Date, nowRFC3339())
	if err != nil {
		return models.ManualSession{}, terrors.IntegrityWrap("create manual session", err)
	}
	id, _ := res.LastInsertId()
	return s.GetManualSession(ctx, id)
}

func (s *Store) GetManualSession(ctx context.Context, id int64) (models.ManualSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+manualSessionColumns+` FROM manual_sessions WHERE id = ?`, id)
	m, err := scanManualSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ManualSession{}, terrors.NotFound("manual session not found")
	}
	if err != nil {
		return models.ManualSession{}, terrors.IO("get manual session", err)
	}
	return m, nil
}

func (s *Store) ManualSessionsInRange(ctx context.Context, from, to string) ([]models.ManualSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+manualSessionColumns+` FROM manual_sessions WHERE date >= ? AND date <= ? ORDER BY start_time`, from, to)
	if err != nil {
		return nil, terrors.IO("manual sessions in range", err)
	}
	defer rows.Close()
	var out []models.ManualSession
	for rows.Next() {
		m, err := scanManualSession(rows)
		if err != nil {
			return nil, terrors.IO("scan manual session", err)
		}
		out = append(out, m)
	}
	return out, terrors.IO("iterate manual sessions", rows.Err())
}

func (s *Store) DeleteManualSession(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM manual_sessions WHERE id = ?`, id)
	if err != nil {
		return terrors.IO("delete manual session", err)
	}
	return nil
}

// DeleteManualSessionByStartTitle removes a manual session by its natural
// key (start_time, title) — the write side of a manual-session tombstone
// in an import archive, since archives carry no portable local id
// (spec.md §4.4).
func (s *Store) DeleteManualSessionByStartTitle(ctx context.Context, start time.Time, title string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM manual_sessions WHERE start_time = ? AND title = ?`,
		formatTime(start), title)
	if err != nil {
		return terrors.IO("delete manual session tombstone", err)
	}
	return nil
}
