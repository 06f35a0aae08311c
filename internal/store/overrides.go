package store

import (
	"context"
	"database/sql"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

// PutOverride records a durable (executable, start, end) -> project pin
// that survives reimport (spec.md §4.10, Manual Override Book).
// projectName == nil records an explicit "unassign" pin.
func (s *Store) PutOverride(ctx context.Context, o models.ManualOverride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_overrides (executable_name, start_time, end_time, project_name, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(executable_name, start_time, end_time) DO UPDATE SET
			project_name = excluded.project_name,
			updated_at   = excluded.updated_at`,
		o.ExecutableName, formatTime(o.StartTime), formatTime(o.EndTime), o.ProjectName, nowRFC3339())
	if err != nil {
		return terrors.IO("put manual override", err)
	}
	return nil
}

// OverridesForExecutable returns every override pin for one executable,
// used by the reapply-after-import pass (C10).
func (s *Store) OverridesForExecutable(ctx context.Context, executableName string) ([]models.ManualOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT executable_name, start_time, end_time, project_name, updated_at FROM manual_overrides WHERE executable_name = ?`,
		executableName)
	if err != nil {
		return nil, terrors.IO("overrides for executable", err)
	}
	defer rows.Close()
	var out []models.ManualOverride
	for rows.Next() {
		var o models.ManualOverride
		var start, end, updatedAt string
		var projectName sql.NullString
		if err := rows.Scan(&o.ExecutableName, &start, &end, &projectName, &updatedAt); err != nil {
			return nil, terrors.IO("scan manual override", err)
		}
		o.StartTime, _ = parseTime(start)
		o.EndTime, _ = parseTime(end)
		o.UpdatedAt, _ = parseTime(updatedAt)
		if projectName.Valid {
			o.ProjectName = &projectName.String
		}
		out = append(out, o)
	}
	return out, terrors.IO("iterate manual overrides", rows.Err())
}

func (s *Store) AllOverrides(ctx context.Context) ([]models.ManualOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT executable_name, start_time, end_time, project_name, updated_at FROM manual_overrides ORDER BY executable_name, start_time`)
	if err != nil {
		return nil, terrors.IO("all manual overrides", err)
	}
	defer rows.Close()
	var out []models.ManualOverride
	for rows.Next() {
		var o models.ManualOverride
		var start, end, updatedAt string
		var projectName sql.NullString
		if err := rows.Scan(&o.ExecutableName, &start, &end, &projectName, &updatedAt); err != nil {
			return nil, terrors.IO("scan manual override", err)
		}
		o.StartTime, _ = parseTime(start)
		o.EndTime, _ = parseTime(end)
		o.UpdatedAt, _ = parseTime(updatedAt)
		if projectName.Valid {
			o.ProjectName = &projectName.String
		}
		out = append(out, o)
	}
	return out, terrors.IO("iterate all manual overrides", rows.Err())
}
