package store

import (
	"context"
	"database/sql"
	"errors"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

func scanApplication(row interface{ Scan(...interface{}) error }) (models.Application, error) {
	var a models.Application
	var projectID sql.NullInt64
	var color sql.NullString
	if err := row.Scan(&a.ID, &a.ExecutableName, &a.DisplayName, &projectID, &color, &a.IsImported); err != nil {
		return a, err
	}
	if projectID.Valid {
		a.ProjectID = &projectID.Int64
	}
	if color.Valid {
		a.Color = &color.String
	}
	return a, nil
}

const applicationColumns = `id, executable_name, display_name, project_id, color, is_imported`

// UpsertApplication inserts a new application row, or returns the existing
// one if executable_name already exists — the Session Builder calls this
// once per distinct executable it observes (spec.md §4.2).
func (s *Store) UpsertApplication(ctx context.Context, executableName, displayName string) (models.Application, error) {
	existing, ok, err := s.FindApplicationByExecutable(ctx, executableName)
	if err != nil {
		return models.Application{}, err
	}
	if ok {
		return existing, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (executable_name, display_name, is_imported) VALUES (?, ?, 0)`,
		executableName, displayName)
	if err != nil {
		return models.Application{}, terrors.IntegrityWrap("upsert application "+executableName, err)
	}
	id, _ := res.LastInsertId()
	return s.GetApplication(ctx, id)
}

func (s *Store) GetApplication(ctx context.Context, id int64) (models.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Application{}, terrors.NotFound("application not found")
	}
	if err != nil {
		return models.Application{}, terrors.IO("get application", err)
	}
	return a, nil
}

func (s *Store) FindApplicationByExecutable(ctx context.Context, executableName string) (models.Application, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE executable_name = ?`, executableName)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Application{}, false, nil
	}
	if err != nil {
		return models.Application{}, false, terrors.IO("find application", err)
	}
	return a, true, nil
}

// FindApplicationByDisplayName looks up an application by display name,
// the fallback key import_data(archive) uses when an incoming
// executable_name has never been seen locally (spec.md §4.4: "maps
// applications by exe-name then by display-name").
func (s *Store) FindApplicationByDisplayName(ctx context.Context, displayName string) (models.Application, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE display_name = ? LIMIT 1`, displayName)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Application{}, false, nil
	}
	if err != nil {
		return models.Application{}, false, terrors.IO("find application by display name", err)
	}
	return a, true, nil
}

// UpsertApplicationWithProject is UpsertApplication's import_data(archive)
// counterpart: it also resolves by display name and attaches projectID
// with COALESCE semantics (an incoming nil never unassigns an app that
// already has a project locally).
func (s *Store) UpsertApplicationWithProject(ctx context.Context, executableName, displayName string, projectID *int64) (models.Application, error) {
	existing, ok, err := s.FindApplicationByExecutable(ctx, executableName)
	if err != nil {
		return models.Application{}, err
	}
	if !ok && displayName != "" {
		existing, ok, err = s.FindApplicationByDisplayName(ctx, displayName)
		if err != nil {
			return models.Application{}, err
		}
	}
	if ok {
		if projectID != nil {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE applications SET project_id = COALESCE(?, project_id) WHERE id = ?`, projectID, existing.ID); err != nil {
				return models.Application{}, terrors.IO("update application project", err)
			}
		}
		return s.GetApplication(ctx, existing.ID)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (executable_name, display_name, project_id, is_imported) VALUES (?, ?, ?, 1)`,
		executableName, displayName, projectID)
	if err != nil {
		return models.Application{}, terrors.IntegrityWrap("upsert application with project "+executableName, err)
	}
	id, _ := res.LastInsertId()
	return s.GetApplication(ctx, id)
}

func (s *Store) ListApplications(ctx context.Context) ([]models.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY display_name COLLATE NOCASE`)
	if err != nil {
		return nil, terrors.IO("list applications", err)
	}
	defer rows.Close()
	var out []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, terrors.IO("scan application", err)
		}
		out = append(out, a)
	}
	return out, terrors.IO("iterate applications", rows.Err())
}

// AssignApplicationToProject is the canonical app-level mutation used by
// the Attribution Sweeper (C11); it does not touch existing sessions'
// project_id, only the application default going forward.
func (s *Store) AssignApplicationToProject(ctx context.Context, appID int64, projectID *int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE applications SET project_id = ? WHERE id = ?`, projectID, appID)
	if err != nil {
		return terrors.IO("assign application to project", err)
	}
	return nil
}

func (s *Store) UpsertMonitoredApp(ctx context.Context, executableName, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitored_apps (executable_name, display_name, added_at) VALUES (?, ?, ?)
		 ON CONFLICT(executable_name) DO UPDATE SET display_name = excluded.display_name`,
		executableName, displayName, nowRFC3339())
	if err != nil {
		return terrors.IO("upsert monitored app", err)
	}
	return nil
}

func (s *Store) ListMonitoredApps(ctx context.Context) ([]models.MonitoredApp, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT executable_name, display_name, added_at FROM monitored_apps ORDER BY display_name`)
	if err != nil {
		return nil, terrors.IO("list monitored apps", err)
	}
	defer rows.Close()
	var out []models.MonitoredApp
	for rows.Next() {
		var m models.MonitoredApp
		var addedAt string
		if err := rows.Scan(&m.ExecutableName, &m.DisplayName, &addedAt); err != nil {
			return nil, terrors.IO("scan monitored app", err)
		}
		m.AddedAt, _ = parseTime(addedAt)
		out = append(out, m)
	}
	return out, terrors.IO("iterate monitored apps", rows.Err())
}
