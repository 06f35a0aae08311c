package store

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

func scanProject(row interface{ Scan(...interface{}) error }) (models.Project, error) {
	var p models.Project
	var createdAt, updatedAt string
	var excludedAt, frozenAt sql.NullString
	var hourlyRate sql.NullFloat64
	var folder, freezeReason sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Color, &hourlyRate, &folder, &p.IsImported,
		&createdAt, &excludedAt, &frozenAt, &freezeReason, &updatedAt)
	if err != nil {
		return p, err
	}
	p.CreatedAt, _ = parseTime(createdAt)
	p.UpdatedAt, _ = parseTime(updatedAt)
	if hourlyRate.Valid {
		p.HourlyRate = &hourlyRate.Float64
	}
	if folder.Valid {
		p.AssignedFolderPath = &folder.String
	}
	if excludedAt.Valid {
		t, _ := parseTime(excludedAt.String)
		p.ExcludedAt = &t
	}
	if frozenAt.Valid {
		t, _ := parseTime(frozenAt.String)
		p.FrozenAt = &t
	}
	if freezeReason.Valid {
		p.FreezeReason = &freezeReason.String
	}
	return p, nil
}

const projectColumns = `id, name, color, hourly_rate, assigned_folder_path, is_imported,
	created_at, excluded_at, frozen_at, freeze_reason, updated_at`

// CreateProject inserts a new project, failing with terrors.Integrity if
// the name collides (case-insensitively) with an existing project or is
// blacklisted (enforced by the trg_projects_blacklist_insert trigger).
func (s *Store) CreateProject(ctx context.Context, name, color string) (models.Project, error) {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, color, is_imported, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		name, color, now, now)
	if err != nil {
		return models.Project{}, terrors.IntegrityWrap("create project "+name, err)
	}
	id, _ := res.LastInsertId()
	return s.GetProject(ctx, id)
}

func (s *Store) GetProject(ctx context.Context, id int64) (models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, terrors.NotFound("project not found")
	}
	if err != nil {
		return models.Project{}, terrors.IO("get project", err)
	}
	return p, nil
}

// FindProjectByName looks up a project case-insensitively, mirroring the
// original's normalized_project_name_key / project_row_exists_by_name.
func (s *Store) FindProjectByName(ctx context.Context, name string) (models.Project, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE lower(name) = lower(?)`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, false, nil
	}
	if err != nil {
		return models.Project{}, false, terrors.IO("find project by name", err)
	}
	return p, true, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, terrors.IO("list projects", err)
	}
	defer rows.Close()
	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, terrors.IO("scan project", err)
		}
		out = append(out, p)
	}
	return out, terrors.IO("iterate projects", rows.Err())
}

// ActiveProjects excludes anything with excluded_at set (spec.md §4.5,
// C5's "excluded" / blacklisted state).
func (s *Store) ActiveProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE excluded_at IS NULL ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, terrors.IO("list active projects", err)
	}
	defer rows.Close()
	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, terrors.IO("scan project", err)
		}
		out = append(out, p)
	}
	return out, terrors.IO("iterate active projects", rows.Err())
}

// ProjectSessionCounts returns, for every project with at least one
// assigned session, the count of sessions currently pointing at it — the
// "current assignment counts" the query surface lists alongside projects.
func (s *Store) ProjectSessionCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, COUNT(*) FROM sessions WHERE project_id IS NOT NULL GROUP BY project_id`)
	if err != nil {
		return nil, terrors.IO("project session counts", err)
	}
	defer rows.Close()
	out := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, terrors.IO("scan project session count", err)
		}
		out[id] = n
	}
	return out, terrors.IO("iterate project session counts", rows.Err())
}

func (s *Store) SetProjectExcluded(ctx context.Context, id int64, excluded bool) error {
	var val interface{}
	if excluded {
		val = nowRFC3339()
	}
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET excluded_at = ?, updated_at = ? WHERE id = ?`,
		val, nowRFC3339(), id)
	if err != nil {
		return terrors.IO("set project excluded", err)
	}
	return nil
}

// FreezeProject marks a project frozen with a reason (spec.md §4.5 auto_freeze).
func (s *Store) FreezeProject(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET frozen_at = ?, freeze_reason = ?, updated_at = ? WHERE id = ?`,
		nowRFC3339(), reason, nowRFC3339(), id)
	if err != nil {
		return terrors.IO("freeze project", err)
	}
	return nil
}

func (s *Store) UnfreezeProject(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET frozen_at = NULL, freeze_reason = NULL, updated_at = ? WHERE id = ?`,
		nowRFC3339(), id)
	if err != nil {
		return terrors.IO("unfreeze project", err)
	}
	return nil
}

// SetProjectHourlyRate sets a per-project rate override, or clears it when
// rate is nil. Validation mirrors SetGlobalHourlyRate (spec.md §4.8): the
// rate must be finite, non-negative, and at most 100 000.
func (s *Store) SetProjectHourlyRate(ctx context.Context, id int64, rate *float64) error {
	if rate != nil {
		if math.IsNaN(*rate) || math.IsInf(*rate, 0) || *rate < 0 || *rate > 100_000 {
			return terrors.Validation("hourly rate out of range")
		}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET hourly_rate = ?, updated_at = ? WHERE id = ?`,
		rate, nowRFC3339(), id)
	if err != nil {
		return terrors.IO("set project hourly rate", err)
	}
	return nil
}

// UpsertProjectByName inserts a project found by case-insensitive name,
// or updates the existing one's hourly_rate with COALESCE semantics so an
// incoming nil hourly_rate never clobbers one already set locally —
// import_data(archive)'s project merge (spec.md §4.4, §4.11). color is
// used only on insert; an existing project keeps its own color.
func (s *Store) UpsertProjectByName(ctx context.Context, name, color string, hourlyRate *float64) (models.Project, error) {
	existing, ok, err := s.FindProjectByName(ctx, name)
	if err != nil {
		return models.Project{}, err
	}
	now := nowRFC3339()
	if !ok {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO projects (name, color, hourly_rate, is_imported, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
			name, color, hourlyRate, now, now)
		if err != nil {
			return models.Project{}, terrors.IntegrityWrap("upsert project by name "+name, err)
		}
		id, _ := res.LastInsertId()
		return s.GetProject(ctx, id)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET hourly_rate = COALESCE(?, hourly_rate), is_imported = 1, updated_at = ? WHERE id = ?`,
		hourlyRate, now, existing.ID)
	if err != nil {
		return models.Project{}, terrors.IO("update project by name", err)
	}
	return s.GetProject(ctx, existing.ID)
}

// DeleteProjectByName removes a project by case-insensitive name, the
// write side of a project tombstone in an import archive (spec.md §4.4).
// A name with no matching project is a no-op, since the deletion has
// already converged.
func (s *Store) DeleteProjectByName(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE lower(name) = lower(?)`, name)
	if err != nil {
		return terrors.IO("delete project tombstone", err)
	}
	return nil
}

func (s *Store) SetProjectFolder(ctx context.Context, id int64, path *string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET assigned_folder_path = ?, updated_at = ? WHERE id = ?`,
		path, nowRFC3339(), id)
	if err != nil {
		return terrors.IO("set project folder", err)
	}
	return nil
}
