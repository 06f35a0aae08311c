package store

import (
	"context"
	"database/sql"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

const fileActivityColumns = `id, app_id, date, file_name, total_seconds, first_seen, last_seen, project_id`

func scanFileActivity(row interface{ Scan(...interface{}) error }) (models.FileActivity, error) {
	var fa models.FileActivity
	var firstSeen, lastSeen string
	var projectID sql.NullInt64
	if err := row.Scan(&fa.ID, &fa.AppID, &fa.Date, &fa.FileName, &fa.TotalSeconds, &firstSeen, &lastSeen, &projectID); err != nil {
		return fa, err
	}
	fa.FirstSeen, _ = parseTime(firstSeen)
	fa.LastSeen, _ = parseTime(lastSeen)
	if projectID.Valid {
		fa.ProjectID = &projectID.Int64
	}
	return fa, nil
}

// AccumulateFileActivity upserts the (app_id, date, file_name) bucket: a
// fresh row is inserted as-is; a conflicting row takes the incoming
// total_seconds verbatim (the Collector always reports the day's running
// total for a file, not a delta), widens [first_seen, last_seen], and
// keeps its own project_id unless the caller supplies one (spec.md §4.4's
// `project_id = COALESCE(incoming, existing)` reconciliation rule).
func (s *Store) AccumulateFileActivity(ctx context.Context, appID int64, date, fileName string, seconds int64, seenAt string, projectID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_activities (app_id, date, file_name, total_seconds, first_seen, last_seen, project_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, date, file_name) DO UPDATE SET
			total_seconds = excluded.total_seconds,
			first_seen    = MIN(first_seen, excluded.first_seen),
			last_seen     = MAX(last_seen, excluded.last_seen),
			project_id    = COALESCE(excluded.project_id, file_activities.project_id)`,
		appID, date, fileName, seconds, seenAt, seenAt, projectID)
	if err != nil {
		return terrors.IO("accumulate file activity", err)
	}
	return nil
}

// FileNameOccurrences returns, for every file_name seen within [from, to],
// the number of distinct dates it appeared on — the input to
// auto_create_projects_from_detection's min_occurrences threshold
// (spec.md §4.5).
func (s *Store) FileNameOccurrences(ctx context.Context, from, to string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, COUNT(DISTINCT date) FROM file_activities
		WHERE date >= ? AND date <= ? AND file_name != ?
		GROUP BY file_name`, from, to, "(background)")
	if err != nil {
		return nil, terrors.IO("file name occurrences", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, terrors.IO("scan file name occurrence", err)
		}
		out[name] = count
	}
	return out, terrors.IO("iterate file name occurrences", rows.Err())
}

func (s *Store) FileActivitiesForApp(ctx context.Context, appID int64, date string) ([]models.FileActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileActivityColumns+` FROM file_activities WHERE app_id = ? AND date = ? ORDER BY total_seconds DESC`,
		appID, date)
	if err != nil {
		return nil, terrors.IO("file activities for app", err)
	}
	defer rows.Close()
	var out []models.FileActivity
	for rows.Next() {
		fa, err := scanFileActivity(rows)
		if err != nil {
			return nil, terrors.IO("scan file activity", err)
		}
		out = append(out, fa)
	}
	return out, terrors.IO("iterate file activities", rows.Err())
}

// PropagateProjectToFileActivities updates file_activities for appID to
// toProjectID, but only rows that were unassigned or already carried
// fromProjectID (the app's project before this reassignment) — an
// activity independently pinned to some other project is left alone
// (spec.md §4.11: "inherit the new project where they were unassigned or
// already matched").
func (s *Store) PropagateProjectToFileActivities(ctx context.Context, appID int64, fromProjectID, toProjectID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE file_activities SET project_id = ?
		WHERE app_id = ? AND (project_id IS NULL OR project_id = ?)`,
		toProjectID, appID, fromProjectID)
	if err != nil {
		return terrors.IO("propagate project to file activities", err)
	}
	return nil
}
