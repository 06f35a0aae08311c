package store

import (
	"context"
	"database/sql"
	"time"

	"timeflow/internal/terrors"
)

// LastActivityForProject returns the most recent timestamp across
// sessions, manual sessions, and file activities attributed to
// projectID, used by the Project Resolver's auto_freeze_projects sweep
// (spec.md §4.5). ok is false if the project has never had any activity.
func (s *Store) LastActivityForProject(ctx context.Context, projectID int64) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT MAX(ts) FROM (
			SELECT MAX(end_time) AS ts FROM sessions WHERE project_id = ?
			UNION ALL
			SELECT MAX(end_time) AS ts FROM manual_sessions WHERE project_id = ?
			UNION ALL
			SELECT MAX(last_seen) AS ts FROM file_activities WHERE project_id = ?
		)`, projectID, projectID, projectID)

	var latest sql.NullString
	if err := row.Scan(&latest); err != nil {
		return time.Time{}, false, terrors.IO("last activity for project", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	t, err := parseTime(latest.String)
	if err != nil {
		return time.Time{}, false, terrors.Wrap(terrors.KindParse, "parse last activity timestamp", err)
	}
	return t, true, nil
}
