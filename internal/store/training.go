package store

import (
	"context"
	"database/sql"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

// ClearModelCounts truncates all three evidence tables, the first step of
// Classifier.Train's full rebuild (spec.md §4.7).
func (s *Store) ClearModelCounts(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"assignment_model_app", "assignment_model_token", "assignment_model_time"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return terrors.IO("clear "+table, err)
			}
		}
		return nil
	})
}

// TrainingSession is one row of the sessions used to rebuild the
// app/time evidence tables: duration > 10 seconds and an assigned
// project (spec.md §4.7 Train).
type TrainingSession struct {
	AppID     int64
	ProjectID int64
	StartTime time.Time
}

// TrainingSessions returns every session eligible to feed the app and
// time evidence tables.
func (s *Store) TrainingSessions(ctx context.Context) ([]TrainingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, project_id, start_time FROM sessions
		WHERE project_id IS NOT NULL AND duration_seconds > 10`)
	if err != nil {
		return nil, terrors.IO("training sessions", err)
	}
	defer rows.Close()
	var out []TrainingSession
	for rows.Next() {
		var ts TrainingSession
		var start string
		if err := rows.Scan(&ts.AppID, &ts.ProjectID, &start); err != nil {
			return nil, terrors.IO("scan training session", err)
		}
		ts.StartTime, _ = parseTime(start)
		out = append(out, ts)
	}
	return out, terrors.IO("iterate training sessions", rows.Err())
}

// TrainingFileActivity is one row used to rebuild the token evidence
// table: a file_activities entry with an assigned project.
type TrainingFileActivity struct {
	FileName  string
	ProjectID int64
}

func (s *Store) TrainingFileActivities(ctx context.Context) ([]TrainingFileActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, project_id FROM file_activities WHERE project_id IS NOT NULL`)
	if err != nil {
		return nil, terrors.IO("training file activities", err)
	}
	defer rows.Close()
	var out []TrainingFileActivity
	for rows.Next() {
		var fa TrainingFileActivity
		if err := rows.Scan(&fa.FileName, &fa.ProjectID); err != nil {
			return nil, terrors.IO("scan training file activity", err)
		}
		out = append(out, fa)
	}
	return out, terrors.IO("iterate training file activities", rows.Err())
}

// UnassignedSessionsFiltered lists non-hidden, unassigned sessions within
// [from, to] with duration >= minDurationSecs, the scan set for the
// auto-safe run (spec.md §4.7).
func (s *Store) UnassignedSessionsFiltered(ctx context.Context, from, to string, minDurationSecs int64, limit int) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_id IS NULL AND is_hidden = 0
		  AND date >= ? AND date <= ? AND duration_seconds >= ?
		ORDER BY start_time ASC LIMIT ?`, from, to, minDurationSecs, limit)
	if err != nil {
		return nil, terrors.IO("unassigned sessions filtered", err)
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

// UpdateSessionProjectIfUnassigned performs the auto-safe accept's
// conditional write: `UPDATE sessions SET project_id=? WHERE id=? AND
// project_id IS NULL`. ok is false when another writer already assigned
// the session first.
func (s *Store) UpdateSessionProjectIfUnassigned(ctx context.Context, sessionID, projectID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET project_id = ? WHERE id = ? AND project_id IS NULL`,
		projectID, sessionID)
	if err != nil {
		return false, terrors.IO("conditional assign session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, terrors.IO("rows affected", err)
	}
	return n > 0, nil
}

// RevertSessionProjectIfStillAssigned undoes an auto-safe accept during
// rollback: it clears project_id only if it still equals fromProjectID,
// the run's recorded `to_project` (spec.md §4.7 Rollback).
func (s *Store) RevertSessionProjectIfStillAssigned(ctx context.Context, sessionID, fromProjectID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET project_id = NULL WHERE id = ? AND project_id = ?`,
		sessionID, fromProjectID)
	if err != nil {
		return false, terrors.IO("revert session project", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, terrors.IO("rows affected", err)
	}
	return n > 0, nil
}

// PropagateProjectToFileActivitiesInWindow updates file_activities for
// appID whose [first_seen, last_seen) overlaps [start, end) to carry
// projectID — the time-scoped variant used after assigning a single
// session, as opposed to PropagateProjectToFileActivities's whole-app
// variant used after assigning an application.
func (s *Store) PropagateProjectToFileActivitiesInWindow(ctx context.Context, appID int64, start, end time.Time, projectID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE file_activities SET project_id = ?
		WHERE app_id = ? AND last_seen > ? AND first_seen < ?`,
		projectID, appID, formatTime(start), formatTime(end))
	if err != nil {
		return terrors.IO("propagate project to file activities in window", err)
	}
	return nil
}

// AppHistoryEntry is one app's single-project session history, the unit
// apply_deterministic_assignment reasons about.
type AppHistoryEntry struct {
	ProjectID int64
	Count     int64
}

// AppSingleProjectHistory returns, for each app whose entire eligible
// session history (duration > 10, project assigned) maps to exactly one
// project, that project id and the matching session count — the input to
// apply_deterministic_assignment (spec.md §4.7).
func (s *Store) AppSingleProjectHistory(ctx context.Context) (map[int64]AppHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, COUNT(DISTINCT project_id), MIN(project_id), COUNT(*)
		FROM sessions
		WHERE project_id IS NOT NULL AND duration_seconds > 10
		GROUP BY app_id
		HAVING COUNT(DISTINCT project_id) = 1`)
	if err != nil {
		return nil, terrors.IO("app single project history", err)
	}
	defer rows.Close()

	out := map[int64]AppHistoryEntry{}
	for rows.Next() {
		var appID, distinctCount, projectID, count int64
		if err := rows.Scan(&appID, &distinctCount, &projectID, &count); err != nil {
			return nil, terrors.IO("scan app single project history", err)
		}
		out[appID] = AppHistoryEntry{ProjectID: projectID, Count: count}
	}
	return out, terrors.IO("iterate app single project history", rows.Err())
}
