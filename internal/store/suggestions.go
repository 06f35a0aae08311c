package store

import (
	"context"
	"database/sql"
	"errors"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

const suggestionColumns = `id, session_id, app_id, suggested_project_id, confidence, evidence_count, model_version, created_at, status`

func scanSuggestion(row interface{ Scan(...interface{}) error }) (models.AssignmentSuggestion, error) {
	var sug models.AssignmentSuggestion
	var createdAt, status string
	if err := row.Scan(&sug.ID, &sug.SessionID, &sug.AppID, &sug.SuggestedProjectID, &sug.Confidence,
		&sug.EvidenceCount, &sug.ModelVersion, &createdAt, &status); err != nil {
		return sug, err
	}
	sug.CreatedAt, _ = parseTime(createdAt)
	sug.Status = models.SuggestionStatus(status)
	return sug, nil
}

// PutSuggestion inserts or replaces the single pending suggestion for a
// session (idx_suggestions_session is unique on session_id), since a
// session should only ever carry one live suggestion at a time.
func (s *Store) PutSuggestion(ctx context.Context, sug models.AssignmentSuggestion) (models.AssignmentSuggestion, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_suggestions (session_id, app_id, suggested_project_id, confidence, evidence_count, model_version, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			suggested_project_id = excluded.suggested_project_id,
			confidence           = excluded.confidence,
			evidence_count       = excluded.evidence_count,
			model_version        = excluded.model_version,
			created_at           = excluded.created_at,
			status               = excluded.status`,
		sug.SessionID, sug.AppID, sug.SuggestedProjectID, sug.Confidence, sug.EvidenceCount,
		sug.ModelVersion, nowRFC3339(), string(sug.Status))
	if err != nil {
		return models.AssignmentSuggestion{}, terrors.IntegrityWrap("put suggestion", err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		row := s.db.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM assignment_suggestions WHERE session_id = ?`, sug.SessionID)
		return scanSuggestion(row)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM assignment_suggestions WHERE id = ?`, id)
	return scanSuggestion(row)
}

func (s *Store) SuggestionsByStatus(ctx context.Context, status models.SuggestionStatus) ([]models.AssignmentSuggestion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+suggestionColumns+` FROM assignment_suggestions WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, terrors.IO("suggestions by status", err)
	}
	defer rows.Close()
	var out []models.AssignmentSuggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, terrors.IO("scan suggestion", err)
		}
		out = append(out, sug)
	}
	return out, terrors.IO("iterate suggestions", rows.Err())
}

func (s *Store) SetSuggestionStatus(ctx context.Context, id int64, status models.SuggestionStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE assignment_suggestions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return terrors.IO("set suggestion status", err)
	}
	return nil
}

// RecordFeedback appends one training-signal row (spec.md §4.7's
// append-only feedback ledger).
func (s *Store) RecordFeedback(ctx context.Context, f models.AssignmentFeedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_feedback (suggestion_id, session_id, app_id, from_project_id, to_project_id, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.SuggestionID, f.SessionID, f.AppID, f.FromProjectID, f.ToProjectID, string(f.Source), nowRFC3339())
	if err != nil {
		return terrors.IO("record assignment feedback", err)
	}
	return nil
}

func (s *Store) FeedbackSince(ctx context.Context, sinceRFC3339 string) ([]models.AssignmentFeedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, suggestion_id, session_id, app_id, from_project_id, to_project_id, source, created_at
		 FROM assignment_feedback WHERE created_at >= ? ORDER BY created_at`, sinceRFC3339)
	if err != nil {
		return nil, terrors.IO("feedback since", err)
	}
	defer rows.Close()
	var out []models.AssignmentFeedback
	for rows.Next() {
		var f models.AssignmentFeedback
		var suggestionID, sessionID, appID, fromID, toID sql.NullInt64
		var source, createdAt string
		if err := rows.Scan(&f.ID, &suggestionID, &sessionID, &appID, &fromID, &toID, &source, &createdAt); err != nil {
			return nil, terrors.IO("scan feedback", err)
		}
		if suggestionID.Valid {
			f.SuggestionID = &suggestionID.Int64
		}
		if sessionID.Valid {
			f.SessionID = &sessionID.Int64
		}
		if appID.Valid {
			f.AppID = &appID.Int64
		}
		if fromID.Valid {
			f.FromProjectID = &fromID.Int64
		}
		if toID.Valid {
			f.ToProjectID = &toID.Int64
		}
		f.Source = models.FeedbackSource(source)
		f.CreatedAt, _ = parseTime(createdAt)
		out = append(out, f)
	}
	return out, terrors.IO("iterate feedback", rows.Err())
}

// StartAutoSafeRun inserts the run header; FinishAutoSafeRun fills in the
// remaining counters once the scan completes (spec.md §4.7, auto-safe
// mode).
func (s *Store) StartAutoSafeRun(ctx context.Context, mode string, minConfidenceAuto float64, minEvidenceAuto int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_auto_runs (started_at, mode, min_confidence_auto, min_evidence_auto)
		VALUES (?, ?, ?, ?)`,
		nowRFC3339(), mode, minConfidenceAuto, minEvidenceAuto)
	if err != nil {
		return 0, terrors.IO("start auto-safe run", err)
	}
	return res.LastInsertId()
}

func (s *Store) FinishAutoSafeRun(ctx context.Context, runID int64, scanned, suggested, assigned int, runErr error) error {
	var errMsg interface{}
	if runErr != nil {
		errMsg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE assignment_auto_runs SET finished_at = ?, sessions_scanned = ?, sessions_suggested = ?, sessions_assigned = ?, error = ?
		WHERE id = ?`, nowRFC3339(), scanned, suggested, assigned, errMsg, runID)
	if err != nil {
		return terrors.IO("finish auto-safe run", err)
	}
	return nil
}

func (s *Store) RecordAutoSafeItem(ctx context.Context, item models.AutoSafeRunItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_auto_run_items (run_id, session_id, app_id, from_project_id, to_project_id, suggestion_id, confidence, evidence_count, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.RunID, item.SessionID, item.AppID, item.FromProjectID, item.ToProjectID, item.SuggestionID,
		item.Confidence, item.EvidenceCount, nowRFC3339())
	if err != nil {
		return terrors.IO("record auto-safe run item", err)
	}
	return nil
}

func (s *Store) AutoSafeRunItems(ctx context.Context, runID int64) ([]models.AutoSafeRunItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, session_id, app_id, from_project_id, to_project_id, suggestion_id, confidence, evidence_count, applied_at
		FROM assignment_auto_run_items WHERE run_id = ?`, runID)
	if err != nil {
		return nil, terrors.IO("auto-safe run items", err)
	}
	defer rows.Close()
	var out []models.AutoSafeRunItem
	for rows.Next() {
		var item models.AutoSafeRunItem
		var fromID, suggestionID sql.NullInt64
		var appliedAt string
		if err := rows.Scan(&item.ID, &item.RunID, &item.SessionID, &item.AppID, &fromID, &item.ToProjectID,
			&suggestionID, &item.Confidence, &item.EvidenceCount, &appliedAt); err != nil {
			return nil, terrors.IO("scan auto-safe run item", err)
		}
		if fromID.Valid {
			item.FromProjectID = &fromID.Int64
		}
		if suggestionID.Valid {
			item.SuggestionID = &suggestionID.Int64
		}
		item.AppliedAt, _ = parseTime(appliedAt)
		out = append(out, item)
	}
	return out, terrors.IO("iterate auto-safe run items", rows.Err())
}

// MarkAutoSafeRunRolledBack records rollback bookkeeping (spec.md §4.7,
// rollback_last_auto_safe_run).
func (s *Store) MarkAutoSafeRunRolledBack(ctx context.Context, runID int64, reverted, skipped int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assignment_auto_runs SET rolled_back_at = ?, rollback_reverted = ?, rollback_skipped = ? WHERE id = ?`,
		nowRFC3339(), reverted, skipped, runID)
	if err != nil {
		return terrors.IO("mark auto-safe run rolled back", err)
	}
	return nil
}

// LatestAutoSafeRun returns the most recent run with sessions_assigned > 0
// and no rolled_back_at, or terrors.NotFound if none exists.
func (s *Store) LatestAutoSafeRun(ctx context.Context) (models.AutoSafeRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, mode, min_confidence_auto, min_evidence_auto,
		       sessions_scanned, sessions_suggested, sessions_assigned, error, rolled_back_at, rollback_reverted, rollback_skipped
		FROM assignment_auto_runs
		WHERE sessions_assigned > 0 AND rolled_back_at IS NULL
		ORDER BY started_at DESC LIMIT 1`)
	var run models.AutoSafeRun
	var startedAt string
	var finishedAt, errMsg, rolledBackAt sql.NullString
	err := row.Scan(&run.ID, &startedAt, &finishedAt, &run.Mode, &run.MinConfidenceAuto, &run.MinEvidenceAuto,
		&run.SessionsScanned, &run.SessionsSuggested, &run.SessionsAssigned, &errMsg, &rolledBackAt,
		&run.RollbackReverted, &run.RollbackSkipped)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AutoSafeRun{}, terrors.NotFound("no auto-safe run found")
	}
	if err != nil {
		return models.AutoSafeRun{}, terrors.IO("latest auto-safe run", err)
	}
	run.StartedAt, _ = parseTime(startedAt)
	if finishedAt.Valid {
		t, _ := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	if rolledBackAt.Valid {
		t, _ := parseTime(rolledBackAt.String)
		run.RolledBackAt = &t
	}
	return run, nil
}
