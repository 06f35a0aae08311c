package store

import (
	"context"
	"database/sql"
	"errors"

	"timeflow/internal/terrors"
)

// IncrementAppCount bumps the (app, project) evidence counter the
// classifier trains on (spec.md §4.7's app-affinity term).
func (s *Store) IncrementAppCount(ctx context.Context, appID, projectID int64, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_model_app (app_id, project_id, count) VALUES (?, ?, ?)
		ON CONFLICT(app_id, project_id) DO UPDATE SET count = MAX(0, count + excluded.count)`,
		appID, projectID, delta)
	if err != nil {
		return terrors.IO("increment app count", err)
	}
	return nil
}

// AppCounts returns project_id -> count for one app, the evidence set for
// the app-affinity term.
func (s *Store) AppCounts(ctx context.Context, appID int64) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, count FROM assignment_model_app WHERE app_id = ?`, appID)
	if err != nil {
		return nil, terrors.IO("app counts", err)
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var pid, cnt int64
		if err := rows.Scan(&pid, &cnt); err != nil {
			return nil, terrors.IO("scan app count", err)
		}
		out[pid] = cnt
	}
	return out, terrors.IO("iterate app counts", rows.Err())
}

func (s *Store) IncrementTokenCount(ctx context.Context, token string, projectID int64, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_model_token (token, project_id, count) VALUES (?, ?, ?)
		ON CONFLICT(token, project_id) DO UPDATE SET count = MAX(0, count + excluded.count)`,
		token, projectID, delta)
	if err != nil {
		return terrors.IO("increment token count", err)
	}
	return nil
}

func (s *Store) TokenCounts(ctx context.Context, token string) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, count FROM assignment_model_token WHERE token = ?`, token)
	if err != nil {
		return nil, terrors.IO("token counts", err)
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var pid, cnt int64
		if err := rows.Scan(&pid, &cnt); err != nil {
			return nil, terrors.IO("scan token count", err)
		}
		out[pid] = cnt
	}
	return out, terrors.IO("iterate token counts", rows.Err())
}

func (s *Store) IncrementTimeCount(ctx context.Context, hour, weekday int, projectID int64, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_model_time (hour, weekday, project_id, count) VALUES (?, ?, ?, ?)
		ON CONFLICT(hour, weekday, project_id) DO UPDATE SET count = MAX(0, count + excluded.count)`,
		hour, weekday, projectID, delta)
	if err != nil {
		return terrors.IO("increment time count", err)
	}
	return nil
}

func (s *Store) TimeCounts(ctx context.Context, hour, weekday int) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, count FROM assignment_model_time WHERE hour = ? AND weekday = ?`, hour, weekday)
	if err != nil {
		return nil, terrors.IO("time counts", err)
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var pid, cnt int64
		if err := rows.Scan(&pid, &cnt); err != nil {
			return nil, terrors.IO("scan time count", err)
		}
		out[pid] = cnt
	}
	return out, terrors.IO("iterate time counts", rows.Err())
}

// ModelState is a small string->string key/value store for classifier
// tunables (mode, cooldown deadline, model version) — ground:
// original_source's assignment_model_state load_state_map/upsert_state.
func (s *Store) SetModelState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_model_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return terrors.IO("set model state", err)
	}
	return nil
}

func (s *Store) GetModelState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM assignment_model_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, terrors.IO("get model state", err)
	}
	return value, true, nil
}

func (s *Store) LoadModelStateMap(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM assignment_model_state`)
	if err != nil {
		return nil, terrors.IO("load model state map", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, terrors.IO("scan model state", err)
		}
		out[k] = v
	}
	return out, terrors.IO("iterate model state", rows.Err())
}
