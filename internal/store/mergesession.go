package store

import (
	"context"
	"time"

	"timeflow/internal/terrors"
)

// MergeOrInsertSession implements the interval-closure session merge
// import_data(archive) needs when reconciling an incoming session against
// whatever the Store already has for that (app, day): it repeatedly
// expands [start, end] to cover every already-stored session on
// (app_id, date) the growing window overlaps, until the overlap set
// stops changing, then collapses all of them into a single row. This is
// distinct from UpsertSession's single (app_id, start_time) collision
// rule, which only catches an exact re-import of the same interval, not
// a differently-chunked session covering the same wall-clock time.
// Ground: original_source/dashboard/src-tauri/src/commands/import_data.rs's
// merge_or_insert_session (spec.md §4.4, §4.11, P3/P10).
func (s *Store) MergeOrInsertSession(ctx context.Context, appID int64, date string, start, end time.Time, rateMultiplier float64) (int64, error) {
	mergedStart, mergedEnd, mergedRate := start, end, rateMultiplier
	overlapCount := -1

	var ids []int64
	for {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, start_time, end_time, rate_multiplier FROM sessions
			WHERE app_id = ? AND date = ? AND start_time <= ? AND end_time >= ?`,
			appID, date, formatTime(mergedEnd), formatTime(mergedStart))
		if err != nil {
			return 0, terrors.IO("find overlapping sessions", err)
		}

		ids = ids[:0]
		newStart, newEnd, newRate := mergedStart, mergedEnd, mergedRate
		for rows.Next() {
			var id int64
			var st, en string
			var rate float64
			if err := rows.Scan(&id, &st, &en, &rate); err != nil {
				rows.Close()
				return 0, terrors.IO("scan overlapping session", err)
			}
			ids = append(ids, id)
			if t, err := parseTime(st); err == nil && t.Before(newStart) {
				newStart = t
			}
			if t, err := parseTime(en); err == nil && t.After(newEnd) {
				newEnd = t
			}
			if rate > newRate {
				newRate = rate
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return 0, terrors.IO("iterate overlapping sessions", err)
		}
		rows.Close()

		mergedStart, mergedEnd, mergedRate = newStart, newEnd, newRate
		if len(ids) == overlapCount {
			break
		}
		overlapCount = len(ids)
	}

	duration := int64(mergedEnd.Sub(mergedStart).Seconds())

	if len(ids) == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (app_id, start_time, end_time, duration_seconds, date, rate_multiplier, is_hidden)
			VALUES (?, ?, ?, ?, ?, ?, 0)`,
			appID, formatTime(mergedStart), formatTime(mergedEnd), duration, date, mergedRate)
		if err != nil {
			return 0, terrors.IntegrityWrap("insert merged session", err)
		}
		id, _ := res.LastInsertId()
		return id, nil
	}

	keepID := ids[0]
	for _, id := range ids[1:] {
		if id < keepID {
			keepID = id
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET start_time = ?, end_time = ?, duration_seconds = ?, rate_multiplier = ?
		WHERE id = ?`,
		formatTime(mergedStart), formatTime(mergedEnd), duration, mergedRate, keepID); err != nil {
		return 0, terrors.IO("update merged session", err)
	}

	for _, id := range ids {
		if id == keepID {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return 0, terrors.IO("delete superseded merged session", err)
		}
	}
	return keepID, nil
}
