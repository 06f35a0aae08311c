package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"

	"timeflow/internal/terrors"
)

// GlobalHourlyRate reads estimate_settings["global_hourly_rate"], default
// 100 — ground: original_source's get_global_hourly_rate.
func (s *Store) GlobalHourlyRate(ctx context.Context) (float64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM estimate_settings WHERE key = 'global_hourly_rate'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 100, nil
	}
	if err != nil {
		return 0, terrors.IO("global hourly rate", err)
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, terrors.Parse("parse global hourly rate", err)
	}
	return rate, nil
}

func (s *Store) SetGlobalHourlyRate(ctx context.Context, rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 || rate > 100_000 {
		return terrors.Validation("hourly rate out of range")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO estimate_settings (key, value) VALUES ('global_hourly_rate', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.FormatFloat(rate, 'f', -1, 64))
	if err != nil {
		return terrors.IO("set global hourly rate", err)
	}
	return nil
}
