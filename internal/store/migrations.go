package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

// migration is one forward-only schema step. Ground: original_source's
// run_migrations(db) in db.rs, which applies a fixed ordered list of ALTER
// TABLE / data-shuffling steps against whatever schema version an existing
// database file happens to be at. TimeFlow tracks the applied set in
// schema_migrations instead of db.rs's ad-hoc "does this column exist"
// probing, since database/sql gives no easy PRAGMA table_info scan helper,
// but the steps themselves are the same shape: idempotent, additive, never
// destructive of user data.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{
		version: 1,
		name:    "base_schema",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			for _, stmt := range baseSchema {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("base_schema: %w", err)
				}
			}
			return nil
		},
	},
	{
		// Mirrors db.rs's final cleanup pass: a project auto-created from a
		// folder-root guess can collide with an application's own display
		// name, or with the literal "(background)" sentinel. Delete those,
		// nulling out any references first so the foreign keys hold.
		version: 2,
		name:    "drop_shadow_projects",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, `
				SELECT p.id FROM projects p
				WHERE lower(p.name) = ?
				   OR EXISTS (
				       SELECT 1 FROM applications a
				       WHERE lower(a.display_name) = lower(p.name)
				   )`, strings.ToLower(models.BackgroundFileHint))
			if err != nil {
				return fmt.Errorf("drop_shadow_projects: select: %w", err)
			}
			var shadowIDs []int64
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return fmt.Errorf("drop_shadow_projects: scan: %w", err)
				}
				shadowIDs = append(shadowIDs, id)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("drop_shadow_projects: rows: %w", err)
			}

			for _, id := range shadowIDs {
				if _, err := tx.ExecContext(ctx, `UPDATE file_activities SET project_id = NULL WHERE project_id = ?`, id); err != nil {
					return fmt.Errorf("drop_shadow_projects: unlink file_activities: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `UPDATE sessions SET project_id = NULL WHERE project_id = ?`, id); err != nil {
					return fmt.Errorf("drop_shadow_projects: unlink sessions: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `UPDATE applications SET project_id = NULL WHERE project_id = ?`, id); err != nil {
					return fmt.Errorf("drop_shadow_projects: unlink applications: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
					return fmt.Errorf("drop_shadow_projects: delete: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies every migration whose version has not yet been recorded
// in schema_migrations, in ascending order, each inside its own
// transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return terrors.IO("create schema_migrations", err)
	}

	applied := map[int]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return terrors.IO("read schema_migrations", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return terrors.IO("scan schema_migrations", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return terrors.IO("iterate schema_migrations", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return terrors.IO("begin migration "+m.name, err)
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return terrors.Wrap(terrors.KindIntegrity, "apply migration "+m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.version, nowRFC3339()); err != nil {
			tx.Rollback()
			return terrors.IO("record migration "+m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return terrors.IO("commit migration "+m.name, err)
		}
	}
	return nil
}
