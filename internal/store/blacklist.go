package store

import (
	"context"
	"strings"

	"timeflow/internal/terrors"
)

// BlacklistProjectName adds name (case-folded) to the set the
// trg_projects_blacklist_* triggers enforce — ground: original_source's
// project_name_is_blacklisted/name_key table.
func (s *Store) BlacklistProjectName(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO project_name_blacklist (name_key) VALUES (?)`,
		strings.ToLower(name))
	if err != nil {
		return terrors.IO("blacklist project name", err)
	}
	return nil
}

func (s *Store) IsProjectNameBlacklisted(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_name_blacklist WHERE name_key = ?`,
		strings.ToLower(name)).Scan(&count)
	if err != nil {
		return false, terrors.IO("check project name blacklist", err)
	}
	return count > 0, nil
}

func (s *Store) AddProjectFolder(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO project_folders (path, added_at) VALUES (?, ?)`,
		path, nowRFC3339())
	if err != nil {
		return terrors.IO("add project folder", err)
	}
	return nil
}

func (s *Store) ProjectFolders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM project_folders ORDER BY length(path) DESC`)
	if err != nil {
		return nil, terrors.IO("list project folders", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, terrors.IO("scan project folder", err)
		}
		out = append(out, p)
	}
	return out, terrors.IO("iterate project folders", rows.Err())
}
