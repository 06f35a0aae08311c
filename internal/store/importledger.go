package store

import (
	"context"
	"database/sql"
	"errors"

	"timeflow/internal/terrors"
)

// ImportLedgerEntry is one row of the per-file import ledger (spec.md
// §4.4): a record that a given daily file has already been applied, so a
// later re-import of the same (non-today) file can be rejected as a
// no-op instead of reapplying its sessions (P1).
type ImportLedgerEntry struct {
	FilePath     string
	ImportDate   string
	RecordsCount int
}

// FindImportedFile looks up filePath in the ledger, mirroring the
// original's check_file_imported.
func (s *Store) FindImportedFile(ctx context.Context, filePath string) (ImportLedgerEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT file_path, import_date, records_count FROM imported_files WHERE file_path = ?`, filePath)
	var e ImportLedgerEntry
	err := row.Scan(&e.FilePath, &e.ImportDate, &e.RecordsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportLedgerEntry{}, false, nil
	}
	if err != nil {
		return ImportLedgerEntry{}, false, terrors.IO("find imported file", err)
	}
	return e, true, nil
}

// RecordImportedFile inserts or updates filePath's ledger entry after a
// successful import, the write side of check_file_imported/
// get_imported_files.
func (s *Store) RecordImportedFile(ctx context.Context, filePath, importDate string, recordsCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO imported_files (file_path, import_date, records_count)
		VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			import_date   = excluded.import_date,
			records_count = excluded.records_count`,
		filePath, importDate, recordsCount)
	if err != nil {
		return terrors.IO("record imported file", err)
	}
	return nil
}

// ImportedFiles returns every ledger entry, newest first, used by CLI/API
// surfaces that list import history.
func (s *Store) ImportedFiles(ctx context.Context) ([]ImportLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, import_date, records_count FROM imported_files ORDER BY import_date DESC`)
	if err != nil {
		return nil, terrors.IO("list imported files", err)
	}
	defer rows.Close()
	var out []ImportLedgerEntry
	for rows.Next() {
		var e ImportLedgerEntry
		if err := rows.Scan(&e.FilePath, &e.ImportDate, &e.RecordsCount); err != nil {
			return nil, terrors.IO("scan imported file", err)
		}
		out = append(out, e)
	}
	return out, terrors.IO("iterate imported files", rows.Err())
}
