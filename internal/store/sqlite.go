// Package store is the single-file embedded database (C9). Ground: the
// teacher's internal/repository.Repository — a struct wrapping a
// connection pool, exposing Migrate/Close and explicit
// Begin/Commit/Rollback transactions (internal/repository/postgres.go) —
// re-pointed from pgxpool/Postgres onto modernc.org/sqlite, the pure-Go
// embedded engine, since spec.md §4.9 requires WAL mode, a busy_timeout,
// and VACUUM INTO backups that a server-mode Postgres connection cannot
// provide.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"timeflow/internal/terrors"
)

// Store wraps the single SQLite file backing either the primary or demo
// database (spec.md §4.9, Mode).
type Store struct {
	db          *sql.DB
	path        string
	busyTimeout time.Duration
}

// Open opens (or creates) the database file at path, applies the
// connection-level pragmas spec.md §4.9 requires, and runs Migrate.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path, busyTimeout))
	if err != nil {
		return nil, terrors.IO("open sqlite database", err)
	}
	// WAL mode permits one writer and many concurrent readers; the
	// Collector never opens this file, so the only real contention is
	// between the Dashboard's background jobs and its own query surface.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, busyTimeout: busyTimeout}
	if err := s.db.PingContext(ctx); err != nil {
		db.Close()
		return nil, terrors.IO("ping sqlite database", err)
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		path, busyTimeout.Milliseconds())
}

// OpenMemory opens an in-memory database for tests, migrated the same way
// as a file-backed Store. Ground: the Design Notes' "variants: embedded
// single-file engine vs. test in-memory engine" — resolved here as two
// DSNs over the same driver rather than two engines, since
// modernc.org/sqlite supports both.
func OpenMemory(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(ON)&cache=shared")
	if err != nil {
		return nil, terrors.IO("open in-memory sqlite database", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BackupTo writes a consistent snapshot of the live database to destPath
// using SQLite's VACUUM INTO, which is safe to run concurrently with
// readers and writers under WAL (spec.md §4.9, BackupEnabled).
func (s *Store) BackupTo(ctx context.Context, destPath string) error {
	_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath)
	if err != nil {
		return terrors.IO("vacuum into "+destPath, err)
	}
	return nil
}

// Optimize runs SQLite's incremental query-planner statistics refresh
// (spec.md §4.9, AutoOptimizeEnabled).
func (s *Store) Optimize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA optimize`)
	if err != nil {
		return terrors.IO("pragma optimize", err)
	}
	return nil
}

// CheckpointWAL forces every committed WAL frame back into the main
// database file and truncates the WAL, so a subsequent BackupTo snapshot
// (or a plain file copy) reflects every write made so far — the first
// step of import_data_archive's restore-point-before-convergence sequence
// (spec.md §4.4).
func (s *Store) CheckpointWAL(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	if err != nil {
		return terrors.IO("wal checkpoint", err)
	}
	return nil
}

// TruncateSyncedTables empties the tables import_data_archive fully
// replaces from the server snapshot. Sessions, manual sessions, and file
// activities cascade or null out via the existing foreign keys, so only
// the two root tables need an explicit delete (spec.md §4.4).
func (s *Store) TruncateSyncedTables(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM applications`); err != nil {
			return terrors.IO("truncate applications", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects`); err != nil {
			return terrors.IO("truncate projects", err)
		}
		return nil
	})
}

// RestoreFrom replaces the live database file with snapshotPath's
// contents, closing and reopening the connection around the copy so no
// other goroutine observes a half-overwritten file — the rollback half of
// import_data_archive's checkpoint/restore-point/truncate-replay sequence
// (spec.md §4.4). Only valid for a file-backed Store.
func (s *Store) RestoreFrom(ctx context.Context, snapshotPath string) error {
	if s.path == "" {
		return terrors.IO("restore from snapshot", fmt.Errorf("store has no backing file"))
	}
	if err := s.db.Close(); err != nil {
		return terrors.IO("close database before restore", err)
	}
	if err := copyFile(snapshotPath, s.path); err != nil {
		return terrors.IO("copy restore point over live database", err)
	}
	db, err := sql.Open("sqlite", sqliteDSN(s.path, s.busyTimeout))
	if err != nil {
		return terrors.IO("reopen database after restore", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db
	if err := s.db.PingContext(ctx); err != nil {
		return terrors.IO("ping database after restore", err)
	}
	return nil
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := destPath + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, destPath)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic, mirroring the teacher's
// `tx, err := r.db.Begin(ctx); defer tx.Rollback(ctx)` idiom
// (internal/repository/postgres.go).
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return terrors.IO("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
