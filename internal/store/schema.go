package store

// baseSchema creates every table, index and trigger TimeFlow needs on a
// brand-new database file. Ground: the original Rust implementation's
// db.rs schema (same table/column names and indexes), executed the way
// the teacher's Repository.Migrate runs a schema file as one script
// (internal/repository/postgres.go), adapted here to run as an ordered
// slice of statements inside one transaction instead of a single
// pg_dump-style file, since SQLite's driver does not accept multi-statement
// strings reliably through database/sql.
var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS project_name_blacklist (
		name_key TEXT PRIMARY KEY
	)`,

	`CREATE TABLE IF NOT EXISTS projects (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		name                 TEXT NOT NULL UNIQUE COLLATE NOCASE,
		color                TEXT NOT NULL DEFAULT '#808080',
		hourly_rate          REAL,
		assigned_folder_path TEXT,
		is_imported          INTEGER NOT NULL DEFAULT 0,
		created_at           TEXT NOT NULL,
		excluded_at          TEXT,
		frozen_at            TEXT,
		freeze_reason        TEXT,
		updated_at           TEXT NOT NULL
	)`,

	// Enforce the project-name blacklist at the storage boundary so that
	// every caller (import, resolver auto-create, manual UI) is covered by
	// a single invariant instead of needing to remember to check it.
	`CREATE TRIGGER IF NOT EXISTS trg_projects_blacklist_insert
	BEFORE INSERT ON projects
	WHEN EXISTS (SELECT 1 FROM project_name_blacklist WHERE name_key = lower(NEW.name))
	BEGIN
		SELECT RAISE(ABORT, 'project name is blacklisted');
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_projects_blacklist_update
	BEFORE UPDATE OF name ON projects
	WHEN EXISTS (SELECT 1 FROM project_name_blacklist WHERE name_key = lower(NEW.name))
	BEGIN
		SELECT RAISE(ABORT, 'project name is blacklisted');
	END`,

	`CREATE TABLE IF NOT EXISTS applications (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		executable_name TEXT NOT NULL UNIQUE,
		display_name    TEXT NOT NULL,
		project_id      INTEGER REFERENCES projects(id) ON DELETE SET NULL,
		color           TEXT,
		is_imported     INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS monitored_apps (
		executable_name TEXT PRIMARY KEY,
		display_name    TEXT NOT NULL,
		added_at        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS project_folders (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		path     TEXT NOT NULL UNIQUE,
		added_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id           INTEGER NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		start_time       TEXT NOT NULL,
		end_time         TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		date             TEXT NOT NULL,
		rate_multiplier  REAL NOT NULL DEFAULT 1.0,
		comment          TEXT,
		project_id       INTEGER REFERENCES projects(id) ON DELETE SET NULL,
		is_hidden        INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_app_start ON sessions(app_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)`,

	`CREATE TABLE IF NOT EXISTS manual_sessions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		title            TEXT NOT NULL,
		session_type     TEXT NOT NULL DEFAULT 'other',
		project_id       INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		app_id           INTEGER REFERENCES applications(id) ON DELETE SET NULL,
		start_time       TEXT NOT NULL,
		end_time         TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		date             TEXT NOT NULL,
		created_at       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_manual_sessions_date ON manual_sessions(date)`,

	`CREATE TABLE IF NOT EXISTS file_activities (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id        INTEGER NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		date          TEXT NOT NULL,
		file_name     TEXT NOT NULL,
		total_seconds INTEGER NOT NULL DEFAULT 0,
		first_seen    TEXT NOT NULL,
		last_seen     TEXT NOT NULL,
		project_id    INTEGER REFERENCES projects(id) ON DELETE SET NULL,
		UNIQUE(app_id, date, file_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_activities_date ON file_activities(date)`,

	`CREATE TABLE IF NOT EXISTS manual_overrides (
		executable_name TEXT NOT NULL,
		start_time      TEXT NOT NULL,
		end_time        TEXT NOT NULL,
		project_name    TEXT,
		updated_at      TEXT NOT NULL,
		PRIMARY KEY (executable_name, start_time, end_time)
	)`,

	`CREATE TABLE IF NOT EXISTS assignment_suggestions (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id           INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		app_id               INTEGER NOT NULL,
		suggested_project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		confidence           REAL NOT NULL,
		evidence_count       INTEGER NOT NULL,
		model_version        TEXT NOT NULL,
		created_at           TEXT NOT NULL,
		status               TEXT NOT NULL DEFAULT 'pending'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_status ON assignment_suggestions(status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_suggestions_session ON assignment_suggestions(session_id)`,

	`CREATE TABLE IF NOT EXISTS assignment_feedback (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		suggestion_id   INTEGER,
		session_id      INTEGER,
		app_id          INTEGER,
		from_project_id INTEGER,
		to_project_id   INTEGER,
		source          TEXT NOT NULL,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_app ON assignment_feedback(app_id)`,

	`CREATE TABLE IF NOT EXISTS assignment_auto_runs (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at          TEXT NOT NULL,
		finished_at         TEXT,
		mode                TEXT NOT NULL,
		min_confidence_auto REAL NOT NULL,
		min_evidence_auto   INTEGER NOT NULL,
		sessions_scanned    INTEGER NOT NULL DEFAULT 0,
		sessions_suggested  INTEGER NOT NULL DEFAULT 0,
		sessions_assigned   INTEGER NOT NULL DEFAULT 0,
		error               TEXT,
		rolled_back_at      TEXT,
		rollback_reverted   INTEGER NOT NULL DEFAULT 0,
		rollback_skipped    INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS assignment_auto_run_items (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id          INTEGER NOT NULL REFERENCES assignment_auto_runs(id) ON DELETE CASCADE,
		session_id      INTEGER NOT NULL,
		app_id          INTEGER NOT NULL,
		from_project_id INTEGER,
		to_project_id   INTEGER NOT NULL,
		suggestion_id   INTEGER,
		confidence      REAL NOT NULL,
		evidence_count  INTEGER NOT NULL,
		applied_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_items_run ON assignment_auto_run_items(run_id)`,

	// Naive-Bayes-style evidence counters backing the classifier (C7).
	`CREATE TABLE IF NOT EXISTS assignment_model_app (
		app_id     INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (app_id, project_id)
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_model_token (
		token      TEXT NOT NULL,
		project_id INTEGER NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (token, project_id)
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_model_time (
		hour       INTEGER NOT NULL,
		weekday    INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (hour, weekday, project_id)
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_model_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS estimate_settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	// Per-file import ledger (spec.md §4.4, P1): records every file the
	// Ingestor has already applied so re-importing a non-today file is a
	// no-op instead of reapplying its sessions.
	`CREATE TABLE IF NOT EXISTS imported_files (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path     TEXT NOT NULL UNIQUE,
		import_date   TEXT NOT NULL,
		records_count INTEGER NOT NULL DEFAULT 0
	)`,
}
