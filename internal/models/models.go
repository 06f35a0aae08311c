// Package models defines the durable entities owned by the Store (C9).
package models

import "time"

// Project is a billing/attribution bucket that sessions, manual sessions,
// and file activities are assigned to.
type Project struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	Color               string     `json:"color"`
	HourlyRate          *float64   `json:"hourly_rate,omitempty"`
	AssignedFolderPath  *string    `json:"assigned_folder_path,omitempty"`
	IsImported          bool       `json:"is_imported"`
	CreatedAt           time.Time  `json:"created_at"`
	ExcludedAt          *time.Time `json:"excluded_at,omitempty"`
	FrozenAt            *time.Time `json:"frozen_at,omitempty"`
	FreezeReason        *string    `json:"freeze_reason,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Active reports whether the project can currently receive new assignments.
func (p Project) Active() bool { return p.ExcludedAt == nil }

// Application is a monitored or previously-seen executable.
type Application struct {
	ID             int64   `json:"id"`
	ExecutableName string  `json:"executable_name"` // lowercase, unique
	DisplayName    string  `json:"display_name"`
	ProjectID      *int64  `json:"project_id,omitempty"`
	Color          *string `json:"color,omitempty"`
	IsImported     bool    `json:"is_imported"`
}

// Session is a contiguous block of foreground/background activity for one
// application, coalesced by the Session Builder and reconciled on import.
type Session struct {
	ID              int64     `json:"id"`
	AppID           int64     `json:"app_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	Date            string    `json:"date"` // YYYY-MM-DD, local calendar day of StartTime
	RateMultiplier  float64   `json:"rate_multiplier"`
	Comment         string    `json:"comment,omitempty"`
	ProjectID       *int64    `json:"project_id,omitempty"`
	IsHidden        bool      `json:"is_hidden"`
}

// ManualSession is a user-entered block of time not derived from sampling.
type ManualSession struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	SessionType     string    `json:"session_type"` // free-form tag, default "other"
	ProjectID       int64     `json:"project_id"`
	AppID           *int64    `json:"app_id,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	Date            string    `json:"date"`
	CreatedAt       time.Time `json:"created_at"`
}

// FileActivity is per-(app,date,file) accumulated time, derived from the
// Session Builder's file index and reconciled on import.
type FileActivity struct {
	ID            int64     `json:"id"`
	AppID         int64     `json:"app_id"`
	Date          string    `json:"date"`
	FileName      string    `json:"file_name"`
	TotalSeconds  int64     `json:"total_seconds"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	ProjectID     *int64    `json:"project_id,omitempty"`
}

// MonitoredApp names an executable the Collector should sample.
type MonitoredApp struct {
	ExecutableName string    `json:"executable_name"`
	DisplayName    string    `json:"display_name"`
	AddedAt        time.Time `json:"added_at"`
}

// ProjectFolder is a canonical absolute path root used by the Project
// Resolver's folder-prefix heuristic.
type ProjectFolder struct {
	ID      int64     `json:"id"`
	Path    string    `json:"path"`
	AddedAt time.Time `json:"added_at"`
}

// ManualOverride is a durable (exe, start, end) -> project pin that survives
// bulk reimports.
type ManualOverride struct {
	ExecutableName string
	StartTime      time.Time
	EndTime        time.Time
	ProjectName    *string // nil means "explicitly unassigned"
	UpdatedAt      time.Time
}

// SuggestionStatus is the lifecycle state of an AssignmentSuggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionExpired  SuggestionStatus = "expired"
)

// AssignmentSuggestion records one classifier suggestion for a session.
type AssignmentSuggestion struct {
	ID                  int64            `json:"id"`
	SessionID           int64            `json:"session_id"`
	AppID               int64            `json:"app_id"`
	SuggestedProjectID  int64            `json:"suggested_project_id"`
	Confidence          float64          `json:"confidence"`
	EvidenceCount        int              `json:"evidence_count"`
	ModelVersion        string           `json:"model_version"`
	CreatedAt           time.Time        `json:"created_at"`
	Status              SuggestionStatus `json:"status"`
}

// FeedbackSource identifies what caused an AssignmentFeedback row.
type FeedbackSource string

const (
	SourceManualAppAssign     FeedbackSource = "manual_app_assign"
	SourceManualSessionAssign FeedbackSource = "manual_session_assign"
	SourceAutoAccept          FeedbackSource = "auto_accept"
	SourceAutoReject          FeedbackSource = "auto_reject"
	SourceDeterministicRule   FeedbackSource = "deterministic_rule"
)

// AssignmentFeedback is an append-only ledger of assignment changes, the
// classifier's training signal.
type AssignmentFeedback struct {
	ID            int64          `json:"id"`
	SuggestionID  *int64         `json:"suggestion_id,omitempty"`
	SessionID     *int64         `json:"session_id,omitempty"`
	AppID         *int64         `json:"app_id,omitempty"`
	FromProjectID *int64         `json:"from_project_id,omitempty"`
	ToProjectID   *int64         `json:"to_project_id,omitempty"`
	Source        FeedbackSource `json:"source"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AutoSafeRun is one execution of the auto-safe assignment scan.
type AutoSafeRun struct {
	ID                int64      `json:"id"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Mode              string     `json:"mode"`
	MinConfidenceAuto float64    `json:"min_confidence_auto"`
	MinEvidenceAuto   int        `json:"min_evidence_auto"`
	SessionsScanned   int        `json:"sessions_scanned"`
	SessionsSuggested int        `json:"sessions_suggested"`
	SessionsAssigned  int        `json:"sessions_assigned"`
	Error             *string    `json:"error,omitempty"`
	RolledBackAt      *time.Time `json:"rolled_back_at,omitempty"`
	RollbackReverted  int        `json:"rollback_reverted"`
	RollbackSkipped   int        `json:"rollback_skipped"`
}

// AutoSafeRunItem is one accepted assignment produced during an AutoSafeRun.
type AutoSafeRunItem struct {
	ID             int64     `json:"id"`
	RunID          int64     `json:"run_id"`
	SessionID      int64     `json:"session_id"`
	AppID          int64     `json:"app_id"`
	FromProjectID  *int64    `json:"from_project_id,omitempty"`
	ToProjectID    int64     `json:"to_project_id"`
	SuggestionID   *int64    `json:"suggestion_id,omitempty"`
	Confidence     float64   `json:"confidence"`
	EvidenceCount  int       `json:"evidence_count"`
	AppliedAt      time.Time `json:"applied_at"`
}

// DailyFile is the Collector<->Ingestor boundary document (C3).
type DailyFile struct {
	Date        string             `json:"date"`
	GeneratedAt time.Time          `json:"generated_at"`
	Apps        map[string]AppDay  `json:"apps"`
	Summary     DailyFileSummary   `json:"summary"`
}

// AppDay is one application's entry within a DailyFile.
type AppDay struct {
	DisplayName  string            `json:"display_name"`
	TotalSeconds uint64            `json:"total_seconds"`
	Sessions     []DailyFileSession `json:"sessions"`
	Files        []DailyFileEntry   `json:"files,omitempty"`
}

// DailyFileSession is one coalesced session within an AppDay.
type DailyFileSession struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds uint64    `json:"duration_seconds"`
}

// DailyFileEntry is one file-hint accumulator within an AppDay.
type DailyFileEntry struct {
	Name         string    `json:"name"`
	TotalSeconds uint64    `json:"total_seconds"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// DailyFileSummary is the denormalized daily roll-up written alongside Apps.
type DailyFileSummary struct {
	TotalAppSeconds   uint64 `json:"total_app_seconds"`
	TotalAppFormatted string `json:"total_app_formatted"`
	AppsActiveCount   int    `json:"apps_active_count"`
}

// BackgroundFileHint is the sentinel file_hint the Session Builder records
// when a foreground window title yields no file name. CPU activity of apps
// that are not in the foreground is not sampled or recorded.
const BackgroundFileHint = "(background)"

// ExportArchive is the durable export/sync wire format import_data and
// import_data_archive consume (spec.md §6, version "1.1").
type ExportArchive struct {
	Version    string           `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	MachineID  string           `json:"machine_id"`
	ExportType string           `json:"export_type"` // "all_data" | "single_project"
	DateRange  *ExportDateRange `json:"date_range,omitempty"`
	Metadata   ExportMetadata   `json:"metadata"`
	Data       ExportData       `json:"data"`
}

// ExportDateRange bounds a single-project export's session window.
type ExportDateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ExportMetadata is the denormalized row-count summary written alongside
// an archive's data, so a reader can sanity-check it without parsing Data.
type ExportMetadata struct {
	ProjectCount     int `json:"project_count"`
	ApplicationCount int `json:"application_count"`
	SessionCount     int `json:"session_count"`
}

// ExportData is the archive's payload: every table import_data(archive)
// reconciles into the Store.
type ExportData struct {
	Projects       []ExportProject       `json:"projects"`
	Applications   []ExportApplication   `json:"applications"`
	Sessions       []ExportSession       `json:"sessions"`
	ManualSessions []ExportManualSession `json:"manual_sessions"`
	Tombstones     *ExportTombstones     `json:"tombstones,omitempty"`
	DailyFiles     map[string]DailyFile  `json:"daily_files,omitempty"`
}

// ExportProject is one project row in an archive.
type ExportProject struct {
	Name       string   `json:"name"`
	Color      string   `json:"color"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
}

// ExportApplication is one application row in an archive, carrying its
// project by name rather than by local id (archives cross machines,
// where ids are not portable).
type ExportApplication struct {
	ExecutableName string  `json:"executable_name"`
	DisplayName    string  `json:"display_name"`
	ProjectName    *string `json:"project_name,omitempty"`
}

// ExportSession is one sampled session row in an archive.
type ExportSession struct {
	ExecutableName  string    `json:"executable_name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	Date            string    `json:"date"`
	RateMultiplier  float64   `json:"rate_multiplier"`
}

// ExportManualSession is one manual session row in an archive.
type ExportManualSession struct {
	Title           string    `json:"title"`
	SessionType     string    `json:"session_type"`
	ProjectName     string    `json:"project_name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	Date            string    `json:"date"`
}

// ExportTombstones lists deletions that must replay during import_data so
// a record removed on one machine stays removed after the next sync
// (spec.md §4.4).
type ExportTombstones struct {
	DeletedProjectNames   []string                 `json:"deleted_project_names,omitempty"`
	DeletedManualSessions []ManualSessionTombstone `json:"deleted_manual_sessions,omitempty"`
}

// ManualSessionTombstone identifies a manual session to delete by its
// natural key, since archives don't carry portable local ids.
type ManualSessionTombstone struct {
	StartTime time.Time `json:"start_time"`
	Title     string    `json:"title"`
}
