// Package ingest implements the Ingestor (C4): it reads DailyFile
// documents written by the Collector, reconciles them with what the
// Store already has for that (app, day), and turns the diff into
// Store writes. Ground: the teacher's ingester.Service (internal/
// ingester/service.go, now retired) committed chain-fetched batches
// behind a CheckpointCommitter so a crash mid-batch could resume without
// reprocessing; here the DailyFile's own session list plays the role of
// the batch, and UpsertSession's ON CONFLICT dedup-by-max-duration plays
// the role of the checkpoint, so re-running Import on the same file is
// always safe (spec.md §4.4, P2).
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"timeflow/internal/config"
	"timeflow/internal/dailyfile"
	"timeflow/internal/models"
	"timeflow/internal/store"
	"timeflow/internal/terrors"
)

// Store is the subset of *store.Store the Ingestor depends on.
type Store interface {
	UpsertApplication(ctx context.Context, executableName, displayName string) (models.Application, error)
	UpsertSession(ctx context.Context, sess models.Session) (models.Session, error)
	AccumulateFileActivity(ctx context.Context, appID int64, date, fileName string, seconds int64, seenAt string, projectID *int64) error
	OverridesForExecutable(ctx context.Context, executableName string) ([]models.ManualOverride, error)
	FindProjectByName(ctx context.Context, name string) (models.Project, bool, error)
	AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error
	ProjectFolders(ctx context.Context) ([]string, error)

	FindImportedFile(ctx context.Context, filePath string) (store.ImportLedgerEntry, bool, error)
	RecordImportedFile(ctx context.Context, filePath, importDate string, recordsCount int) error

	// import_data(archive) (spec.md §4.4, §4.11).
	UpsertProjectByName(ctx context.Context, name, color string, hourlyRate *float64) (models.Project, error)
	DeleteProjectByName(ctx context.Context, name string) error
	DeleteManualSessionByStartTitle(ctx context.Context, start time.Time, title string) error
	UpsertApplicationWithProject(ctx context.Context, executableName, displayName string, projectID *int64) (models.Application, error)
	MergeOrInsertSession(ctx context.Context, appID int64, date string, start, end time.Time, rateMultiplier float64) (int64, error)
	CreateManualSession(ctx context.Context, m models.ManualSession) (models.ManualSession, error)

	// import_data_archive (spec.md §4.4).
	CheckpointWAL(ctx context.Context) error
	BackupTo(ctx context.Context, destPath string) error
	RestoreFrom(ctx context.Context, srcPath string) error
	TruncateSyncedTables(ctx context.Context) error
}

// OverrideReplayer is the subset of *overrides.Book import_data(archive)
// depends on to restore manual pins once the reimport settles (spec.md
// §4.4, §4.10).
type OverrideReplayer interface {
	ReplayAll(ctx context.Context) (int, error)
}

// Retrainer is the subset of *classifier.Classifier import_data(archive)
// depends on to rebuild evidence tables after a remote-sync pull (spec.md
// §4.4, §4.7).
type Retrainer interface {
	Train(ctx context.Context, force bool) error
}

// Resolver is the subset of *resolver.Resolver the Ingestor depends on
// to attribute file activity to a project at ingest time (spec.md §4.4's
// "resolve a candidate project via C5 using folder roots").
type Resolver interface {
	EnsureAppProjectFromFileHint(ctx context.Context, fileName string, folderRoots []string) (*int64, error)
}

// Result summarizes one Import call for logging/CLI output.
type Result struct {
	Date             string
	Success          bool
	Error            string
	SessionsImported int
	FilesAccumulated int
	OverridesApplied int
}

// Ingestor reconciles daily files into the Store.
type Ingestor struct {
	store    Store
	resolver Resolver
	dataDir  string
	baseDir  string
	mode     config.Mode

	overrideBook OverrideReplayer
	classifier   Retrainer
}

func New(s Store, r Resolver, dataDir string) *Ingestor {
	return &Ingestor{
		store:    s,
		resolver: r,
		dataDir:  dataDir,
		baseDir:  filepath.Dir(dataDir),
		mode:     config.ModeNormal,
	}
}

// SetMode selects which mode-specific import/archive directories
// AutoImportFromDataDir scans (spec.md §4.4, §6 storage layout).
func (g *Ingestor) SetMode(mode config.Mode) { g.mode = mode }

// SetOverrideReplayer wires the Manual Override Book's replay pass into
// import_data(archive)'s post-commit step (spec.md §4.4).
func (g *Ingestor) SetOverrideReplayer(r OverrideReplayer) { g.overrideBook = r }

// SetRetrainer wires the classifier's retrain into import_data(archive)'s
// post-commit step when the import source is remote sync (spec.md §4.4).
func (g *Ingestor) SetRetrainer(r Retrainer) { g.classifier = r }

// ImportDate reads and imports the daily file for one date, enforcing the
// per-file import ledger (spec.md §4.4): today's file is always
// re-applied since it is still open and growing monotonically, but any
// other date is only ever applied once — a second call is a no-op that
// reports success=false (spec.md Scenario 6, P1).
func (g *Ingestor) ImportDate(ctx context.Context, date string) (Result, error) {
	path := dailyfile.PathFor(g.dataDir, date)
	isToday := date == time.Now().Format("2006-01-02")

	if !isToday {
		if _, found, err := g.store.FindImportedFile(ctx, path); err != nil {
			return Result{}, err
		} else if found {
			return Result{Date: date, Success: false, Error: "File already imported"}, nil
		}
	}

	df, err := dailyfile.Read(g.dataDir, date)
	if err != nil {
		return Result{}, err
	}
	res, err := g.ImportFile(ctx, df)
	if err != nil {
		return res, err
	}
	res.Success = true

	if !isToday {
		if err := g.store.RecordImportedFile(ctx, path, date, res.SessionsImported); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ImportFile reconciles one already-loaded DailyFile into the Store. Each
// session and file-activity accumulation is independently idempotent, so
// importing the same file twice (e.g. after a Collector crash mid-write)
// changes nothing the second time.
func (g *Ingestor) ImportFile(ctx context.Context, df models.DailyFile) (Result, error) {
	res := Result{Date: df.Date}

	execNames := make([]string, 0, len(df.Apps))
	for exe := range df.Apps {
		execNames = append(execNames, exe)
	}
	sort.Strings(execNames) // deterministic processing order for tests/logs

	for _, exe := range execNames {
		appDay := df.Apps[exe]

		app, err := g.store.UpsertApplication(ctx, exe, appDay.DisplayName)
		if err != nil {
			return res, err
		}

		overrides, err := g.store.OverridesForExecutable(ctx, exe)
		if err != nil {
			return res, err
		}

		folderRoots, err := g.store.ProjectFolders(ctx)
		if err != nil {
			return res, err
		}

		mergedSessions := MergeAdjacentIntervals(appDay.Sessions, 0)
		for _, sess := range mergedSessions {
			projectID, applied, err := g.resolveOverride(ctx, overrides, sess.Start, sess.End)
			if err != nil {
				return res, err
			}

			rec := models.Session{
				AppID:           app.ID,
				StartTime:       sess.Start,
				EndTime:         sess.End,
				DurationSeconds: int64(sess.DurationSeconds),
				Date:            df.Date,
				RateMultiplier:  1.0,
				ProjectID:       projectID,
			}
			saved, err := g.store.UpsertSession(ctx, rec)
			if err != nil {
				return res, err
			}
			if applied {
				if err := g.store.AssignSessionToProject(ctx, saved.ID, projectID); err != nil {
					return res, err
				}
				res.OverridesApplied++
			}
			res.SessionsImported++
		}

		for _, entry := range appDay.Files {
			seenAt := entry.LastSeen.UTC().Format(time.RFC3339)
			projectID, err := g.resolver.EnsureAppProjectFromFileHint(ctx, entry.Name, folderRoots)
			if err != nil {
				return res, err
			}
			if err := g.store.AccumulateFileActivity(ctx, app.ID, df.Date, entry.Name, int64(entry.TotalSeconds), seenAt, projectID); err != nil {
				return res, err
			}
			res.FilesAccumulated++
		}
	}

	return res, nil
}

// resolveOverride looks for a manual override whose interval overlaps
// [start, end) and, if found, resolves it to a project ID. An override
// with ProjectName == nil means "explicitly unassigned" and returns
// (nil, true, nil) so the caller still records that an override fired.
func (g *Ingestor) resolveOverride(ctx context.Context, overrides []models.ManualOverride, start, end time.Time) (*int64, bool, error) {
	for _, o := range overrides {
		if !o.StartTime.Before(end) || !start.Before(o.EndTime) {
			continue // no overlap
		}
		if o.ProjectName == nil {
			return nil, true, nil
		}
		proj, ok, err := g.store.FindProjectByName(ctx, *o.ProjectName)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		id := proj.ID
		return &id, true, nil
	}
	return nil, false, nil
}

// ImportFiles reads and imports every timeflow_*.json file in dataDir
// dated on or after sinceDate, skipping files that fail to parse rather
// than aborting the whole sweep (so one corrupt day never blocks the
// rest, matching the Collector's own tolerant Read).
func (g *Ingestor) ImportFiles(ctx context.Context, sinceDate string) ([]Result, error) {
	entries, err := os.ReadDir(g.dataDir)
	if err != nil {
		return nil, terrors.IO("read data dir", err)
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "timeflow_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, "timeflow_"), ".json")
		if date < sinceDate {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var results []Result
	for _, date := range dates {
		res, err := g.ImportDate(ctx, date)
		if err != nil {
			if terrors.OfKind(err, terrors.KindParse) {
				results = append(results, Result{Date: date, Error: err.Error()})
				continue
			}
			return results, fmt.Errorf("import %s: %w", date, err)
		}
		results = append(results, res)
	}
	return results, nil
}

var _ Store = (*store.Store)(nil)
