package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"timeflow/internal/models"
)

// ImportArchiveSource distinguishes a plain archive import (local file,
// manual restore) from a remote-sync pull: only the latter retrains the
// classifier after commit (spec.md §4.4).
type ImportArchiveSource int

const (
	ImportArchiveFile ImportArchiveSource = iota
	ImportArchiveRemoteSync
)

// ImportDataResult summarizes one import_data(archive) pass.
type ImportDataResult struct {
	ProjectsUpserted       int
	ApplicationsUpserted   int
	SessionsMerged         int
	ManualSessionsImported int
	TombstonesApplied      int
	OverridesReplayed      int
}

// ImportData performs the full multi-table import (spec.md §4.4): it
// upserts projects by case-insensitive name, processes the tombstone
// list, maps applications by exe-name then display-name, merges sessions
// into the Store via interval closure (§4.11), imports manual sessions,
// then replays the Manual Override Book and — if source is remote sync —
// retrains the classifier. Ground:
// original_source/.../commands/import_data.rs's import_data.
func (g *Ingestor) ImportData(ctx context.Context, archive models.ExportArchive, source ImportArchiveSource) (ImportDataResult, error) {
	var out ImportDataResult

	projectIDByName := map[string]int64{}
	for _, p := range archive.Data.Projects {
		color := p.Color
		if color == "" {
			color = "#808080"
		}
		proj, err := g.store.UpsertProjectByName(ctx, p.Name, color, p.HourlyRate)
		if err != nil {
			return out, err
		}
		projectIDByName[strings.ToLower(p.Name)] = proj.ID
		out.ProjectsUpserted++
	}

	if archive.Data.Tombstones != nil {
		for _, name := range archive.Data.Tombstones.DeletedProjectNames {
			if err := g.store.DeleteProjectByName(ctx, name); err != nil {
				return out, err
			}
			delete(projectIDByName, strings.ToLower(name))
			out.TombstonesApplied++
		}
		for _, t := range archive.Data.Tombstones.DeletedManualSessions {
			if err := g.store.DeleteManualSessionByStartTitle(ctx, t.StartTime, t.Title); err != nil {
				return out, err
			}
			out.TombstonesApplied++
		}
	}

	appIDByExe := map[string]int64{}
	for _, a := range archive.Data.Applications {
		var projectID *int64
		if a.ProjectName != nil {
			if id, ok := projectIDByName[strings.ToLower(*a.ProjectName)]; ok {
				projectID = &id
			}
		}
		app, err := g.store.UpsertApplicationWithProject(ctx, a.ExecutableName, a.DisplayName, projectID)
		if err != nil {
			return out, err
		}
		appIDByExe[a.ExecutableName] = app.ID
		out.ApplicationsUpserted++
	}

	for _, sess := range archive.Data.Sessions {
		appID, ok := appIDByExe[sess.ExecutableName]
		if !ok {
			app, err := g.store.UpsertApplicationWithProject(ctx, sess.ExecutableName, sess.ExecutableName, nil)
			if err != nil {
				return out, err
			}
			appID = app.ID
			appIDByExe[sess.ExecutableName] = appID
		}
		rate := sess.RateMultiplier
		if rate == 0 {
			rate = 1.0
		}
		if _, err := g.store.MergeOrInsertSession(ctx, appID, sess.Date, sess.StartTime, sess.EndTime, rate); err != nil {
			return out, err
		}
		out.SessionsMerged++
	}

	for _, ms := range archive.Data.ManualSessions {
		projectID, ok := projectIDByName[strings.ToLower(ms.ProjectName)]
		if !ok {
			continue // project tombstoned or never arrived in this archive
		}
		if _, err := g.store.CreateManualSession(ctx, models.ManualSession{
			Title:           ms.Title,
			SessionType:     ms.SessionType,
			ProjectID:       projectID,
			StartTime:       ms.StartTime,
			EndTime:         ms.EndTime,
			DurationSeconds: ms.DurationSeconds,
			Date:            ms.Date,
		}); err != nil {
			return out, err
		}
		out.ManualSessionsImported++
	}

	if g.overrideBook != nil {
		applied, err := g.overrideBook.ReplayAll(ctx)
		if err != nil {
			return out, err
		}
		out.OverridesReplayed = applied
	}

	if source == ImportArchiveRemoteSync && g.classifier != nil {
		if err := g.classifier.Train(ctx, true); err != nil {
			return out, err
		}
	}

	return out, nil
}

// ImportDataArchive performs an online-pull convergence (spec.md §4.4): it
// checkpoints the WAL and snapshots the live database to a restore point,
// truncates the synchronized tables, replays archive through ImportData,
// and rolls back to the restore point if anything fails along the way.
// Ground: no original_source equivalent exists — import_data.rs's
// import_data_archive merely serializes to a temp file and calls
// import_data with no rollback — so this follows spec.md's explicit
// checkpoint/restore-point/truncate-replay/rollback prose directly.
func (g *Ingestor) ImportDataArchive(ctx context.Context, archive models.ExportArchive) (ImportDataResult, error) {
	var out ImportDataResult

	if err := g.store.CheckpointWAL(ctx); err != nil {
		return out, err
	}

	restorePoint := filepath.Join(os.TempDir(), fmt.Sprintf("timeflow-restore-%d.db", time.Now().UnixNano()))
	if err := g.store.BackupTo(ctx, restorePoint); err != nil {
		return out, err
	}
	defer os.Remove(restorePoint)

	if err := g.store.TruncateSyncedTables(ctx); err != nil {
		if rerr := g.store.RestoreFrom(ctx, restorePoint); rerr != nil {
			return out, fmt.Errorf("truncate failed (%w) and rollback failed: %v", err, rerr)
		}
		return out, err
	}

	res, err := g.ImportData(ctx, archive, ImportArchiveRemoteSync)
	if err != nil {
		if rerr := g.store.RestoreFrom(ctx, restorePoint); rerr != nil {
			return out, fmt.Errorf("import failed (%w) and rollback failed: %v", err, rerr)
		}
		return out, err
	}
	return res, nil
}
