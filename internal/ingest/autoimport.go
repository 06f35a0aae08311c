package ingest

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"timeflow/internal/config"
	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

// AutoImportResult summarizes one AutoImportFromDataDir pass.
type AutoImportResult struct {
	FilesFound    int
	FilesImported int
	FilesSkipped  int
	FilesArchived int
	Errors        []string
}

// modeImportDir and modeArchiveDir resolve the mode-specific sibling
// directories of dataDir external sync clients drop files into (spec.md
// §6 storage layout: import/archive for normal mode, import_demo/
// archive_demo for demo mode). Ground:
// original_source/.../commands/import.rs's mode_import_dir/mode_archive_dir.
func (g *Ingestor) modeImportDir() string {
	if g.mode == config.ModeDemo {
		return filepath.Join(g.baseDir, "import_demo")
	}
	return filepath.Join(g.baseDir, "import")
}

func (g *Ingestor) modeArchiveDir() string {
	if g.mode == config.ModeDemo {
		return filepath.Join(g.baseDir, "archive_demo")
	}
	return filepath.Join(g.baseDir, "archive")
}

// isFakeNamedJSONFile reports whether path's basename contains "fake"
// (case-insensitive) — demo fixture files, skipped outside demo mode
// (spec.md §4.4, §6's fake_data; original's is_fake_named_json_file).
func isFakeNamedJSONFile(path string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(path)), "fake")
}

// isTodayDataFile reports whether path's filename stem (date-like or not)
// equals today's date, mirroring the original's is_today_data_file so an
// externally-dropped file for the still-open day is always re-applied and
// never archived prematurely.
func isTodayDataFile(path string) bool {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return stem == time.Now().Format("2006-01-02") || strings.HasSuffix(stem, "_"+time.Now().Format("2006-01-02"))
}

// AutoImportFromDataDir scans the mode-specific import directory for
// .json files dropped there by an external sync client, imports each one
// through the same ledger-checked path ImportDate uses, then atomically
// archives files it is done with into the mode-specific archive
// directory. Fake-named files are skipped outside demo mode (spec.md
// §4.4). Ground: original_source/.../commands/import.rs's
// auto_import_from_data_dir/archive_json_file.
func (g *Ingestor) AutoImportFromDataDir(ctx context.Context) (AutoImportResult, error) {
	var out AutoImportResult

	importDir := g.modeImportDir()
	entries, err := os.ReadDir(importDir)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return out, terrors.IO("read import dir", err)
	}

	demo := g.mode == config.ModeDemo
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(strings.ToLower(name), ".json") {
			continue
		}
		full := filepath.Join(importDir, name)
		if !demo && isFakeNamedJSONFile(full) {
			continue
		}
		paths = append(paths, full)
	}
	sort.Strings(paths)
	out.FilesFound = len(paths)
	if out.FilesFound == 0 {
		return out, nil
	}

	archiveDir := g.modeArchiveDir()
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return out, terrors.IO("create archive dir", err)
	}

	for _, path := range paths {
		res, err := g.importExternalFile(ctx, path)
		if err != nil {
			out.Errors = append(out.Errors, path+": "+err.Error())
			continue
		}

		isToday := isTodayDataFile(path)
		switch {
		case res.Success:
			out.FilesImported++
		case res.Error == "File already imported":
			out.FilesSkipped++
		default:
			out.Errors = append(out.Errors, path+": "+res.Error)
			continue
		}

		if isToday {
			continue // the open day's file is never archived
		}
		archived, archiveErr := archiveJSONFile(path, archiveDir)
		if archiveErr != nil {
			out.Errors = append(out.Errors, archiveErr.Error())
			continue
		}
		if archived {
			out.FilesArchived++
		}
	}

	return out, nil
}

// importExternalFile applies the ledger-checked import path to a file at
// an arbitrary filesystem location (not necessarily dataDir's own
// timeflow_<date>.json naming), the per-file step ImportDate performs for
// dataDir's own files.
func (g *Ingestor) importExternalFile(ctx context.Context, path string) (Result, error) {
	isToday := isTodayDataFile(path)

	if !isToday {
		if _, found, err := g.store.FindImportedFile(ctx, path); err != nil {
			return Result{}, err
		} else if found {
			return Result{Success: false, Error: "File already imported"}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	var df models.DailyFile
	if err := json.Unmarshal(data, &df); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	if df.Apps == nil {
		df.Apps = map[string]models.AppDay{}
	}

	res, err := g.ImportFile(ctx, df)
	if err != nil {
		return res, err
	}
	res.Success = true

	if !isToday {
		if err := g.store.RecordImportedFile(ctx, path, df.Date, res.SessionsImported); err != nil {
			return res, err
		}
	}
	return res, nil
}

// archiveJSONFile atomically moves path into archiveDir, falling back to
// copy-then-remove when rename fails (e.g. a cross-device import
// directory). Returns false, nil if the destination already exists from a
// previous partial run, so callers can distinguish "already archived"
// from "just archived" without treating it as an error.
func archiveJSONFile(path, archiveDir string) (bool, error) {
	dest := filepath.Join(archiveDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	}

	if err := os.Rename(path, dest); err == nil {
		return true, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return false, terrors.IO("open for archive copy", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return false, terrors.IO("create archive copy", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return false, terrors.IO("copy into archive", err)
	}
	if err := out.Close(); err != nil {
		return false, terrors.IO("close archive copy", err)
	}
	if err := os.Remove(path); err != nil {
		return false, terrors.IO("remove source after archive copy", err)
	}
	return true, nil
}
