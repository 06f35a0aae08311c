// Package dailyfile implements the Collector<->Ingestor boundary document
// (C3): one JSON file per calendar day, written atomically by the
// Collector and read tolerantly by the Ingestor. Ground: the teacher's
// checkpoint-commit idiom of "write to a sibling temp path, then rename"
// is not present verbatim anywhere in the teacher (it commits to Postgres,
// not files), so the atomic-write shape here follows the general Go
// convention of a sibling ".tmp" file plus os.Rename, the same pattern the
// original Rust implementation uses for its daily JSON files.
package dailyfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/terrors"
)

// PathFor returns the canonical daily file path for date (YYYY-MM-DD)
// under dataDir.
func PathFor(dataDir, date string) string {
	return filepath.Join(dataDir, fmt.Sprintf("timeflow_%s.json", date))
}

// Write atomically persists df to its canonical path: marshal, write to a
// sibling ".tmp" file, fsync, then rename over the destination. A reader
// can never observe a partially-written file (spec.md §4.3, P4).
func Write(dataDir string, df models.DailyFile) error {
	path := PathFor(dataDir, df.Date)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(df, "", "  ")
	if err != nil {
		return terrors.Wrap(terrors.KindParse, "marshal daily file", err)
	}

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return terrors.IO("open daily file tmp", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return terrors.IO("write daily file tmp", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return terrors.IO("sync daily file tmp", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return terrors.IO("close daily file tmp", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return terrors.IO("rename daily file into place", err)
	}
	return nil
}

// Read loads and parses the daily file for date, tolerating a missing
// file (returns an empty DailyFile, no error) since the Ingestor may run
// before the Collector has written anything for a new day.
func Read(dataDir, date string) (models.DailyFile, error) {
	path := PathFor(dataDir, date)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return models.DailyFile{Date: date, Apps: map[string]models.AppDay{}}, nil
	}
	if err != nil {
		return models.DailyFile{}, terrors.IO("read daily file", err)
	}

	var df models.DailyFile
	if err := json.Unmarshal(data, &df); err != nil {
		return models.DailyFile{}, terrors.Wrap(terrors.KindParse, "parse daily file "+path, err)
	}
	if df.Apps == nil {
		df.Apps = map[string]models.AppDay{}
	}
	return df, nil
}

// NewEmpty returns a zero-valued DailyFile ready to accumulate sessions
// for date.
func NewEmpty(date string) models.DailyFile {
	return models.DailyFile{
		Date:        date,
		GeneratedAt: time.Now().UTC(),
		Apps:        map[string]models.AppDay{},
	}
}

// Summarize recomputes df.Summary from df.Apps, called right before Write
// so the denormalized roll-up never drifts from the per-app detail.
func Summarize(df *models.DailyFile) {
	var total uint64
	active := 0
	for _, app := range df.Apps {
		total += app.TotalSeconds
		if app.TotalSeconds > 0 {
			active++
		}
	}
	df.Summary = models.DailyFileSummary{
		TotalAppSeconds:   total,
		TotalAppFormatted: formatDuration(total),
		AppsActiveCount:   active,
	}
}

func formatDuration(seconds uint64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	return fmt.Sprintf("%dh%02dm", h, m)
}
