package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
)

func writeExternalDailyFile(t *testing.T, dir, name, date string, start time.Time) string {
	t.Helper()
	df := models.DailyFile{
		Date: date,
		Apps: map[string]models.AppDay{
			"code.exe": {
				DisplayName: "VS Code",
				Sessions: []models.DailyFileSession{
					{Start: start, End: start.Add(time.Minute), DurationSeconds: 60},
				},
			},
		},
	}
	data, err := json.Marshal(df)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestAutoImportFromDataDir_ImportsAndArchivesNonTodayFiles(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	importDir := filepath.Join(base, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))

	start := time.Date(2020, 1, 5, 9, 0, 0, 0, time.UTC)
	writeExternalDailyFile(t, importDir, "2020-01-05.json", "2020-01-05", start)
	writeExternalDailyFile(t, importDir, "fake-2020-01-06.json", "2020-01-06", start)

	fs := newFakeStore()
	ing := New(fs, fakeResolver{}, dataDir)

	res, err := ing.AutoImportFromDataDir(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesFound, "the fake-named file must be skipped outside demo mode")
	require.Equal(t, 1, res.FilesImported)
	require.Equal(t, 1, res.FilesArchived)
	require.Len(t, fs.sessions, 1)

	archived := filepath.Join(base, "archive", "2020-01-05.json")
	_, err = os.Stat(archived)
	require.NoError(t, err, "imported non-today file must be moved into the archive dir")
	_, err = os.Stat(filepath.Join(importDir, "2020-01-05.json"))
	require.True(t, os.IsNotExist(err), "source file must no longer exist in the import dir")

	// A second pass finds the file already archived, so the import dir
	// is empty of anything but the fake fixture, and nothing is re-imported.
	res2, err := ing.AutoImportFromDataDir(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res2.FilesFound)
	require.Len(t, fs.sessions, 1)
}

func TestImportData_UpsertsProjectsApplicationsAndAppliesTombstone(t *testing.T) {
	fs := newFakeStore()
	ing := New(fs, fakeResolver{}, t.TempDir())

	rate := 75.0
	archive := models.ExportArchive{
		Version: "1.1",
		Data: models.ExportData{
			Projects: []models.ExportProject{
				{Name: "Acme", Color: "#111", HourlyRate: &rate},
				{Name: "Stale", Color: "#222"},
			},
			Applications: []models.ExportApplication{
				{ExecutableName: "code.exe", DisplayName: "VS Code", ProjectName: strPtr("Acme")},
			},
			Tombstones: &models.ExportTombstones{
				DeletedProjectNames: []string{"Stale"},
			},
		},
	}

	res, err := ing.ImportData(context.Background(), archive, ImportArchiveFile)
	require.NoError(t, err)
	require.Equal(t, 2, res.ProjectsUpserted)
	require.Equal(t, 1, res.ApplicationsUpserted)
	require.Equal(t, 1, res.TombstonesApplied)

	_, ok := fs.projects["Stale"]
	require.False(t, ok, "tombstoned project must be deleted")

	app, ok := fs.apps["code.exe"]
	require.True(t, ok)
	require.NotNil(t, app.ProjectID)
	require.Equal(t, fs.projects["Acme"].ID, *app.ProjectID)
}
