package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/dailyfile"
	"timeflow/internal/models"
	"timeflow/internal/store"
)

// fakeStore is a minimal in-memory stand-in for *store.Store, just
// enough surface to exercise ImportFile's reconciliation logic.
type fakeStore struct {
	apps          map[string]models.Application
	nextAppID     int64
	nextSessionID int64
	sessions      []models.Session
	fileActivity  []string
	overrides     map[string][]models.ManualOverride
	projects       map[string]models.Project
	ledger         map[string]store.ImportLedgerEntry
	manualSessions []models.ManualSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps:      map[string]models.Application{},
		overrides: map[string][]models.ManualOverride{},
		projects:  map[string]models.Project{},
		ledger:    map[string]store.ImportLedgerEntry{},
	}
}

func (f *fakeStore) FindImportedFile(ctx context.Context, filePath string) (store.ImportLedgerEntry, bool, error) {
	e, ok := f.ledger[filePath]
	return e, ok, nil
}

func (f *fakeStore) RecordImportedFile(ctx context.Context, filePath, importDate string, recordsCount int) error {
	f.ledger[filePath] = store.ImportLedgerEntry{FilePath: filePath, ImportDate: importDate, RecordsCount: recordsCount}
	return nil
}

func (f *fakeStore) UpsertApplication(ctx context.Context, exe, display string) (models.Application, error) {
	if a, ok := f.apps[exe]; ok {
		return a, nil
	}
	f.nextAppID++
	a := models.Application{ID: f.nextAppID, ExecutableName: exe, DisplayName: display}
	f.apps[exe] = a
	return a, nil
}

func (f *fakeStore) UpsertSession(ctx context.Context, sess models.Session) (models.Session, error) {
	f.nextSessionID++
	sess.ID = f.nextSessionID
	f.sessions = append(f.sessions, sess)
	return sess, nil
}

func (f *fakeStore) AccumulateFileActivity(ctx context.Context, appID int64, date, fileName string, seconds int64, seenAt string, projectID *int64) error {
	f.fileActivity = append(f.fileActivity, fileName)
	return nil
}

func (f *fakeStore) ProjectFolders(ctx context.Context) ([]string, error) { return nil, nil }

type fakeResolver struct{}

func (fakeResolver) EnsureAppProjectFromFileHint(ctx context.Context, fileName string, folderRoots []string) (*int64, error) {
	return nil, nil
}

func (f *fakeStore) OverridesForExecutable(ctx context.Context, exe string) ([]models.ManualOverride, error) {
	return f.overrides[exe], nil
}

func (f *fakeStore) FindProjectByName(ctx context.Context, name string) (models.Project, bool, error) {
	p, ok := f.projects[name]
	return p, ok, nil
}

func (f *fakeStore) AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error {
	for i := range f.sessions {
		if f.sessions[i].ID == sessionID {
			f.sessions[i].ProjectID = projectID
		}
	}
	return nil
}

func (f *fakeStore) UpsertProjectByName(ctx context.Context, name, color string, hourlyRate *float64) (models.Project, error) {
	if p, ok := f.projects[name]; ok {
		return p, nil
	}
	p := models.Project{ID: int64(len(f.projects) + 1), Name: name, Color: color, HourlyRate: hourlyRate}
	f.projects[name] = p
	return p, nil
}

func (f *fakeStore) DeleteProjectByName(ctx context.Context, name string) error {
	delete(f.projects, name)
	return nil
}

func (f *fakeStore) DeleteManualSessionByStartTitle(ctx context.Context, start time.Time, title string) error {
	return nil
}

func (f *fakeStore) UpsertApplicationWithProject(ctx context.Context, exe, display string, projectID *int64) (models.Application, error) {
	a, err := f.UpsertApplication(ctx, exe, display)
	if err != nil {
		return a, err
	}
	a.ProjectID = projectID
	f.apps[exe] = a
	return a, nil
}

func (f *fakeStore) MergeOrInsertSession(ctx context.Context, appID int64, date string, start, end time.Time, rateMultiplier float64) (int64, error) {
	sess, err := f.UpsertSession(ctx, models.Session{
		AppID: appID, StartTime: start, EndTime: end,
		DurationSeconds: int64(end.Sub(start).Seconds()), Date: date, RateMultiplier: rateMultiplier,
	})
	return sess.ID, err
}

func (f *fakeStore) CreateManualSession(ctx context.Context, m models.ManualSession) (models.ManualSession, error) {
	m.ID = int64(len(f.manualSessions) + 1)
	f.manualSessions = append(f.manualSessions, m)
	return m, nil
}

func (f *fakeStore) CheckpointWAL(ctx context.Context) error       { return nil }
func (f *fakeStore) BackupTo(ctx context.Context, dest string) error { return nil }
func (f *fakeStore) RestoreFrom(ctx context.Context, src string) error { return nil }
func (f *fakeStore) TruncateSyncedTables(ctx context.Context) error {
	f.apps = map[string]models.Application{}
	f.projects = map[string]models.Project{}
	return nil
}

func TestImportFile_CreatesSessionsAndFileActivity(t *testing.T) {
	fs := newFakeStore()
	ing := New(fs, fakeResolver{}, t.TempDir())

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	df := models.DailyFile{
		Date: "2026-01-05",
		Apps: map[string]models.AppDay{
			"code.exe": {
				DisplayName: "VS Code",
				Sessions: []models.DailyFileSession{
					{Start: start, End: start.Add(2 * time.Minute), DurationSeconds: 120},
				},
				Files: []models.DailyFileEntry{
					{Name: "main.go", TotalSeconds: 120, FirstSeen: start, LastSeen: start.Add(2 * time.Minute)},
				},
			},
		},
	}

	res, err := ing.ImportFile(context.Background(), df)
	require.NoError(t, err)
	require.Equal(t, 1, res.SessionsImported)
	require.Equal(t, 1, res.FilesAccumulated)
	require.Len(t, fs.sessions, 1)
	require.Equal(t, int64(120), fs.sessions[0].DurationSeconds)
}

func TestImportFile_AppliesOverride(t *testing.T) {
	fs := newFakeStore()
	fs.projects["Acme"] = models.Project{ID: 7, Name: "Acme"}

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)
	fs.overrides["code.exe"] = []models.ManualOverride{
		{ExecutableName: "code.exe", StartTime: start, EndTime: end, ProjectName: strPtr("Acme")},
	}

	ing := New(fs, fakeResolver{}, t.TempDir())
	df := models.DailyFile{
		Date: "2026-01-05",
		Apps: map[string]models.AppDay{
			"code.exe": {
				DisplayName: "VS Code",
				Sessions: []models.DailyFileSession{
					{Start: start, End: end, DurationSeconds: 120},
				},
			},
		},
	}

	res, err := ing.ImportFile(context.Background(), df)
	require.NoError(t, err)
	require.Equal(t, 1, res.OverridesApplied)
	require.NotNil(t, fs.sessions[0].ProjectID)
	require.Equal(t, int64(7), *fs.sessions[0].ProjectID)
}

func TestImportDate_NonTodayFileIsNotReimported(t *testing.T) {
	fs := newFakeStore()
	dir := t.TempDir()
	ing := New(fs, fakeResolver{}, dir)

	start := time.Date(2020, 1, 5, 9, 0, 0, 0, time.UTC)
	df := dailyfile.NewEmpty("2020-01-05")
	df.Apps["code.exe"] = models.AppDay{
		DisplayName: "VS Code",
		Sessions: []models.DailyFileSession{
			{Start: start, End: start.Add(2 * time.Minute), DurationSeconds: 120},
		},
	}
	require.NoError(t, dailyfile.Write(dir, df))

	first, err := ing.ImportDate(context.Background(), "2020-01-05")
	require.NoError(t, err)
	require.True(t, first.Success)
	require.Equal(t, 1, first.SessionsImported)
	require.Len(t, fs.sessions, 1)

	second, err := ing.ImportDate(context.Background(), "2020-01-05")
	require.NoError(t, err)
	require.False(t, second.Success)
	require.Equal(t, "File already imported", second.Error)
	require.Len(t, fs.sessions, 1, "re-import of an already-ledgered file must not reapply sessions")
}

func strPtr(s string) *string { return &s }
