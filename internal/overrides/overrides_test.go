package overrides

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
)

type fakeStore struct {
	overrides []models.ManualOverride
	apps      map[string]models.Application
	projects  map[string]models.Project
	sessions  map[int64][]models.Session // by appID

	assignments map[int64]*int64 // sessionID -> projectID
	propagated  []propagateCall
}

type propagateCall struct {
	AppID     int64
	ProjectID *int64
}

func (f *fakeStore) PutOverride(ctx context.Context, o models.ManualOverride) error {
	f.overrides = append(f.overrides, o)
	return nil
}

func (f *fakeStore) OverridesForExecutable(ctx context.Context, executableName string) ([]models.ManualOverride, error) {
	var out []models.ManualOverride
	for _, o := range f.overrides {
		if o.ExecutableName == executableName {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) AllOverrides(ctx context.Context) ([]models.ManualOverride, error) {
	return f.overrides, nil
}

func (f *fakeStore) FindApplicationByExecutable(ctx context.Context, executableName string) (models.Application, bool, error) {
	app, ok := f.apps[executableName]
	return app, ok, nil
}

func (f *fakeStore) FindProjectByName(ctx context.Context, name string) (models.Project, bool, error) {
	p, ok := f.projects[name]
	return p, ok, nil
}

func (f *fakeStore) SessionsForAppOverlapping(ctx context.Context, appID int64, from, to time.Time) ([]models.Session, error) {
	var out []models.Session
	for _, sess := range f.sessions[appID] {
		if sess.StartTime.Before(to) && from.Before(sess.EndTime) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (f *fakeStore) AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error {
	if f.assignments == nil {
		f.assignments = map[int64]*int64{}
	}
	f.assignments[sessionID] = projectID
	return nil
}

func (f *fakeStore) PropagateProjectToFileActivitiesInWindow(ctx context.Context, appID int64, start, end time.Time, projectID *int64) error {
	f.propagated = append(f.propagated, propagateCall{AppID: appID, ProjectID: projectID})
	return nil
}

func TestReplayAll_AppliesMatchingOverridesNewestFirst(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	fs := &fakeStore{
		apps: map[string]models.Application{
			"code.exe": {ID: 1, ExecutableName: "code.exe"},
		},
		projects: map[string]models.Project{
			"Alpha": {ID: 10, Name: "Alpha"},
		},
		sessions: map[int64][]models.Session{
			1: {{ID: 100, AppID: 1, StartTime: day, EndTime: day.Add(time.Hour)}},
		},
		overrides: []models.ManualOverride{
			{ExecutableName: "code.exe", StartTime: day, EndTime: day.Add(time.Hour), ProjectName: strPtr("Alpha"), UpdatedAt: day},
			{ExecutableName: "unknown.exe", StartTime: day, EndTime: day.Add(time.Hour), ProjectName: strPtr("Alpha"), UpdatedAt: day.Add(time.Minute)},
		},
	}

	b := New(fs)
	res, err := b.ReplayAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Considered)
	require.Equal(t, 1, res.Applied)
	require.Equal(t, int64(10), *fs.assignments[100])
	require.Len(t, fs.propagated, 1)
}

func TestReplayAll_UnassignPinClearsProject(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	fs := &fakeStore{
		apps: map[string]models.Application{"code.exe": {ID: 1}},
		sessions: map[int64][]models.Session{
			1: {{ID: 100, AppID: 1, StartTime: day, EndTime: day.Add(time.Hour)}},
		},
		overrides: []models.ManualOverride{
			{ExecutableName: "code.exe", StartTime: day, EndTime: day.Add(time.Hour), ProjectName: nil, UpdatedAt: day},
		},
	}

	b := New(fs)
	res, err := b.ReplayAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Applied)
	require.Nil(t, fs.assignments[100])
}

func strPtr(s string) *string { return &s }
