package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
)

type fakeStore struct {
	sessions map[int64]models.Session
	apps     map[int64]models.Application

	modelState map[string]string
	feedback   []models.AssignmentFeedback

	windowCalls []int64
	appCalls    []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:   map[int64]models.Session{},
		apps:       map[int64]models.Application{},
		modelState: map[string]string{},
	}
}

func (f *fakeStore) GetSession(ctx context.Context, id int64) (models.Session, error) {
	return f.sessions[id], nil
}

func (f *fakeStore) AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error {
	sess := f.sessions[sessionID]
	sess.ProjectID = projectID
	f.sessions[sessionID] = sess
	return nil
}

func (f *fakeStore) PropagateProjectToFileActivitiesInWindow(ctx context.Context, appID int64, start, end time.Time, projectID *int64) error {
	f.windowCalls = append(f.windowCalls, appID)
	return nil
}

func (f *fakeStore) GetApplication(ctx context.Context, id int64) (models.Application, error) {
	return f.apps[id], nil
}

func (f *fakeStore) AssignApplicationToProject(ctx context.Context, appID int64, projectID *int64) error {
	app := f.apps[appID]
	app.ProjectID = projectID
	f.apps[appID] = app
	return nil
}

func (f *fakeStore) PropagateProjectToFileActivities(ctx context.Context, appID int64, fromProjectID, toProjectID *int64) error {
	f.appCalls = append(f.appCalls, appID)
	return nil
}

func (f *fakeStore) RecordFeedback(ctx context.Context, fb models.AssignmentFeedback) error {
	f.feedback = append(f.feedback, fb)
	return nil
}

func (f *fakeStore) LoadModelStateMap(ctx context.Context) (map[string]string, error) {
	return f.modelState, nil
}

func (f *fakeStore) SetModelState(ctx context.Context, key, value string) error {
	f.modelState[key] = value
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func TestAssignSessionToProject_RecordsFeedbackAndBumpsCounter(t *testing.T) {
	fs := newFakeStore()
	fs.sessions[1] = models.Session{ID: 1, AppID: 5, StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
	fs.modelState["feedback_since_train"] = "2"

	sw := New(fs)
	err := sw.AssignSessionToProject(context.Background(), 1, int64Ptr(10), models.SourceManualSessionAssign)
	require.NoError(t, err)

	require.Equal(t, int64(10), *fs.sessions[1].ProjectID)
	require.Len(t, fs.feedback, 1)
	require.Nil(t, fs.feedback[0].FromProjectID)
	require.Equal(t, int64(10), *fs.feedback[0].ToProjectID)
	require.Equal(t, "3", fs.modelState["feedback_since_train"])
	require.Equal(t, []int64{5}, fs.windowCalls)
}

func TestAssignAppToProject_PropagatesToFileActivities(t *testing.T) {
	fs := newFakeStore()
	fs.apps[5] = models.Application{ID: 5}

	sw := New(fs)
	err := sw.AssignAppToProject(context.Background(), 5, int64Ptr(10), models.SourceManualAppAssign)
	require.NoError(t, err)

	require.Equal(t, int64(10), *fs.apps[5].ProjectID)
	require.Equal(t, []int64{5}, fs.appCalls)
	require.Len(t, fs.feedback, 1)
	require.Equal(t, models.SourceManualAppAssign, fs.feedback[0].Source)
}
