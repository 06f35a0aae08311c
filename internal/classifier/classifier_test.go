package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
	"timeflow/internal/store"
)

type fakeStore struct {
	appCounts  map[int64]map[int64]int64 // appID -> projectID -> count
	timeCounts map[string]map[int64]int64
	tokenCounts map[string]map[int64]int64
	fileActivities map[string][]models.FileActivity // "appID|date"

	modelState map[string]string

	unassigned []models.Session
	sessions   map[int64]models.Session
	projects   map[int64]models.Project

	suggestions map[int64]models.AssignmentSuggestion
	nextSugID   int64

	feedback []models.AssignmentFeedback

	runs        map[int64]*models.AutoSafeRun
	runItems    map[int64][]models.AutoSafeRunItem
	nextRunID   int64

	appHistory map[int64]store.AppHistoryEntry
	unassignedByApp map[int64][]models.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appCounts:       map[int64]map[int64]int64{},
		timeCounts:      map[string]map[int64]int64{},
		tokenCounts:     map[string]map[int64]int64{},
		fileActivities:  map[string][]models.FileActivity{},
		modelState:      map[string]string{},
		sessions:        map[int64]models.Session{},
		projects:        map[int64]models.Project{},
		suggestions:     map[int64]models.AssignmentSuggestion{},
		runs:            map[int64]*models.AutoSafeRun{},
		runItems:        map[int64][]models.AutoSafeRunItem{},
		appHistory:      map[int64]store.AppHistoryEntry{},
		unassignedByApp: map[int64][]models.Session{},
	}
}

func (f *fakeStore) AppCounts(ctx context.Context, appID int64) (map[int64]int64, error) {
	return f.appCounts[appID], nil
}

func timeKey(hour, weekday int) string { return string(rune(hour)) + "|" + string(rune(weekday)) }

func (f *fakeStore) TimeCounts(ctx context.Context, hour, weekday int) (map[int64]int64, error) {
	return f.timeCounts[timeKey(hour, weekday)], nil
}

func (f *fakeStore) TokenCounts(ctx context.Context, token string) (map[int64]int64, error) {
	return f.tokenCounts[token], nil
}

func (f *fakeStore) FileActivitiesForApp(ctx context.Context, appID int64, date string) ([]models.FileActivity, error) {
	return f.fileActivities[fileActivityKey(appID, date)], nil
}

func fileActivityKey(appID int64, date string) string {
	return date + "|" + string(rune(appID))
}

func (f *fakeStore) ClearModelCounts(ctx context.Context) error {
	f.appCounts = map[int64]map[int64]int64{}
	f.timeCounts = map[string]map[int64]int64{}
	f.tokenCounts = map[string]map[int64]int64{}
	return nil
}

func (f *fakeStore) TrainingSessions(ctx context.Context) ([]store.TrainingSession, error) { return nil, nil }
func (f *fakeStore) TrainingFileActivities(ctx context.Context) ([]store.TrainingFileActivity, error) {
	return nil, nil
}

func (f *fakeStore) IncrementAppCount(ctx context.Context, appID, projectID int64, delta int64) error {
	if f.appCounts[appID] == nil {
		f.appCounts[appID] = map[int64]int64{}
	}
	f.appCounts[appID][projectID] += delta
	return nil
}

func (f *fakeStore) IncrementTokenCount(ctx context.Context, token string, projectID int64, delta int64) error {
	if f.tokenCounts[token] == nil {
		f.tokenCounts[token] = map[int64]int64{}
	}
	f.tokenCounts[token][projectID] += delta
	return nil
}

func (f *fakeStore) IncrementTimeCount(ctx context.Context, hour, weekday int, projectID int64, delta int64) error {
	k := timeKey(hour, weekday)
	if f.timeCounts[k] == nil {
		f.timeCounts[k] = map[int64]int64{}
	}
	f.timeCounts[k][projectID] += delta
	return nil
}

func (f *fakeStore) SetModelState(ctx context.Context, key, value string) error {
	f.modelState[key] = value
	return nil
}

func (f *fakeStore) GetModelState(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.modelState[key]
	return v, ok, nil
}

func (f *fakeStore) LoadModelStateMap(ctx context.Context) (map[string]string, error) {
	return f.modelState, nil
}

func (f *fakeStore) UnassignedSessionsFiltered(ctx context.Context, from, to string, minDurationSecs int64, limit int) ([]models.Session, error) {
	return f.unassigned, nil
}

func (f *fakeStore) PutSuggestion(ctx context.Context, sug models.AssignmentSuggestion) (models.AssignmentSuggestion, error) {
	f.nextSugID++
	sug.ID = f.nextSugID
	f.suggestions[sug.ID] = sug
	return sug, nil
}

func (f *fakeStore) SetSuggestionStatus(ctx context.Context, id int64, status models.SuggestionStatus) error {
	sug := f.suggestions[id]
	sug.Status = status
	f.suggestions[id] = sug
	return nil
}

func (f *fakeStore) UpdateSessionProjectIfUnassigned(ctx context.Context, sessionID, projectID int64) (bool, error) {
	sess, ok := f.sessions[sessionID]
	if !ok || sess.ProjectID != nil {
		return false, nil
	}
	sess.ProjectID = &projectID
	f.sessions[sessionID] = sess
	return true, nil
}

func (f *fakeStore) RevertSessionProjectIfStillAssigned(ctx context.Context, sessionID, fromProjectID int64) (bool, error) {
	sess, ok := f.sessions[sessionID]
	if !ok || sess.ProjectID == nil || *sess.ProjectID != fromProjectID {
		return false, nil
	}
	sess.ProjectID = nil
	f.sessions[sessionID] = sess
	return true, nil
}

func (f *fakeStore) PropagateProjectToFileActivitiesInWindow(ctx context.Context, appID int64, start, end time.Time, projectID *int64) error {
	return nil
}

func (f *fakeStore) RecordFeedback(ctx context.Context, fb models.AssignmentFeedback) error {
	f.feedback = append(f.feedback, fb)
	return nil
}

func (f *fakeStore) StartAutoSafeRun(ctx context.Context, mode string, minConfidenceAuto float64, minEvidenceAuto int) (int64, error) {
	f.nextRunID++
	f.runs[f.nextRunID] = &models.AutoSafeRun{ID: f.nextRunID, Mode: mode, MinConfidenceAuto: minConfidenceAuto, MinEvidenceAuto: minEvidenceAuto}
	return f.nextRunID, nil
}

func (f *fakeStore) FinishAutoSafeRun(ctx context.Context, runID int64, scanned, suggested, assigned int, runErr error) error {
	run := f.runs[runID]
	run.SessionsScanned = scanned
	run.SessionsSuggested = suggested
	run.SessionsAssigned = assigned
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}
	return nil
}

func (f *fakeStore) RecordAutoSafeItem(ctx context.Context, item models.AutoSafeRunItem) error {
	f.runItems[item.RunID] = append(f.runItems[item.RunID], item)
	return nil
}

func (f *fakeStore) AutoSafeRunItems(ctx context.Context, runID int64) ([]models.AutoSafeRunItem, error) {
	return f.runItems[runID], nil
}

func (f *fakeStore) MarkAutoSafeRunRolledBack(ctx context.Context, runID int64, reverted, skipped int) error {
	run := f.runs[runID]
	now := time.Now()
	run.RolledBackAt = &now
	run.RollbackReverted = reverted
	run.RollbackSkipped = skipped
	return nil
}

func (f *fakeStore) LatestAutoSafeRun(ctx context.Context) (models.AutoSafeRun, error) {
	var best *models.AutoSafeRun
	for _, run := range f.runs {
		if run.SessionsAssigned == 0 || run.RolledBackAt != nil {
			continue
		}
		if best == nil || run.ID > best.ID {
			best = run
		}
	}
	if best == nil {
		return models.AutoSafeRun{}, errNotFound
	}
	return *best, nil
}

func (f *fakeStore) AppSingleProjectHistory(ctx context.Context) (map[int64]store.AppHistoryEntry, error) {
	return f.appHistory, nil
}

func (f *fakeStore) UnassignedSessionsForApp(ctx context.Context, appID int64) ([]models.Session, error) {
	return f.unassignedByApp[appID], nil
}

func (f *fakeStore) AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error {
	sess := f.sessions[sessionID]
	sess.ProjectID = projectID
	f.sessions[sessionID] = sess
	return nil
}

func (f *fakeStore) PropagateProjectToFileActivities(ctx context.Context, appID int64, fromProjectID, toProjectID *int64) error {
	return nil
}

func (f *fakeStore) GetProject(ctx context.Context, id int64) (models.Project, error) {
	return f.projects[id], nil
}

func (f *fakeStore) GetSession(ctx context.Context, id int64) (models.Session, error) {
	return f.sessions[id], nil
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (e *notFoundErr) Error() string { return "not found" }

func int64Ptr(v int64) *int64 { return &v }

func TestScore_PicksHighestEvidenceProject(t *testing.T) {
	fs := newFakeStore()
	fs.appCounts[1] = map[int64]int64{10: 50, 20: 1}
	fs.timeCounts[timeKey(9, 1)] = map[int64]int64{10: 20, 20: 1}
	fs.fileActivities[fileActivityKey(1, "2026-01-05")] = []models.FileActivity{
		{FileName: "invoice.xlsx"},
	}
	fs.tokenCounts["invoice"] = map[int64]int64{10: 30}

	c := New(fs, DefaultThresholds(), "v1")
	sess := models.Session{
		ID: 1, AppID: 1, Date: "2026-01-05",
		StartTime: time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local),
	}

	sug, ok, err := c.Score(context.Background(), sess)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(10), sug.ProjectID)
	require.Greater(t, sug.Confidence, 0.0)
}

func TestScore_NoEvidenceReturnsNotOK(t *testing.T) {
	fs := newFakeStore()
	c := New(fs, DefaultThresholds(), "v1")
	sess := models.Session{ID: 1, AppID: 99, Date: "2026-01-05", StartTime: time.Now()}

	_, ok, err := c.Score(context.Background(), sess)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAcceptGates(t *testing.T) {
	c := New(newFakeStore(), DefaultThresholds(), "v1")

	require.True(t, c.AcceptForSuggest(Suggestion{Confidence: 0.61}))
	require.False(t, c.AcceptForSuggest(Suggestion{Confidence: 0.59}))

	require.True(t, c.AcceptForAutoSafe(Suggestion{Confidence: 0.9, Evidence: 3, Margin: 0.3}))
	require.False(t, c.AcceptForAutoSafe(Suggestion{Confidence: 0.9, Evidence: 2, Margin: 0.3}))
	require.False(t, c.AcceptForAutoSafe(Suggestion{Confidence: 0.9, Evidence: 3, Margin: 0.1}))
}

func TestTrain_SkipsBelowCooldownUnlessForced(t *testing.T) {
	fs := newFakeStore()
	fs.modelState["feedback_since_train"] = "5"
	c := New(fs, DefaultThresholds(), "v1")

	require.NoError(t, c.Train(context.Background(), false))
	require.Empty(t, fs.modelState["last_train_at"])

	require.NoError(t, c.Train(context.Background(), true))
	require.NotEmpty(t, fs.modelState["last_train_at"])
	require.Equal(t, "0", fs.modelState["feedback_since_train"])
}

func TestRunAutoSafe_AssignsAboveGatesAndSkipsBelow(t *testing.T) {
	fs := newFakeStore()
	fs.projects[10] = models.Project{ID: 10}

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	fs.sessions[1] = models.Session{ID: 1, AppID: 1, Date: "2026-01-05", StartTime: start, EndTime: start.Add(time.Hour)}
	fs.sessions[2] = models.Session{ID: 2, AppID: 2, Date: "2026-01-05", StartTime: start, EndTime: start.Add(time.Hour)}
	fs.unassigned = []models.Session{fs.sessions[1], fs.sessions[2]}

	// Session 1's app has all three signal classes firing hard for
	// project 10, clearing confidence/evidence/margin. Session 2's app
	// has a weak app-affinity signal and shares the hour/weekday signal,
	// but has no file tokens, so it stays below the evidence gate.
	fs.appCounts[1] = map[int64]int64{10: 500}
	fs.timeCounts[timeKey(9, int(start.Weekday()))] = map[int64]int64{10: 300}
	fs.fileActivities[fileActivityKey(1, "2026-01-05")] = []models.FileActivity{{FileName: "report.docx"}}
	fs.tokenCounts["report"] = map[int64]int64{10: 300}

	fs.appCounts[2] = map[int64]int64{10: 1}

	c := New(fs, DefaultThresholds(), "v1")
	outcome, err := c.RunAutoSafe(context.Background(), AutoSafeFilter{})
	require.NoError(t, err)

	require.Equal(t, 2, outcome.SessionsScanned)
	require.Equal(t, 1, outcome.SessionsAssigned)
	require.Equal(t, int64(10), *fs.sessions[1].ProjectID)
	require.Nil(t, fs.sessions[2].ProjectID)
	require.Len(t, fs.feedback, 1)
	require.Equal(t, models.SourceAutoAccept, fs.feedback[0].Source)
}

func TestRollback_RevertsOnlyUnchangedSessions(t *testing.T) {
	fs := newFakeStore()
	fs.projects[10] = models.Project{ID: 10}
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	fs.sessions[1] = models.Session{ID: 1, AppID: 1, Date: "2026-01-05", StartTime: start, EndTime: start.Add(time.Hour)}
	fs.sessions[2] = models.Session{ID: 2, AppID: 2, Date: "2026-01-05", StartTime: start, EndTime: start.Add(time.Hour)}
	fs.unassigned = []models.Session{fs.sessions[1], fs.sessions[2]}

	for _, appID := range []int64{1, 2} {
		fs.appCounts[appID] = map[int64]int64{10: 500}
		fs.fileActivities[fileActivityKey(appID, "2026-01-05")] = []models.FileActivity{{FileName: "report.docx"}}
	}
	fs.timeCounts[timeKey(9, int(start.Weekday()))] = map[int64]int64{10: 300}
	fs.tokenCounts["report"] = map[int64]int64{10: 300}

	c := New(fs, DefaultThresholds(), "v1")
	_, err := c.RunAutoSafe(context.Background(), AutoSafeFilter{})
	require.NoError(t, err)

	manualProject := int64(99)
	sess2 := fs.sessions[2]
	sess2.ProjectID = &manualProject
	fs.sessions[2] = sess2

	out, err := c.Rollback(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, out.Reverted)
	require.Equal(t, 1, out.Skipped)
	require.Nil(t, fs.sessions[1].ProjectID)
	require.Equal(t, int64(99), *fs.sessions[2].ProjectID)
}

func TestApplyDeterministicAssignment_SkipsFrozenProject(t *testing.T) {
	fs := newFakeStore()
	frozenAt := time.Now()
	fs.projects[10] = models.Project{ID: 10}
	fs.projects[20] = models.Project{ID: 20, FrozenAt: &frozenAt}

	fs.appHistory[1] = store.AppHistoryEntry{ProjectID: 10, Count: 6}
	fs.appHistory[2] = store.AppHistoryEntry{ProjectID: 20, Count: 6}

	fs.sessions[1] = models.Session{ID: 1, AppID: 1}
	fs.unassignedByApp[1] = []models.Session{fs.sessions[1]}
	fs.sessions[2] = models.Session{ID: 2, AppID: 2}
	fs.unassignedByApp[2] = []models.Session{fs.sessions[2]}

	c := New(fs, DefaultThresholds(), "v1")
	out, err := c.ApplyDeterministicAssignment(context.Background(), 5)
	require.NoError(t, err)

	require.Equal(t, 1, out.AppsApplied)
	require.Equal(t, 1, out.AppsSkipped)
	require.Equal(t, 1, out.SessionsAssigned)
	require.Equal(t, int64(10), *fs.sessions[1].ProjectID)
	require.Nil(t, fs.sessions[2].ProjectID)
}
