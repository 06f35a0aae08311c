package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateProject_RejectsBlacklistedName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BlacklistProjectName(ctx, "(background)"))

	_, err := s.CreateProject(ctx, "(background)", "#fff")
	require.Error(t, err)
}

func TestCreateProject_RejectsDuplicateCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, "Acme", "#111")
	require.NoError(t, err)

	_, err = s.CreateProject(ctx, "acme", "#222")
	require.Error(t, err)
}

func TestUpsertSession_DedupKeepsLongerDuration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	app, err := s.UpsertApplication(ctx, "code.exe", "VS Code")
	require.NoError(t, err)

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	short := models.Session{AppID: app.ID, StartTime: start, EndTime: start.Add(5 * time.Minute), DurationSeconds: 300, Date: "2026-01-05", RateMultiplier: 1}
	long := models.Session{AppID: app.ID, StartTime: start, EndTime: start.Add(20 * time.Minute), DurationSeconds: 1200, Date: "2026-01-05", RateMultiplier: 1}

	_, err = s.UpsertSession(ctx, short)
	require.NoError(t, err)
	got, err := s.UpsertSession(ctx, long)
	require.NoError(t, err)
	require.Equal(t, int64(1200), got.DurationSeconds)

	// Re-ingesting the shorter duration again must not shrink it back down.
	got2, err := s.UpsertSession(ctx, short)
	require.NoError(t, err)
	require.Equal(t, int64(1200), got2.DurationSeconds)
}

func TestAccumulateFileActivity_WidensSeenWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	app, err := s.UpsertApplication(ctx, "code.exe", "VS Code")
	require.NoError(t, err)

	require.NoError(t, s.AccumulateFileActivity(ctx, app.ID, "2026-01-05", "main.go", 60, "2026-01-05T09:00:00Z", nil))
	require.NoError(t, s.AccumulateFileActivity(ctx, app.ID, "2026-01-05", "main.go", 30, "2026-01-05T09:05:00Z", nil))

	activities, err := s.FileActivitiesForApp(ctx, app.ID, "2026-01-05")
	require.NoError(t, err)
	require.Len(t, activities, 1)
	// The incoming total replaces the stored one; the seen window widens.
	require.Equal(t, int64(30), activities[0].TotalSeconds)
	require.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), activities[0].FirstSeen)
	require.Equal(t, time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC), activities[0].LastSeen)
}

func TestMergeOrInsertSession_CollapsesTransitiveOverlaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	app, err := s.UpsertApplication(ctx, "code.exe", "VS Code")
	require.NoError(t, err)

	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	// Two disjoint stored sessions, [9:00-9:10] and [9:20-9:30].
	_, err = s.UpsertSession(ctx, models.Session{
		AppID: app.ID, StartTime: day, EndTime: day.Add(10 * time.Minute),
		DurationSeconds: 600, Date: "2026-01-05", RateMultiplier: 1,
	})
	require.NoError(t, err)
	_, err = s.UpsertSession(ctx, models.Session{
		AppID: app.ID, StartTime: day.Add(20 * time.Minute), EndTime: day.Add(30 * time.Minute),
		DurationSeconds: 600, Date: "2026-01-05", RateMultiplier: 1,
	})
	require.NoError(t, err)

	// An incoming [9:08-9:22] session bridges both, so the merge must
	// pull in both stored rows transitively and collapse all three into
	// one spanning [9:00-9:30].
	keepID, err := s.MergeOrInsertSession(ctx, app.ID, "2026-01-05",
		day.Add(8*time.Minute), day.Add(22*time.Minute), 1.5)
	require.NoError(t, err)

	merged, err := s.GetSession(ctx, keepID)
	require.NoError(t, err)
	require.Equal(t, day, merged.StartTime)
	require.Equal(t, day.Add(30*time.Minute), merged.EndTime)
	require.Equal(t, int64(30*60), merged.DurationSeconds)
	require.Equal(t, 1.5, merged.RateMultiplier)

	all, err := s.SessionsInRange(ctx, "2026-01-05", "2026-01-05")
	require.NoError(t, err)
	require.Len(t, all, 1, "the two pre-existing rows must be deleted, leaving only the merged one")
}

func TestUpsertProjectByName_PreservesRateOnNilUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rate := 50.0
	created, err := s.UpsertProjectByName(ctx, "Acme", "#111", &rate)
	require.NoError(t, err)
	require.NotNil(t, created.HourlyRate)

	updated, err := s.UpsertProjectByName(ctx, "acme", "#222", nil)
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.NotNil(t, updated.HourlyRate)
	require.Equal(t, rate, *updated.HourlyRate)
}

func TestDeleteProjectByName_TombstoneIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, "Acme", "#111")
	require.NoError(t, err)

	require.NoError(t, s.DeleteProjectByName(ctx, "ACME"))

	_, ok, err := s.FindProjectByName(ctx, "Acme")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutSuggestion_OneLivePerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateProject(ctx, "Website", "#abc")
	require.NoError(t, err)
	app, err := s.UpsertApplication(ctx, "code.exe", "VS Code")
	require.NoError(t, err)
	sess, err := s.UpsertSession(ctx, models.Session{
		AppID: app.ID, StartTime: time.Now(), EndTime: time.Now().Add(time.Minute),
		DurationSeconds: 60, Date: "2026-01-05", RateMultiplier: 1,
	})
	require.NoError(t, err)

	_, err = s.PutSuggestion(ctx, models.AssignmentSuggestion{
		SessionID: sess.ID, AppID: app.ID, SuggestedProjectID: proj.ID,
		Confidence: 0.7, EvidenceCount: 4, ModelVersion: "v1", Status: models.SuggestionPending,
	})
	require.NoError(t, err)

	updated, err := s.PutSuggestion(ctx, models.AssignmentSuggestion{
		SessionID: sess.ID, AppID: app.ID, SuggestedProjectID: proj.ID,
		Confidence: 0.9, EvidenceCount: 6, ModelVersion: "v2", Status: models.SuggestionPending,
	})
	require.NoError(t, err)

	pending, err := s.SuggestionsByStatus(ctx, models.SuggestionPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, updated.Confidence, pending[0].Confidence)
}
