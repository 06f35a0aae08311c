package analyzer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
)

type fakeStore struct {
	sessions       []models.Session
	manualSessions []models.ManualSession
	fileActivities map[string][]models.FileActivity
	projects       []models.Project
}

func (f *fakeStore) SessionsInRange(ctx context.Context, from, to string) ([]models.Session, error) {
	return f.sessions, nil
}

func (f *fakeStore) ManualSessionsInRange(ctx context.Context, from, to string) ([]models.ManualSession, error) {
	return f.manualSessions, nil
}

func (f *fakeStore) FileActivitiesForApp(ctx context.Context, appID int64, date string) ([]models.FileActivity, error) {
	return f.fileActivities[key(appID, date)], nil
}

func (f *fakeStore) ActiveProjects(ctx context.Context) ([]models.Project, error) {
	return f.projects, nil
}

func key(appID int64, date string) string {
	return fmt.Sprintf("%s|%d", date, appID)
}

func TestComputeProjectActivityUnique_SplitsEqualShareOnOverlap(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	fs := &fakeStore{
		sessions: []models.Session{
			{ID: 1, AppID: 1, StartTime: day, EndTime: day.Add(10 * time.Minute), Date: "2026-01-05", RateMultiplier: 1.0, ProjectID: int64Ptr(1)},
			{ID: 2, AppID: 2, StartTime: day.Add(5 * time.Minute), EndTime: day.Add(15 * time.Minute), Date: "2026-01-05", RateMultiplier: 1.0, ProjectID: int64Ptr(2)},
		},
	}
	a := New(fs)

	res, err := a.ComputeProjectActivityUnique(context.Background(), Range{
		Start: day.Add(-time.Hour), End: day.Add(time.Hour),
	}, Options{Hourly: true})
	require.NoError(t, err)

	var bucketKey string
	for k, projects := range res.Buckets {
		if len(projects) > 0 {
			bucketKey = k
		}
	}
	require.NotEmpty(t, bucketKey)

	shares := res.Buckets[bucketKey]
	// [9:00,9:05) solo project 1 -> 300s; [9:05,9:10) shared -> 150s each;
	// [9:10,9:15) solo project 2 -> 300s.
	require.InDelta(t, 450, shares[1], 0.01)
	require.InDelta(t, 450, shares[2], 0.01)
}

func TestComputeProjectActivityUnique_BoostFlagFromMultiplier(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	fs := &fakeStore{
		sessions: []models.Session{
			{ID: 1, AppID: 1, StartTime: day, EndTime: day.Add(10 * time.Minute), Date: "2026-01-05", RateMultiplier: 1.5, ProjectID: int64Ptr(1)},
		},
	}
	a := New(fs)

	res, err := a.ComputeProjectActivityUnique(context.Background(), Range{
		Start: day.Add(-time.Hour), End: day.Add(time.Hour),
	}, Options{Hourly: true})
	require.NoError(t, err)

	var found bool
	for _, flags := range res.Flags {
		if flags.HasBoost {
			found = true
		}
	}
	require.True(t, found, "expected at least one bucket flagged with boost")
}

func TestComputeProjectActivityUnique_UnresolvedSessionGoesUnassigned(t *testing.T) {
	day := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	fs := &fakeStore{
		sessions: []models.Session{
			{ID: 1, AppID: 1, StartTime: day, EndTime: day.Add(10 * time.Minute), Date: "2026-01-05", RateMultiplier: 1.0},
		},
	}
	a := New(fs)

	res, err := a.ComputeProjectActivityUnique(context.Background(), Range{
		Start: day.Add(-time.Hour), End: day.Add(time.Hour),
	}, Options{Hourly: true})
	require.NoError(t, err)

	require.InDelta(t, 600, res.Totals[UnassignedProjectID], 0.01)
}

func int64Ptr(v int64) *int64 { return &v }
