package estimates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
)

type fakeStore struct {
	globalRate float64
	projects   map[int64]models.Project
}

func (f *fakeStore) GlobalHourlyRate(ctx context.Context) (float64, error) { return f.globalRate, nil }

func (f *fakeStore) GetProject(ctx context.Context, id int64) (models.Project, error) {
	return f.projects[id], nil
}

func TestCompute_UsesProjectOverrideThenGlobalRate(t *testing.T) {
	rate := 50.0
	fs := &fakeStore{
		globalRate: 100,
		projects: map[int64]models.Project{
			1: {ID: 1, HourlyRate: &rate},
			2: {ID: 2},
		},
	}
	e := New(fs)

	estimates, err := e.Compute(context.Background(), map[int64]float64{1: 3600, 2: 7200})
	require.NoError(t, err)
	require.Len(t, estimates, 2)

	byProject := map[int64]Estimate{}
	for _, est := range estimates {
		byProject[est.ProjectID] = est
	}

	require.Equal(t, 1.0, byProject[1].Hours)
	require.Equal(t, 50.0, byProject[1].Rate)
	require.Equal(t, 50.0, byProject[1].Cost)

	require.Equal(t, 2.0, byProject[2].Hours)
	require.Equal(t, 100.0, byProject[2].Rate)
	require.Equal(t, 200.0, byProject[2].Cost)
}

func TestCompute_SkipsProjectLookupForUnassigned(t *testing.T) {
	fs := &fakeStore{globalRate: 100, projects: map[int64]models.Project{}}
	e := New(fs)

	estimates, err := e.Compute(context.Background(), map[int64]float64{-1: 1800})
	require.NoError(t, err)
	require.Len(t, estimates, 1)
	require.Equal(t, 100.0, estimates[0].Rate)
	require.Equal(t, 0.5, estimates[0].Hours)
}
