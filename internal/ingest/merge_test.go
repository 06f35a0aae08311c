package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/models"
)

func mkSession(startOffset, durSecs int) models.DailyFileSession {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	start := base.Add(time.Duration(startOffset) * time.Second)
	end := start.Add(time.Duration(durSecs) * time.Second)
	return models.DailyFileSession{Start: start, End: end, DurationSeconds: uint64(durSecs)}
}

func TestMergeAdjacentIntervals_MergesTouching(t *testing.T) {
	sessions := []models.DailyFileSession{
		mkSession(0, 60),
		mkSession(60, 60), // starts exactly where the first ends
	}
	merged := MergeAdjacentIntervals(sessions, 0)
	require.Len(t, merged, 1)
	require.Equal(t, uint64(120), merged[0].DurationSeconds)
}

func TestMergeAdjacentIntervals_KeepsGapApart(t *testing.T) {
	sessions := []models.DailyFileSession{
		mkSession(0, 60),
		mkSession(120, 60), // 60s gap after the first ends
	}
	merged := MergeAdjacentIntervals(sessions, 0)
	require.Len(t, merged, 2)
}

func TestMergeAdjacentIntervals_OrderIndependent(t *testing.T) {
	a := []models.DailyFileSession{mkSession(60, 60), mkSession(0, 60)}
	b := []models.DailyFileSession{mkSession(0, 60), mkSession(60, 60)}
	require.Equal(t, MergeAdjacentIntervals(a, 0), MergeAdjacentIntervals(b, 0))
}

func TestMergeAdjacentIntervals_Empty(t *testing.T) {
	require.Nil(t, MergeAdjacentIntervals(nil, 0))
}
