package ingest

import (
	"sort"
	"time"

	"timeflow/internal/models"
)

// MergeAdjacentIntervals sorts sessions by start time and folds together
// any two whose gap is <= maxGap; a merged session's duration is
// recomputed from its new start and end, so overlapping time counts
// once. The Session
// Builder already coalesces samples at SessionGapSecs granularity, but a
// daily file can still contain back-to-back sessions split by a save
// boundary; merging here gives the Ingestor one canonical session per
// contiguous block regardless of when the Collector happened to flush
// (spec.md §4.4, P3 — merge is associative and order-independent).
func MergeAdjacentIntervals(sessions []models.DailyFileSession, maxGap time.Duration) []models.DailyFileSession {
	if len(sessions) == 0 {
		return nil
	}

	sorted := make([]models.DailyFileSession, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []models.DailyFileSession{sorted[0]}
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !next.Start.After(last.End.Add(maxGap)) {
			if next.End.After(last.End) {
				last.End = next.End
			}
			last.DurationSeconds = uint64(last.End.Sub(last.Start).Seconds())
			continue
		}
		merged = append(merged, next)
	}
	return merged
}
