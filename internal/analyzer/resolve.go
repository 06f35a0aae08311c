package analyzer

import (
	"context"
	"fmt"

	"timeflow/internal/models"
)

// sourceIntervals builds the union of (a) non-hidden sessions with a
// resolved project and (b) manual sessions (spec.md §4.6 step 1). Range
// is used only to bound the SessionsInRange/ManualSessionsInRange query;
// clipping to the exact [r.Start, r.End) happens separately so a session
// spanning midnight still contributes its full file-activity context to
// resolution before being clipped.
func (a *Analyzer) sourceIntervals(ctx context.Context, r Range, opts Options) ([]interval, error) {
	from := r.Start.Format("2006-01-02")
	to := r.End.Format("2006-01-02")

	sessions, err := a.store.SessionsInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	fileActivityCache := map[string][]models.FileActivity{}
	fetchFileActivities := func(appID int64, date string) ([]models.FileActivity, error) {
		key := fmt.Sprintf("%d|%s", appID, date)
		if fa, ok := fileActivityCache[key]; ok {
			return fa, nil
		}
		fa, err := a.store.FileActivitiesForApp(ctx, appID, date)
		if err != nil {
			return nil, err
		}
		fileActivityCache[key] = fa
		return fa, nil
	}

	var out []interval
	for _, s := range sessions {
		if s.IsHidden {
			continue
		}

		projectID := UnassignedProjectID
		if s.ProjectID != nil {
			projectID = *s.ProjectID
		} else {
			fa, err := fetchFileActivities(s.AppID, s.Date)
			if err != nil {
				return nil, err
			}
			if resolved, ok := resolveSessionProjectFromOverlap(s, fa); ok {
				projectID = resolved
			}
		}

		out = append(out, interval{
			start:      s.StartTime,
			end:        s.EndTime,
			projectID:  projectID,
			multiplier: effectiveMultiplier(s.RateMultiplier),
			manual:     false,
			comment:    s.Comment,
		})
	}

	manualSessions, err := a.store.ManualSessionsInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, m := range manualSessions {
		out = append(out, interval{
			start:      m.StartTime,
			end:        m.EndTime,
			projectID:  m.ProjectID,
			multiplier: 1.0,
			manual:     true,
			comment:    m.Title,
		})
	}

	return out, nil
}

func effectiveMultiplier(m float64) float64 {
	if m <= 0 {
		return 1.0
	}
	return m
}

// resolveSessionProjectFromOverlap implements spec.md §4.6 step 1's
// fallback resolution: pick the project whose file-activity overlap
// seconds with the session are greatest; assign only if exactly one
// candidate project exists and overlap*2 >= session_span.
func resolveSessionProjectFromOverlap(s models.Session, activities []models.FileActivity) (int64, bool) {
	span := s.EndTime.Sub(s.StartTime).Seconds()
	if span <= 0 {
		return 0, false
	}

	overlapByProject := map[int64]float64{}
	for _, fa := range activities {
		if fa.ProjectID == nil {
			continue
		}
		start := maxTime(s.StartTime, fa.FirstSeen)
		end := minTime(s.EndTime, fa.LastSeen)
		if !start.Before(end) {
			continue
		}
		overlapByProject[*fa.ProjectID] += end.Sub(start).Seconds()
	}

	if len(overlapByProject) != 1 {
		return 0, false
	}
	for pid, overlap := range overlapByProject {
		if overlap*2 >= span {
			return pid, true
		}
	}
	return 0, false
}
