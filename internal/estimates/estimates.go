// Package estimates implements the Estimates Engine (C8): billed hours and
// cost per project over a range, given the Interval Analyzer's per-project
// second totals. Ground: the teacher's internal/indexer snapshot-rollup
// idiom (read aggregated counters, fold into a response DTO) applied here
// to project billing instead of block counters.
package estimates

import (
	"context"

	"timeflow/internal/models"
	"timeflow/internal/store"
)

// Store is the subset of *store.Store the engine depends on.
type Store interface {
	GlobalHourlyRate(ctx context.Context) (float64, error)
	GetProject(ctx context.Context, id int64) (models.Project, error)
}

// Engine converts per-project second totals into billed hours and cost.
type Engine struct {
	store Store
}

func New(s Store) *Engine {
	return &Engine{store: s}
}

var _ Store = (*store.Store)(nil)

// Estimate is one project's billed figures for a range.
type Estimate struct {
	ProjectID int64   `json:"project_id"`
	Seconds   float64 `json:"seconds"`
	Hours     float64 `json:"hours"`
	Rate      float64 `json:"hourly_rate"`
	Cost      float64 `json:"cost"`
}

const secondsPerHour = 3600.0

// Compute converts totals (project id -> seconds, already multiplier-
// weighted by the Interval Analyzer's sweep) into per-project estimates.
// totals may include analyzer.UnassignedProjectID; callers that don't want
// an "unassigned" line item should filter it out of totals first.
func (e *Engine) Compute(ctx context.Context, totals map[int64]float64) ([]Estimate, error) {
	globalRate, err := e.store.GlobalHourlyRate(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Estimate, 0, len(totals))
	for projectID, seconds := range totals {
		rate := globalRate
		if projectID > 0 {
			project, err := e.store.GetProject(ctx, projectID)
			if err == nil && project.HourlyRate != nil {
				rate = *project.HourlyRate
			}
		}
		hours := seconds / secondsPerHour
		out = append(out, Estimate{
			ProjectID: projectID,
			Seconds:   seconds,
			Hours:     hours,
			Rate:      rate,
			Cost:      hours * rate,
		})
	}
	return out, nil
}
