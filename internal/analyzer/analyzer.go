// Package analyzer implements the Interval Analyzer (C6): the single
// sweep-line operation every project/dashboard view is a thin read over.
// Ground: the teacher's repository-layer range queries (postgres.go,
// "fetch everything in [from, to), then fold in Go rather than push
// aggregation into SQL", now retired) generalized from block-height
// ranges to wall-clock ranges, with the actual weighting algorithm
// implementing spec.md §4.6 exactly as an endpoint-event sweep.
package analyzer

import (
	"context"
	"sort"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/store"
)

// UnassignedProjectID is the synthetic bucket for activity that cannot be
// attributed to a real project (spec.md §4.6 step 1's "Unassigned").
const UnassignedProjectID int64 = -1

// Store is the subset of *store.Store the analyzer reads from.
type Store interface {
	SessionsInRange(ctx context.Context, from, to string) ([]models.Session, error)
	ManualSessionsInRange(ctx context.Context, from, to string) ([]models.ManualSession, error)
	FileActivitiesForApp(ctx context.Context, appID int64, date string) ([]models.FileActivity, error)
	ActiveProjects(ctx context.Context) ([]models.Project, error)
}

// Range is a half-open [Start, End) window in local time.
type Range struct {
	Start time.Time
	End   time.Time
}

// Options configures one compute_project_activity_unique call.
type Options struct {
	Hourly        bool
	ActiveOnly    bool
	ProjectFilter *int64
}

// BucketFlags records whether any piece of a bucket came from a
// multiplier-boosted session or a manual session.
type BucketFlags struct {
	HasBoost  bool
	HasManual bool
}

// Result is compute_project_activity_unique's full output.
type Result struct {
	// Buckets[bucketStart.Format(time.RFC3339)][projectID] = seconds.
	Buckets  map[string]map[int64]float64
	Totals   map[int64]float64
	Flags    map[string]BucketFlags
	Comments map[string][]string
}

func newResult() Result {
	return Result{
		Buckets:  map[string]map[int64]float64{},
		Totals:   map[int64]float64{},
		Flags:    map[string]BucketFlags{},
		Comments: map[string][]string{},
	}
}

// interval is one source row after project resolution: a contiguous span
// attributed (or not) to a project, carrying its rate multiplier, manual
// flag, and optional comment.
type interval struct {
	start      time.Time
	end        time.Time
	projectID  int64
	multiplier float64
	manual     bool
	comment    string
}

// Analyzer runs the sweep-line activity computation.
type Analyzer struct {
	store Store
}

func New(s Store) *Analyzer {
	return &Analyzer{store: s}
}

var _ Store = (*store.Store)(nil)

const boostEpsilon = 1e-9

// ComputeProjectActivityUnique implements spec.md §4.6's core operation.
func (a *Analyzer) ComputeProjectActivityUnique(ctx context.Context, r Range, opts Options) (Result, error) {
	result := newResult()

	intervals, err := a.sourceIntervals(ctx, r, opts)
	if err != nil {
		return result, err
	}

	clipped := clipIntervals(intervals, r)

	var activeExcluded map[int64]bool
	if opts.ActiveOnly {
		active, err := a.store.ActiveProjects(ctx)
		if err != nil {
			return result, err
		}
		activeExcluded = map[int64]bool{}
		activeSet := make(map[int64]bool, len(active))
		for _, p := range active {
			activeSet[p.ID] = true
		}
		// Any project referenced by an interval that isn't in the active
		// set gets routed to Unassigned below.
		for _, iv := range clipped {
			if iv.projectID != UnassignedProjectID && !activeSet[iv.projectID] {
				activeExcluded[iv.projectID] = true
			}
		}
	}
	for i := range clipped {
		if activeExcluded != nil && activeExcluded[clipped[i].projectID] {
			clipped[i].projectID = UnassignedProjectID
		}
	}

	if opts.ProjectFilter != nil {
		filtered := clipped[:0]
		for _, iv := range clipped {
			if iv.projectID == *opts.ProjectFilter {
				filtered = append(filtered, iv)
			}
		}
		clipped = filtered
	}

	buckets := splitIntoBuckets(clipped, opts.Hourly)

	for bucketStart, pieces := range buckets {
		bucketEnd := bucketStart.Add(bucketDuration(opts.Hourly))
		shares, flags, comments := sweepBucket(pieces, bucketStart, bucketEnd)

		key := bucketStart.Format(time.RFC3339)
		result.Buckets[key] = shares
		result.Flags[key] = flags
		result.Comments[key] = comments
		for pid, secs := range shares {
			result.Totals[pid] += secs
		}
	}

	return result, nil
}

func bucketDuration(hourly bool) time.Duration {
	if hourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// sweepBucket implements spec.md §4.6 step 4: endpoint-event sweep with
// equal-share-then-multiplier weighting between successive event times.
func sweepBucket(pieces []interval, bucketStart, bucketEnd time.Time) (map[int64]float64, BucketFlags, []string) {
	type event struct {
		ts      time.Time
		delta   int
		project int64
		mult    float64
		manual  bool
		comment string
		isStart bool
	}

	var events []event
	for _, p := range pieces {
		start := maxTime(p.start, bucketStart)
		end := minTime(p.end, bucketEnd)
		if !start.Before(end) {
			continue
		}
		events = append(events,
			event{ts: start, delta: +1, project: p.projectID, mult: p.multiplier, manual: p.manual, comment: p.comment, isStart: true},
			event{ts: end, delta: -1, project: p.projectID, mult: p.multiplier, manual: p.manual, comment: p.comment, isStart: false},
		)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].ts.Equal(events[j].ts) {
			return events[i].ts.Before(events[j].ts)
		}
		// Ties: start events before end events.
		return events[i].isStart && !events[j].isStart
	})

	type activeEntry struct {
		refCount int
		mult     float64
	}
	active := map[int64]*activeEntry{}

	shares := map[int64]float64{}
	var flags BucketFlags
	commentSet := map[string]bool{}

	i := 0
	for i < len(events) {
		cur := events[i].ts
		// Apply all events at this timestamp first so the window [cur, next)
		// reflects the post-event active set.
		for i < len(events) && events[i].ts.Equal(cur) {
			e := events[i]
			entry, ok := active[e.project]
			if !ok {
				entry = &activeEntry{}
				active[e.project] = entry
			}
			entry.refCount += e.delta
			entry.mult = e.mult
			if e.manual {
				flags.HasManual = true
			}
			if e.mult > 1+boostEpsilon {
				flags.HasBoost = true
			}
			if e.comment != "" {
				commentSet[e.comment] = true
			}
			if entry.refCount <= 0 {
				delete(active, e.project)
			}
			i++
		}

		var next time.Time
		if i < len(events) {
			next = events[i].ts
		} else {
			break
		}

		span := next.Sub(cur).Seconds()
		if span <= 0 || len(active) == 0 {
			continue
		}
		equalShare := span / float64(len(active))
		for pid, entry := range active {
			shares[pid] += equalShare * entry.mult
		}
	}

	var comments []string
	for c := range commentSet {
		comments = append(comments, c)
	}
	sort.Strings(comments)

	return shares, flags, comments
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
