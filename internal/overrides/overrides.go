// Package overrides implements the Manual Override Book (C10): durable
// (executable, start, end) -> project pins that survive reimport, plus
// the post-import replay pass. Ground: the teacher's reorg-handling idiom
// in internal/indexer (replaying the canonical chain over a reorged
// range) — here the "canonical" source of truth is the override table,
// replayed over whatever sessions exist once import settles.
package overrides

import (
	"context"
	"sort"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/store"
)

// Store is the subset of *store.Store the Book depends on.
type Store interface {
	PutOverride(ctx context.Context, o models.ManualOverride) error
	OverridesForExecutable(ctx context.Context, executableName string) ([]models.ManualOverride, error)
	AllOverrides(ctx context.Context) ([]models.ManualOverride, error)
	FindApplicationByExecutable(ctx context.Context, executableName string) (models.Application, bool, error)
	FindProjectByName(ctx context.Context, name string) (models.Project, bool, error)
	SessionsForAppOverlapping(ctx context.Context, appID int64, from, to time.Time) ([]models.Session, error)
	AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error
	PropagateProjectToFileActivitiesInWindow(ctx context.Context, appID int64, start, end time.Time, projectID *int64) error
}

type Book struct {
	store Store
}

func New(s Store) *Book {
	return &Book{store: s}
}

var _ Store = (*store.Store)(nil)

// Set records a durable pin. o.ProjectName == nil pins the session to "no
// project" explicitly, distinct from never having been pinned.
func (b *Book) Set(ctx context.Context, o models.ManualOverride) error {
	return b.store.PutOverride(ctx, o)
}

// ReplayResult summarizes one ReplayAll pass.
type ReplayResult struct {
	Considered int
	Applied    int
}

// ReplayAll walks every override newest-first and reapplies it to any
// session it still matches, updating overlapping file activities too
// (spec.md §4.10: "this guarantees user intent survives remote sync
// overwrites"). Overrides whose executable has never been seen, or whose
// project name no longer resolves, are skipped rather than erroring the
// whole pass.
func (b *Book) ReplayAll(ctx context.Context) (ReplayResult, error) {
	all, err := b.store.AllOverrides(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	var res ReplayResult
	for _, o := range all {
		res.Considered++

		app, ok, err := b.store.FindApplicationByExecutable(ctx, o.ExecutableName)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}

		var projectID *int64
		if o.ProjectName != nil {
			proj, ok, err := b.store.FindProjectByName(ctx, *o.ProjectName)
			if err != nil {
				return res, err
			}
			if !ok {
				continue
			}
			id := proj.ID
			projectID = &id
		}

		sessions, err := b.store.SessionsForAppOverlapping(ctx, app.ID, o.StartTime, o.EndTime)
		if err != nil {
			return res, err
		}
		if len(sessions) == 0 {
			continue
		}

		for _, sess := range sessions {
			if err := b.store.AssignSessionToProject(ctx, sess.ID, projectID); err != nil {
				return res, err
			}
		}
		if err := b.store.PropagateProjectToFileActivitiesInWindow(ctx, app.ID, o.StartTime, o.EndTime, projectID); err != nil {
			return res, err
		}
		res.Applied++
	}
	return res, nil
}
