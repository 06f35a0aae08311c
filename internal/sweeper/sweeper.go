// Package sweeper implements the Attribution Sweeper (C11): the two
// canonical project-assignment mutations (session-level and app-level),
// each of which propagates the change to file_activities and then always
// appends an assignment_feedback row and bumps feedback_since_train.
// These are separate Store calls, not one transaction: a failure part
// way leaves the earlier writes in place. Ground: the teacher's event-sourcing discipline in
// internal/indexer, where every state mutation is paired with an
// append-only event row — here the pairing is assignment + feedback
// instead of block + event.
package sweeper

import (
	"context"
	"strconv"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/store"
)

// Store is the subset of *store.Store the Sweeper depends on.
type Store interface {
	GetSession(ctx context.Context, id int64) (models.Session, error)
	AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error
	PropagateProjectToFileActivitiesInWindow(ctx context.Context, appID int64, start, end time.Time, projectID *int64) error

	GetApplication(ctx context.Context, id int64) (models.Application, error)
	AssignApplicationToProject(ctx context.Context, appID int64, projectID *int64) error
	PropagateProjectToFileActivities(ctx context.Context, appID int64, fromProjectID, toProjectID *int64) error

	RecordFeedback(ctx context.Context, f models.AssignmentFeedback) error
	LoadModelStateMap(ctx context.Context) (map[string]string, error)
	SetModelState(ctx context.Context, key, value string) error
}

var _ Store = (*store.Store)(nil)

// Sweeper performs the canonical project-assignment mutations.
type Sweeper struct {
	store Store
}

func New(s Store) *Sweeper {
	return &Sweeper{store: s}
}

// AssignSessionToProject reassigns one session and propagates the change
// to file activities whose window overlaps it (spec.md §4.11).
func (w *Sweeper) AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64, source models.FeedbackSource) error {
	sess, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	fromProjectID := sess.ProjectID

	if err := w.store.AssignSessionToProject(ctx, sessionID, projectID); err != nil {
		return err
	}
	if err := w.store.PropagateProjectToFileActivitiesInWindow(ctx, sess.AppID, sess.StartTime, sess.EndTime, projectID); err != nil {
		return err
	}
	return w.recordAndBump(ctx, &sessionID, &sess.AppID, fromProjectID, projectID, source)
}

// AssignAppToProject reassigns an application's default project. File
// activities for that app inherit the new project where they were
// unassigned or already matched the app's previous project; a clearing
// assignment (projectID == nil) clears them the same way (spec.md §4.11).
func (w *Sweeper) AssignAppToProject(ctx context.Context, appID int64, projectID *int64, source models.FeedbackSource) error {
	app, err := w.store.GetApplication(ctx, appID)
	if err != nil {
		return err
	}
	fromProjectID := app.ProjectID

	if err := w.store.AssignApplicationToProject(ctx, appID, projectID); err != nil {
		return err
	}
	if err := w.store.PropagateProjectToFileActivities(ctx, appID, fromProjectID, projectID); err != nil {
		return err
	}
	return w.recordAndBump(ctx, nil, &appID, fromProjectID, projectID, source)
}

func (w *Sweeper) recordAndBump(ctx context.Context, sessionID, appID, fromProjectID, toProjectID *int64, source models.FeedbackSource) error {
	if err := w.store.RecordFeedback(ctx, models.AssignmentFeedback{
		SessionID:     sessionID,
		AppID:         appID,
		FromProjectID: fromProjectID,
		ToProjectID:   toProjectID,
		Source:        source,
	}); err != nil {
		return err
	}
	state, err := w.store.LoadModelStateMap(ctx)
	if err != nil {
		return err
	}
	n, _ := strconv.Atoi(state["feedback_since_train"])
	return w.store.SetModelState(ctx, "feedback_since_train", strconv.Itoa(n+1))
}
