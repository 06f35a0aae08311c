package classifier

import (
	"context"

	"timeflow/internal/models"
)

// DeterministicOutcome summarizes one ApplyDeterministicAssignment pass.
type DeterministicOutcome struct {
	AppsApplied      int
	SessionsAssigned int
	AppsSkipped      int
}

// ApplyDeterministicAssignment implements spec.md §4.7's deterministic
// rule: for every app whose entire eligible session history maps to a
// single project with at least minHistory sessions, assign that app's
// still-unassigned sessions to that project, unless the project is
// excluded or frozen.
func (c *Classifier) ApplyDeterministicAssignment(ctx context.Context, minHistory int) (DeterministicOutcome, error) {
	if minHistory <= 0 {
		minHistory = DefaultMinHistoryForDeterministicRule
	}

	history, err := c.store.AppSingleProjectHistory(ctx)
	if err != nil {
		return DeterministicOutcome{}, err
	}

	var outcome DeterministicOutcome
	for appID, entry := range history {
		if entry.Count < int64(minHistory) {
			continue
		}

		project, err := c.store.GetProject(ctx, entry.ProjectID)
		if err != nil {
			return outcome, err
		}
		if !project.Active() || project.FrozenAt != nil {
			outcome.AppsSkipped++
			continue
		}

		sessions, err := c.store.UnassignedSessionsForApp(ctx, appID)
		if err != nil {
			return outcome, err
		}
		if len(sessions) == 0 {
			continue
		}

		projectID := entry.ProjectID
		for _, sess := range sessions {
			if err := c.store.AssignSessionToProject(ctx, sess.ID, &projectID); err != nil {
				return outcome, err
			}
			if err := c.recordFeedbackAndBump(ctx, nil, &sess.ID, &appID, nil, &projectID, models.SourceDeterministicRule); err != nil {
				return outcome, err
			}
			if err := c.store.PropagateProjectToFileActivitiesInWindow(ctx, appID, sess.StartTime, sess.EndTime, &projectID); err != nil {
				return outcome, err
			}
			outcome.SessionsAssigned++
		}

		outcome.AppsApplied++
	}

	return outcome, nil
}
