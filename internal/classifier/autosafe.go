package classifier

import (
	"context"
	"strconv"

	"timeflow/internal/models"
)

// AutoSafeFilter bounds the scan set for RunAutoSafe (spec.md §4.7).
type AutoSafeFilter struct {
	From            string
	To              string
	MinDurationSecs int64
	Limit           int
}

const (
	autoSafeDefaultLimit = 500
	autoSafeMaxLimit     = 10000
)

func (f AutoSafeFilter) clampedLimit() int {
	if f.Limit <= 0 {
		return autoSafeDefaultLimit
	}
	if f.Limit > autoSafeMaxLimit {
		return autoSafeMaxLimit
	}
	return f.Limit
}

// AutoSafeOutcome summarizes one RunAutoSafe pass.
type AutoSafeOutcome struct {
	RunID                 int64
	SessionsScanned       int
	SessionsSuggested     int
	SessionsAssigned      int
	SkippedAmbiguous      int
	SkippedLowConfidence  int
	SkippedAlreadyAssigned int
}

// RunAutoSafe implements spec.md §4.7's auto-safe run: scan, score, gate,
// and for each accepted session attempt the conditional assignment. A
// session already claimed by a concurrent writer is counted as
// skipped_already_assigned rather than treated as an error.
func (c *Classifier) RunAutoSafe(ctx context.Context, filter AutoSafeFilter) (AutoSafeOutcome, error) {
	runID, err := c.store.StartAutoSafeRun(ctx, string(ModeAutoSafe), c.thresholds.MinConfidenceAuto, c.thresholds.MinEvidenceAuto)
	if err != nil {
		return AutoSafeOutcome{}, err
	}

	outcome := AutoSafeOutcome{RunID: runID}

	sessions, err := c.store.UnassignedSessionsFiltered(ctx, filter.From, filter.To, filter.MinDurationSecs, filter.clampedLimit())
	if err != nil {
		_ = c.store.FinishAutoSafeRun(ctx, runID, 0, 0, 0, err)
		return outcome, err
	}

	for _, sess := range sessions {
		outcome.SessionsScanned++

		suggestion, ok, err := c.Score(ctx, sess)
		if err != nil {
			_ = c.store.FinishAutoSafeRun(ctx, runID, outcome.SessionsScanned, outcome.SessionsSuggested, outcome.SessionsAssigned, err)
			return outcome, err
		}
		if !ok {
			outcome.SkippedLowConfidence++
			continue
		}

		if !c.AcceptForAutoSafe(suggestion) {
			if suggestion.Margin < AutoSafeMinMargin &&
				suggestion.Confidence >= c.thresholds.MinConfidenceAuto &&
				suggestion.Evidence >= c.thresholds.MinEvidenceAuto {
				outcome.SkippedAmbiguous++
			} else {
				outcome.SkippedLowConfidence++
			}
			continue
		}
		outcome.SessionsSuggested++

		sug, err := c.store.PutSuggestion(ctx, models.AssignmentSuggestion{
			SessionID:          sess.ID,
			AppID:              sess.AppID,
			SuggestedProjectID: suggestion.ProjectID,
			Confidence:         suggestion.Confidence,
			EvidenceCount:      suggestion.Evidence,
			ModelVersion:       c.modelVer,
			Status:             models.SuggestionPending,
		})
		if err != nil {
			_ = c.store.FinishAutoSafeRun(ctx, runID, outcome.SessionsScanned, outcome.SessionsSuggested, outcome.SessionsAssigned, err)
			return outcome, err
		}

		assigned, err := c.store.UpdateSessionProjectIfUnassigned(ctx, sess.ID, suggestion.ProjectID)
		if err != nil {
			_ = c.store.FinishAutoSafeRun(ctx, runID, outcome.SessionsScanned, outcome.SessionsSuggested, outcome.SessionsAssigned, err)
			return outcome, err
		}
		if !assigned {
			outcome.SkippedAlreadyAssigned++
			_ = c.store.SetSuggestionStatus(ctx, sug.ID, models.SuggestionExpired)
			continue
		}

		if err := c.store.PropagateProjectToFileActivitiesInWindow(ctx, sess.AppID, sess.StartTime, sess.EndTime, &suggestion.ProjectID); err != nil {
			_ = c.store.FinishAutoSafeRun(ctx, runID, outcome.SessionsScanned, outcome.SessionsSuggested, outcome.SessionsAssigned, err)
			return outcome, err
		}
		if err := c.store.RecordAutoSafeItem(ctx, models.AutoSafeRunItem{
			RunID:         runID,
			SessionID:     sess.ID,
			AppID:         sess.AppID,
			FromProjectID: sess.ProjectID,
			ToProjectID:   suggestion.ProjectID,
			SuggestionID:  &sug.ID,
			Confidence:    suggestion.Confidence,
			EvidenceCount: suggestion.Evidence,
		}); err != nil {
			_ = c.store.FinishAutoSafeRun(ctx, runID, outcome.SessionsScanned, outcome.SessionsSuggested, outcome.SessionsAssigned, err)
			return outcome, err
		}
		if err := c.store.SetSuggestionStatus(ctx, sug.ID, models.SuggestionAccepted); err != nil {
			return outcome, err
		}
		if err := c.recordFeedbackAndBump(ctx, &sug.ID, &sess.ID, &sess.AppID, sess.ProjectID, &suggestion.ProjectID, models.SourceAutoAccept); err != nil {
			return outcome, err
		}

		outcome.SessionsAssigned++
	}

	if err := c.store.FinishAutoSafeRun(ctx, runID, outcome.SessionsScanned, outcome.SessionsSuggested, outcome.SessionsAssigned, nil); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// recordFeedbackAndBump writes one assignment_feedback row and bumps
// feedback_since_train, the pair of side effects spec.md §4.11 requires
// "always" accompany a project reassignment.
func (c *Classifier) recordFeedbackAndBump(ctx context.Context, suggestionID, sessionID, appID *int64, from, to *int64, source models.FeedbackSource) error {
	if err := c.store.RecordFeedback(ctx, models.AssignmentFeedback{
		SuggestionID:  suggestionID,
		SessionID:     sessionID,
		AppID:         appID,
		FromProjectID: from,
		ToProjectID:   to,
		Source:        source,
	}); err != nil {
		return err
	}
	return c.bumpFeedbackCounter(ctx)
}

func (c *Classifier) bumpFeedbackCounter(ctx context.Context) error {
	state, err := c.store.LoadModelStateMap(ctx)
	if err != nil {
		return err
	}
	n, _ := strconv.Atoi(state["feedback_since_train"])
	return c.store.SetModelState(ctx, "feedback_since_train", strconv.Itoa(n+1))
}

// RollbackOutcome summarizes a rollback pass.
type RollbackOutcome struct {
	RunID    int64
	Reverted int
	Skipped  int
}

// Rollback implements spec.md §4.7's Rollback: find the latest run with
// sessions_assigned > 0 and no rolled_back_at, then revert its items
// newest-first, but only where the session's project still equals what
// this run set it to (a later manual reassignment wins).
func (c *Classifier) Rollback(ctx context.Context) (RollbackOutcome, error) {
	run, err := c.store.LatestAutoSafeRun(ctx)
	if err != nil {
		return RollbackOutcome{}, err
	}

	items, err := c.store.AutoSafeRunItems(ctx, run.ID)
	if err != nil {
		return RollbackOutcome{}, err
	}

	outcome := RollbackOutcome{RunID: run.ID}
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]

		reverted, err := c.store.RevertSessionProjectIfStillAssigned(ctx, item.SessionID, item.ToProjectID)
		if err != nil {
			return outcome, err
		}
		if !reverted {
			outcome.Skipped++
			continue
		}

		sess, err := c.store.GetSession(ctx, item.SessionID)
		if err != nil {
			return outcome, err
		}
		if err := c.store.PropagateProjectToFileActivitiesInWindow(ctx, item.AppID, sess.StartTime, sess.EndTime, item.FromProjectID); err != nil {
			return outcome, err
		}
		if item.SuggestionID != nil {
			_ = c.store.SetSuggestionStatus(ctx, *item.SuggestionID, models.SuggestionRejected)
		}
		toProject := item.ToProjectID
		if err := c.recordFeedbackAndBump(ctx, item.SuggestionID, &item.SessionID, &item.AppID, &toProject, item.FromProjectID, models.SourceAutoReject); err != nil {
			return outcome, err
		}
		outcome.Reverted++
	}

	if err := c.store.MarkAutoSafeRunRolledBack(ctx, run.ID, outcome.Reverted, outcome.Skipped); err != nil {
		return outcome, err
	}
	return outcome, nil
}
