package classifier

import (
	"context"
	"strconv"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/store"
	"timeflow/internal/terrors"
)

// Mode selects how the Classifier's suggestions are acted on.
type Mode string

const (
	ModeOff      Mode = "off"
	ModeSuggest  Mode = "suggest"
	ModeAutoSafe Mode = "auto_safe"
)

// trainCooldownFeedbackThreshold is train()'s "unless forced, skip when
// feedback_since_train < 30" gate (spec.md §4.7).
const trainCooldownFeedbackThreshold = 30

// Store is the subset of *store.Store the Classifier depends on.
type Store interface {
	AppCounts(ctx context.Context, appID int64) (map[int64]int64, error)
	TimeCounts(ctx context.Context, hour, weekday int) (map[int64]int64, error)
	TokenCounts(ctx context.Context, token string) (map[int64]int64, error)
	FileActivitiesForApp(ctx context.Context, appID int64, date string) ([]models.FileActivity, error)

	ClearModelCounts(ctx context.Context) error
	TrainingSessions(ctx context.Context) ([]store.TrainingSession, error)
	TrainingFileActivities(ctx context.Context) ([]store.TrainingFileActivity, error)
	IncrementAppCount(ctx context.Context, appID, projectID int64, delta int64) error
	IncrementTokenCount(ctx context.Context, token string, projectID int64, delta int64) error
	IncrementTimeCount(ctx context.Context, hour, weekday int, projectID int64, delta int64) error

	SetModelState(ctx context.Context, key, value string) error
	GetModelState(ctx context.Context, key string) (string, bool, error)
	LoadModelStateMap(ctx context.Context) (map[string]string, error)

	UnassignedSessionsFiltered(ctx context.Context, from, to string, minDurationSecs int64, limit int) ([]models.Session, error)
	PutSuggestion(ctx context.Context, sug models.AssignmentSuggestion) (models.AssignmentSuggestion, error)
	SetSuggestionStatus(ctx context.Context, id int64, status models.SuggestionStatus) error
	UpdateSessionProjectIfUnassigned(ctx context.Context, sessionID, projectID int64) (bool, error)
	RevertSessionProjectIfStillAssigned(ctx context.Context, sessionID, fromProjectID int64) (bool, error)
	PropagateProjectToFileActivitiesInWindow(ctx context.Context, appID int64, start, end time.Time, projectID *int64) error

	RecordFeedback(ctx context.Context, f models.AssignmentFeedback) error
	StartAutoSafeRun(ctx context.Context, mode string, minConfidenceAuto float64, minEvidenceAuto int) (int64, error)
	FinishAutoSafeRun(ctx context.Context, runID int64, scanned, suggested, assigned int, runErr error) error
	RecordAutoSafeItem(ctx context.Context, item models.AutoSafeRunItem) error
	AutoSafeRunItems(ctx context.Context, runID int64) ([]models.AutoSafeRunItem, error)
	MarkAutoSafeRunRolledBack(ctx context.Context, runID int64, reverted, skipped int) error
	LatestAutoSafeRun(ctx context.Context) (models.AutoSafeRun, error)

	AppSingleProjectHistory(ctx context.Context) (map[int64]store.AppHistoryEntry, error)
	UnassignedSessionsForApp(ctx context.Context, appID int64) ([]models.Session, error)
	AssignSessionToProject(ctx context.Context, sessionID int64, projectID *int64) error
	GetProject(ctx context.Context, id int64) (models.Project, error)
	GetSession(ctx context.Context, id int64) (models.Session, error)
}

// DefaultMinHistoryForDeterministicRule is apply_deterministic_assignment's
// minimum session count before an app's single-project history is trusted
// (spec.md §4.7).
const DefaultMinHistoryForDeterministicRule = 5

// Thresholds bundles the classifier's tunable gates (config.Config's
// classifier_* fields).
type Thresholds struct {
	MinConfidenceSuggest float64
	MinConfidenceAuto    float64
	MinEvidenceAuto      int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidenceSuggest: DefaultMinConfidenceSuggest,
		MinConfidenceAuto:    DefaultMinConfidenceAuto,
		MinEvidenceAuto:      DefaultMinEvidenceAuto,
	}
}

// Classifier scores sessions against the evidence tables and drives
// training, auto-safe runs, rollback, and the deterministic layer.
type Classifier struct {
	store      Store
	thresholds Thresholds
	modelVer   string
}

func New(s Store, thresholds Thresholds, modelVersion string) *Classifier {
	return &Classifier{store: s, thresholds: thresholds, modelVer: modelVersion}
}

var _ Store = (*store.Store)(nil)

// Suggestion is one scored candidate for a session.
type Suggestion struct {
	ProjectID  int64
	Confidence float64
	Margin     float64
	Evidence   int
}

// Score computes the best-candidate suggestion for sess, or ok=false if
// no signal class produced any evidence at all.
func (c *Classifier) Score(ctx context.Context, sess models.Session) (Suggestion, bool, error) {
	sc, err := BuildContext(ctx, c.store, sess)
	if err != nil {
		return Suggestion{}, false, err
	}

	appCounts, err := c.store.AppCounts(ctx, sc.AppID)
	if err != nil {
		return Suggestion{}, false, err
	}
	timeCounts, err := c.store.TimeCounts(ctx, sc.Hour, sc.Weekday)
	if err != nil {
		return Suggestion{}, false, err
	}

	tokenHits := map[int64]tokenAccumulator{}
	tokenTotal := len(sc.Tokens)
	for start := 0; start < len(sc.Tokens); start += tokenQueryChunkSize {
		end := start + tokenQueryChunkSize
		if end > len(sc.Tokens) {
			end = len(sc.Tokens)
		}
		for _, tok := range sc.Tokens[start:end] {
			counts, err := c.store.TokenCounts(ctx, tok)
			if err != nil {
				return Suggestion{}, false, err
			}
			for pid, cnt := range counts {
				acc := tokenHits[pid]
				acc.matches++
				acc.sum += cnt
				tokenHits[pid] = acc
			}
		}
	}

	scores := scoreProjects(appCounts, timeCounts, tokenHits, tokenTotal)
	bestID, best, second, evidence, ok := topTwo(scores)
	if !ok {
		return Suggestion{}, false, nil
	}

	conf, margin := confidence(best, second, evidence)
	return Suggestion{ProjectID: bestID, Confidence: conf, Margin: margin, Evidence: evidence}, true, nil
}

// AcceptForSuggest reports whether s clears the suggest-mode gate.
func (c *Classifier) AcceptForSuggest(s Suggestion) bool {
	return s.Confidence >= c.thresholds.MinConfidenceSuggest
}

// AcceptForAutoSafe reports whether s clears all three auto-safe gates.
func (c *Classifier) AcceptForAutoSafe(s Suggestion) bool {
	return s.Confidence >= c.thresholds.MinConfidenceAuto &&
		s.Evidence >= c.thresholds.MinEvidenceAuto &&
		s.Margin >= AutoSafeMinMargin
}

// Train rebuilds the evidence tables from scratch (spec.md §4.7's
// train(force)). The clear and the rebuild are separate Store calls, not
// one transaction, so a failure part way leaves the tables partly rebuilt.
func (c *Classifier) Train(ctx context.Context, force bool) error {
	state, err := c.store.LoadModelStateMap(ctx)
	if err != nil {
		return err
	}
	if state["is_training"] == "1" {
		return terrors.New(terrors.KindConcurrency, "training already in progress")
	}

	if !force {
		var sinceTrain int
		if v, ok := state["feedback_since_train"]; ok {
			sinceTrain, _ = strconv.Atoi(v)
		}
		if sinceTrain < trainCooldownFeedbackThreshold {
			return nil
		}
	}

	if err := c.store.SetModelState(ctx, "is_training", "1"); err != nil {
		return err
	}
	trainErr := c.train(ctx)
	_ = c.store.SetModelState(ctx, "is_training", "0")

	if trainErr != nil {
		_ = c.store.SetModelState(ctx, "train_error_last", trainErr.Error())
		return trainErr
	}
	_ = c.store.SetModelState(ctx, "train_error_last", "")
	_ = c.store.SetModelState(ctx, "feedback_since_train", "0")
	_ = c.store.SetModelState(ctx, "cooldown_until", "")
	_ = c.store.SetModelState(ctx, "last_train_at", time.Now().UTC().Format(time.RFC3339))
	return nil
}

func (c *Classifier) train(ctx context.Context) error {
	start := time.Now()
	if err := c.store.ClearModelCounts(ctx); err != nil {
		return err
	}

	sessions, err := c.store.TrainingSessions(ctx)
	if err != nil {
		return err
	}
	var samples int
	for _, s := range sessions {
		if err := c.store.IncrementAppCount(ctx, s.AppID, s.ProjectID, 1); err != nil {
			return err
		}
		local := s.StartTime.Local()
		if err := c.store.IncrementTimeCount(ctx, local.Hour(), int(local.Weekday()), s.ProjectID, 1); err != nil {
			return err
		}
		samples++
	}

	activities, err := c.store.TrainingFileActivities(ctx)
	if err != nil {
		return err
	}
	for _, fa := range activities {
		for _, tok := range Tokenize(fa.FileName) {
			if err := c.store.IncrementTokenCount(ctx, tok, fa.ProjectID, 1); err != nil {
				return err
			}
		}
		samples++
	}

	_ = c.store.SetModelState(ctx, "last_train_ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	_ = c.store.SetModelState(ctx, "last_train_samples", strconv.Itoa(samples))
	return nil
}
