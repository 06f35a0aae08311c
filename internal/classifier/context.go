package classifier

import (
	"context"

	"timeflow/internal/models"
)

// SessionContext is the feature set extracted for one session: its app,
// the hour-of-day and weekday-from-Sunday of its start, and the distinct
// tokens pulled from every file-activity name on (app, date) — spec.md
// §4.7's "context extraction".
type SessionContext struct {
	AppID   int64
	Hour    int
	Weekday int // 0 = Sunday
	Tokens  []string
}

// BuildContext extracts a SessionContext for sess, pulling file-activity
// names for (sess.AppID, sess.Date) and tokenizing each.
func BuildContext(ctx context.Context, store Store, sess models.Session) (SessionContext, error) {
	activities, err := store.FileActivitiesForApp(ctx, sess.AppID, sess.Date)
	if err != nil {
		return SessionContext{}, err
	}

	seen := map[string]bool{}
	var tokens []string
	for _, fa := range activities {
		for _, tok := range Tokenize(fa.FileName) {
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
	}

	local := sess.StartTime.Local()
	return SessionContext{
		AppID:   sess.AppID,
		Hour:    local.Hour(),
		Weekday: int(local.Weekday()),
		Tokens:  tokens,
	}, nil
}
