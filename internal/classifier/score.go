// Package classifier implements the Assignment Classifier (C7): an
// incremental, Naive-Bayes-flavored evidence scorer over three signal
// classes (app affinity, time-of-day affinity, file-name token overlap),
// plus the training, auto-safe run, rollback, and deterministic-rule
// layers built on top of it. Ground: the teacher's repository query
// shape (aggregate counters read back and folded in Go, postgres.go).
// Train() and RunAutoSafe() are sequences of separate Store calls with no
// transaction spanning the run, so a failure part way leaves the writes
// made so far in place. The scoring constants themselves are not tunable
// art: they are copied verbatim from the original Rust implementation's
// assignment_model.rs, where they were themselves fixed constants.
package classifier

import "math"

// Weight coefficients for the three signal classes (spec.md §4.7).
const (
	weightApp   = 0.50
	weightTime  = 0.15
	weightToken = 0.30
)

// Default thresholds, overridable via config.Config.
const (
	DefaultMinConfidenceSuggest = 0.60
	DefaultMinConfidenceAuto    = 0.85
	DefaultMinEvidenceAuto      = 3
	AutoSafeMinMargin           = 0.20
)

// tokenQueryChunkSize is the chunk size Score walks a session's distinct
// tokens in (spec.md §4.7's "chunked query of <= 200 tokens"); every
// chunk is queried, so no token is left out of the score.
const tokenQueryChunkSize = 200

// projectScore accumulates the weighted evidence for one candidate
// project across all three signal classes.
type projectScore struct {
	appTerm      float64
	timeTerm     float64
	tokenTerm    float64
	signalClasses int
}

func (p projectScore) total() float64 {
	return p.appTerm + p.timeTerm + p.tokenTerm
}

// scoreProjects implements spec.md §4.7's scoring formula:
//
//	score(project) = 0.50*ln(1+app_count) + 0.15*ln(1+time_count)
//	               + 0.30*(matches/token_total)*ln(1+sum/matches)
//
// appCounts and timeCounts are project -> raw evidence count. tokenHits
// is project -> (matches, sum) accumulated across every token extracted
// from the session's context.
func scoreProjects(appCounts, timeCounts map[int64]int64, tokenHits map[int64]tokenAccumulator, tokenTotal int) map[int64]projectScore {
	scores := map[int64]projectScore{}

	ensure := func(pid int64) projectScore {
		s, ok := scores[pid]
		if !ok {
			s = projectScore{}
		}
		return s
	}

	for pid, count := range appCounts {
		s := ensure(pid)
		s.appTerm = weightApp * math.Log(1+float64(count))
		if count > 0 {
			s.signalClasses++
		}
		scores[pid] = s
	}

	for pid, count := range timeCounts {
		s := ensure(pid)
		s.timeTerm = weightTime * math.Log(1+float64(count))
		if count > 0 {
			s.signalClasses++
		}
		scores[pid] = s
	}

	if tokenTotal > 0 {
		for pid, acc := range tokenHits {
			if acc.matches == 0 {
				continue
			}
			s := ensure(pid)
			frac := float64(acc.matches) / float64(tokenTotal)
			s.tokenTerm = weightToken * frac * math.Log(1+float64(acc.sum)/float64(acc.matches))
			s.signalClasses++
			scores[pid] = s
		}
	}

	return scores
}

// tokenAccumulator tracks, for one candidate project, how many of the
// session's tokens matched it (matches) and the sum of their evidence
// counts (sum).
type tokenAccumulator struct {
	matches int
	sum     int64
}

// sigmoid is the standard logistic function used to turn an unbounded
// score margin into a (0,1) confidence factor.
func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// topTwo returns the best and second-best score among candidates, plus
// the winning project id. ok is false if there are no candidates.
func topTwo(scores map[int64]projectScore) (bestID int64, best, second float64, evidence int, ok bool) {
	type entry struct {
		id    int64
		total float64
		cls   int
	}
	var entries []entry
	for pid, s := range scores {
		entries = append(entries, entry{id: pid, total: s.total(), cls: s.signalClasses})
	}
	if len(entries) == 0 {
		return 0, 0, 0, 0, false
	}

	// Deterministic tie-break: highest score, then lowest project id.
	bestIdx := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].total > entries[bestIdx].total ||
			(entries[i].total == entries[bestIdx].total && entries[i].id < entries[bestIdx].id) {
			bestIdx = i
		}
	}
	bestID = entries[bestIdx].id
	best = entries[bestIdx].total
	evidence = entries[bestIdx].cls

	second = math.Inf(-1)
	for i, e := range entries {
		if i == bestIdx {
			continue
		}
		if e.total > second {
			second = e.total
		}
	}
	if math.IsInf(second, -1) {
		second = 0
	}

	return bestID, best, second, evidence, true
}

// confidence implements spec.md §4.7: margin = max(0, best - second),
// confidence = sigmoid(margin) * min(1, evidence/3).
func confidence(best, second float64, evidence int) (conf, margin float64) {
	margin = best - second
	if margin < 0 {
		margin = 0
	}
	evidenceFactor := math.Min(1, float64(evidence)/3.0)
	return sigmoid(margin) * evidenceFactor, margin
}
