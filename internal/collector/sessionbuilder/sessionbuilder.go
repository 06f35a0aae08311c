// Package sessionbuilder implements the Session Builder (C2): it drives
// the poll loop, coalesces consecutive foreground samples of the same
// executable into sessions, extracts a file-name hint from the window
// title, and periodically flushes a DailyFile (C3) to disk. Ground: the
// teacher's ingester.Service tick loop (select on ctx.Done() vs. a default
// processing branch, internal/ingester/service.go) generalized from
// "poll the chain" to "poll the foreground window"; the periodic
// save and cache-evict subtasks are scheduled with
// golang.org/x/time/rate.Limiter the same way internal/api/ratelimit.go
// uses it for per-IP throttling, here bounding how often each subtask may
// fire even if the main tick drifts under system clock changes. The
// configuration is read once, at New; ConfigReloadSecs is not used and
// the builder does not reload its settings while running.
package sessionbuilder

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"timeflow/internal/collector/sampler"
	"timeflow/internal/config"
	"timeflow/internal/dailyfile"
	"timeflow/internal/models"
)

// Sampler is the subset of sampler.ProcessSampler the builder depends on,
// so tests can substitute a fake without a Windows build.
type Sampler interface {
	Sample() (sampler.Sample, bool, error)
	EvictStale()
}

// openSession is an in-progress, not-yet-flushed session for one
// executable.
type openSession struct {
	exeName   string
	start     time.Time
	lastSeen  time.Time
	fileHints map[string]*models.DailyFileEntry
}

// Builder accumulates foreground samples into coalesced sessions and
// periodically flushes them to the daily file.
type Builder struct {
	cfg       config.Config
	dataDir   string
	sampler   Sampler
	open      map[string]*openSession // keyed by executable name
	day       models.DailyFile
	saveGate  *rate.Limiter
	evictGate *rate.Limiter
	lastSave  time.Time
}

func New(cfg config.Config, sampler Sampler) *Builder {
	date := currentDate()
	return &Builder{
		cfg:     cfg,
		dataDir: cfg.DataDir,
		sampler: sampler,
		open:    make(map[string]*openSession),
		day:     dailyfile.NewEmpty(date),
		// Burst of 1 turns each limiter into "at most once per period",
		// which is all a periodic subtask needs.
		saveGate:  rate.NewLimiter(rate.Every(time.Duration(cfg.SaveSecs)*time.Second), 1),
		evictGate: rate.NewLimiter(rate.Every(time.Duration(cfg.CacheEvictSecs)*time.Second), 1),
	}
}

// Run polls at cfg.PollSecs until ctx is cancelled, flushing the daily
// file on exit so no in-flight session is lost.
func (b *Builder) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(b.cfg.PollSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAllOpen(time.Now())
			return b.flush()
		case <-ticker.C:
			b.tick(time.Now())
		}
	}
}

func (b *Builder) tick(now time.Time) {
	if date := dateOf(now); date != b.day.Date {
		b.closeAllOpen(now)
		if err := b.flush(); err != nil {
			log.Printf("[sessionbuilder] flush on rollover: %v", err)
		}
		b.day = dailyfile.NewEmpty(date)
	}

	s, ok, err := b.sampler.Sample()
	if err != nil {
		log.Printf("[sessionbuilder] sample: %v", err)
	} else if ok {
		b.observe(s.ExecutableName, s.WindowTitle, now)
	}

	b.closeStale(now)

	if b.saveGate.AllowN(now, 1) {
		if err := b.flush(); err != nil {
			log.Printf("[sessionbuilder] periodic save: %v", err)
		}
	}
	if b.evictGate.AllowN(now, 1) {
		b.sampler.EvictStale()
	}
}

// observe records one foreground sample: extends the open session for
// exeName, or starts a new one if the gap since it was last seen exceeds
// SessionGapSecs (spec.md §4.2).
func (b *Builder) observe(exeName, title string, now time.Time) {
	if s, ok := b.open[exeName]; ok {
		if now.Sub(s.lastSeen) > time.Duration(b.cfg.SessionGapSecs)*time.Second {
			b.closeSession(exeName, s.lastSeen)
			b.open[exeName] = &openSession{exeName: exeName, start: now, lastSeen: now, fileHints: map[string]*models.DailyFileEntry{}}
		} else {
			s.lastSeen = now
		}
	} else {
		b.open[exeName] = &openSession{exeName: exeName, start: now, lastSeen: now, fileHints: map[string]*models.DailyFileEntry{}}
	}

	hint := ExtractFileFromTitle(title)
	if hint == "" {
		hint = models.BackgroundFileHint
	}
	s := b.open[exeName]
	if entry, ok := s.fileHints[hint]; ok {
		entry.LastSeen = now
		entry.TotalSeconds += uint64(b.cfg.PollSecs)
	} else {
		s.fileHints[hint] = &models.DailyFileEntry{Name: hint, TotalSeconds: uint64(b.cfg.PollSecs), FirstSeen: now, LastSeen: now}
	}
}

// closeStale closes any open session not observed within SessionGapSecs,
// so a user switching away from an app still yields a bounded session
// rather than one that silently grows until the next poll.
func (b *Builder) closeStale(now time.Time) {
	gap := time.Duration(b.cfg.SessionGapSecs) * time.Second
	for exeName, s := range b.open {
		if now.Sub(s.lastSeen) > gap {
			b.closeSession(exeName, s.lastSeen)
		}
	}
}

func (b *Builder) closeAllOpen(now time.Time) {
	for exeName := range b.open {
		b.closeSession(exeName, now)
	}
}

func (b *Builder) closeSession(exeName string, end time.Time) {
	s, ok := b.open[exeName]
	if !ok {
		return
	}
	delete(b.open, exeName)

	duration := uint64(end.Sub(s.start).Seconds())
	if duration == 0 && b.cfg.PollSecs > 0 {
		// A session seen on a single poll still covers that poll's
		// interval, the same amount its file hint was credited with.
		duration = uint64(b.cfg.PollSecs)
		end = s.start.Add(time.Duration(b.cfg.PollSecs) * time.Second)
	}
	if duration == 0 {
		return
	}

	app := b.day.Apps[exeName]
	app.DisplayName = exeName
	app.TotalSeconds += duration
	app.Sessions = append(app.Sessions, models.DailyFileSession{
		Start: s.start, End: end, DurationSeconds: duration,
	})
	for _, entry := range s.fileHints {
		app.Files = append(app.Files, *entry)
	}
	b.day.Apps[exeName] = app
}

func (b *Builder) flush() error {
	snapshot := b.day
	dailyfile.Summarize(&snapshot)
	b.lastSave = time.Now()
	return dailyfile.Write(b.dataDir, snapshot)
}

// titlePattern captures the leading segment of a title, up to the first
// "-" or "—" (e.g. "main.go" from "main.go - myapp - Visual Studio
// Code"), the file-first layout common to editor/IDE window titles. It is
// intentionally permissive: a miss just falls back to the "(background)"
// hint rather than a hard error.
var titlePattern = regexp.MustCompile(`^([^-—]+?)\s*[-—]`)

// ExtractFileFromTitle pulls a plausible file name out of a foreground
// window's title bar text (spec.md §4.1's file-hint heuristic).
func ExtractFileFromTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	m := titlePattern.FindStringSubmatch(title)
	if len(m) == 2 {
		candidate := strings.TrimSpace(m[1])
		if looksLikeFileName(candidate) {
			return candidate
		}
	}
	if looksLikeFileName(title) {
		return title
	}
	return ""
}

func looksLikeFileName(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	return strings.Contains(s, ".") && !strings.ContainsAny(s, "<>:\"|?*")
}

func currentDate() string { return dateOf(time.Now()) }
func dateOf(t time.Time) string { return t.Local().Format("2006-01-02") }
