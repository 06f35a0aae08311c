// Package resolver implements the Project Resolver (C5): turning a raw
// window-title-derived file hint into a project assignment, detecting
// new projects from repeated file activity, and freezing projects that
// have gone quiet. Ground: the teacher's webhooks matcher Registry
// (internal/webhooks/matcher, now retired) paired an EventType with a
// condition-evaluator function looked up from a map; here the "event
// type" is a file hint and the "conditions" are the ordered candidate-name
// heuristics of spec.md §4.5, evaluated in a fixed priority chain instead
// of a registry lookup since there is exactly one resolution rule, not an
// open set of pluggable matchers.
package resolver

import (
	"context"
	"crypto/sha1"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"timeflow/internal/models"
	"timeflow/internal/store"
)

// Store is the subset of *store.Store the Resolver depends on.
type Store interface {
	FindProjectByName(ctx context.Context, name string) (models.Project, bool, error)
	CreateProject(ctx context.Context, name, color string) (models.Project, error)
	ActiveProjects(ctx context.Context) ([]models.Project, error)
	ListApplications(ctx context.Context) ([]models.Application, error)
	ProjectFolders(ctx context.Context) ([]string, error)
	IsProjectNameBlacklisted(ctx context.Context, name string) (bool, error)
	BlacklistProjectName(ctx context.Context, name string) error
	FileNameOccurrences(ctx context.Context, from, to string) (map[string]int, error)
	SetProjectExcluded(ctx context.Context, id int64, excluded bool) error
	FreezeProject(ctx context.Context, id int64, reason string) error
	UnfreezeProject(ctx context.Context, id int64) error
	LastActivityForProject(ctx context.Context, projectID int64) (time.Time, bool, error)
}

const backgroundHint = "(background)"

// Resolver resolves file hints to projects and runs the two periodic
// housekeeping sweeps (auto-create, auto-freeze) described in spec.md
// §4.5.
type Resolver struct {
	store Store
}

func New(s Store) *Resolver {
	return &Resolver{store: s}
}

var _ Store = (*store.Store)(nil)

// EnsureAppProjectFromFileHint implements
// ensure_app_project_from_file_hint: it builds an ordered list of
// candidate project names from fileName and folderRoots, and returns the
// first one that matches an active project case-insensitively.
func (r *Resolver) EnsureAppProjectFromFileHint(ctx context.Context, fileName string, folderRoots []string) (*int64, error) {
	if fileName == backgroundHint {
		return nil, nil
	}

	for _, candidate := range CandidateNames(fileName, folderRoots) {
		proj, ok, err := r.store.FindProjectByName(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if ok && proj.Active() {
			id := proj.ID
			return &id, nil
		}
	}
	return nil, nil
}

// CandidateNames builds the ordered candidate list from spec.md §4.5
// step 2: raw title, path-prefix inference, last " - " segment, every
// " - " segment, every " | " segment.
func CandidateNames(fileName string, folderRoots []string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}

	add(fileName)

	for _, root := range folderRootsLongestFirst(folderRoots) {
		if rest, ok := stripFolderRoot(fileName, root); ok {
			add(firstPathComponent(rest))
		}
	}

	if segs := strings.Split(fileName, " - "); len(segs) > 1 {
		add(segs[len(segs)-1])
		for _, s := range segs {
			add(s)
		}
	}

	if segs := strings.Split(fileName, " | "); len(segs) > 1 {
		for _, s := range segs {
			add(s)
		}
	}

	return out
}

// folderRootsLongestFirst sorts roots so the most specific (longest)
// prefix is tried before a shorter parent, matching store.ProjectFolders'
// own ordering.
func folderRootsLongestFirst(roots []string) []string {
	out := make([]string, len(roots))
	copy(out, roots)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func stripFolderRoot(path, root string) (string, bool) {
	norm := filepath.ToSlash(path)
	root = filepath.ToSlash(root)
	root = strings.TrimSuffix(root, "/")
	if !strings.HasPrefix(strings.ToLower(norm), strings.ToLower(root)+"/") {
		return "", false
	}
	return strings.TrimPrefix(norm, root+"/"), true
}

func firstPathComponent(rest string) string {
	parts := strings.SplitN(rest, "/", 2)
	return parts[0]
}

// looksLikeFileName reports whether name contains an extension with no
// path separator, the exclusion rule from auto_create_projects_from_detection.
func looksLikeFileName(name string) bool {
	return strings.Contains(name, ".") && !strings.ContainsAny(name, "/\\")
}

// DeterministicColor hashes name into a stable HSL color string, grounded
// on the original's deterministic-hash-to-HSL approach for newly detected
// projects (spec.md §4.5).
func DeterministicColor(name string) string {
	sum := sha1.Sum([]byte(strings.ToLower(name)))
	hue := int(sum[0]) * 360 / 256
	return fmt.Sprintf("hsl(%d, 65%%, 50%%)", hue)
}

// AutoCreateProjectsFromDetection implements
// auto_create_projects_from_detection: any file_name occurring on at
// least minOccurrences distinct dates within [from, to] becomes a
// candidate new project, unless it looks like a bare file name, collides
// with an application's display name, or is blacklisted.
func (r *Resolver) AutoCreateProjectsFromDetection(ctx context.Context, from, to string, minOccurrences int) ([]models.Project, error) {
	occurrences, err := r.store.FileNameOccurrences(ctx, from, to)
	if err != nil {
		return nil, err
	}

	apps, err := r.store.ListApplications(ctx)
	if err != nil {
		return nil, err
	}
	displayNames := make(map[string]bool, len(apps))
	for _, a := range apps {
		displayNames[strings.ToLower(a.DisplayName)] = true
	}

	folderRoots, err := r.store.ProjectFolders(ctx)
	if err != nil {
		return nil, err
	}

	var created []models.Project
	for fileName, count := range occurrences {
		if count < minOccurrences {
			continue
		}
		candidates := CandidateNames(fileName, folderRoots)
		if len(candidates) == 0 {
			continue
		}
		name := candidates[0]
		if looksLikeFileName(name) {
			continue
		}
		if displayNames[strings.ToLower(name)] {
			continue
		}
		blacklisted, err := r.store.IsProjectNameBlacklisted(ctx, name)
		if err != nil {
			return nil, err
		}
		if blacklisted {
			continue
		}
		if _, exists, err := r.store.FindProjectByName(ctx, name); err != nil {
			return nil, err
		} else if exists {
			continue
		}

		proj, err := r.store.CreateProject(ctx, name, DeterministicColor(name))
		if err != nil {
			continue // lost a race with a concurrent create or hit a blacklist trigger
		}
		created = append(created, proj)
	}
	return created, nil
}

// ExcludeProject marks a project excluded and blacklists its name so the
// store-level trigger stops a bare re-create (spec.md §4.5's "excluding a
// project inserts its normalized name into the blacklist").
func (r *Resolver) ExcludeProject(ctx context.Context, id int64, name string) error {
	if err := r.store.SetProjectExcluded(ctx, id, true); err != nil {
		return err
	}
	return r.store.BlacklistProjectName(ctx, name)
}

// RestoreProject un-excludes a project. The blacklist removal is handled
// by the caller via store.Store directly (there is no
// UnblacklistProjectName on the Resolver's Store interface because
// restoring requires knowing the project's *current* name, which the
// caller already has).
func (r *Resolver) RestoreProject(ctx context.Context, id int64) error {
	return r.store.SetProjectExcluded(ctx, id, false)
}

// AutoFreezeProjects implements auto_freeze_projects: any active project
// with no activity within thresholdDays gets frozen; any frozen project
// that has regained activity gets unfrozen.
func (r *Resolver) AutoFreezeProjects(ctx context.Context, thresholdDays int) error {
	projects, err := r.store.ActiveProjects(ctx)
	if err != nil {
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -thresholdDays)

	for _, p := range projects {
		lastActivity, hasActivity, err := r.store.LastActivityForProject(ctx, p.ID)
		if err != nil {
			return err
		}

		stale := !hasActivity || lastActivity.Before(cutoff)
		switch {
		case stale && p.FrozenAt == nil:
			if err := r.store.FreezeProject(ctx, p.ID, fmt.Sprintf("no activity since %s", formatDate(lastActivity, hasActivity))); err != nil {
				return err
			}
		case !stale && p.FrozenAt != nil:
			if err := r.store.UnfreezeProject(ctx, p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatDate(t time.Time, ok bool) string {
	if !ok {
		return "ever"
	}
	return t.Format("2006-01-02")
}
