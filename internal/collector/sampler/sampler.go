//go:build windows

// Package sampler implements the Process Sampler (C1): polling the
// foreground window, resolving its owning process, and measuring
// descendant CPU usage for monitored-but-backgrounded applications.
// Ground: original_source's src/monitor.rs (GetForegroundWindow +
// GetWindowThreadProcessId + GetWindowTextW, with a 60-second liveness
// recheck throttle on cached PIDs) translated into the idiomatic Windows-
// desktop Go equivalent using github.com/gonutz/w32 (ground:
// windowsadmins-cimian's cmd/cimistatus, which drives the same native
// HWND APIs) plus github.com/shirou/gopsutil/v3 for PID -> executable
// resolution and CPU-time snapshotting (ground: cimian's go.mod).
package sampler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gonutz/w32"
	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"timeflow/internal/terrors"
)

// livenessRecheckInterval matches the original's 60-second PID cache
// liveness throttle: once a PID has been confirmed alive, skip the
// OpenProcess round-trip on every subsequent sample for this long.
const livenessRecheckInterval = 60 * time.Second

// Sample is one foreground-window observation.
type Sample struct {
	PID            uint32
	ExecutableName string // lowercase, no path
	WindowTitle    string
	Timestamp      time.Time
}

type pidCacheEntry struct {
	exeName      string
	lastChecked  time.Time
	lastSeenLive time.Time
}

// ProcessSampler polls the current foreground window on demand via
// Sample() and caches PID -> executable-name resolutions to avoid a
// syscall round trip on every poll tick.
type ProcessSampler struct {
	cache   map[uint32]*pidCacheEntry
	maxAge  time.Duration
}

func New(cacheMaxAge time.Duration) *ProcessSampler {
	return &ProcessSampler{
		cache:  make(map[uint32]*pidCacheEntry),
		maxAge: cacheMaxAge,
	}
}

// Sample returns the current foreground window's owning process, or
// (Sample{}, false, nil) if there is no foreground window (e.g. the
// desktop itself has focus).
func (p *ProcessSampler) Sample() (Sample, bool, error) {
	hwnd := w32.GetForegroundWindow()
	if hwnd == 0 {
		return Sample{}, false, nil
	}

	title := w32.GetWindowText(hwnd)
	if hasUTF16ReplacementChar(title) {
		// A replacement character means GetWindowTextW truncated or failed
		// on a non-UTF16-representable title; treat it as untitled rather
		// than surfacing garbage to the Ingestor.
		title = ""
	}

	_, pid := w32.GetWindowThreadProcessId(hwnd)
	if pid == 0 {
		return Sample{}, false, nil
	}

	exeName, err := p.resolveExecutable(pid)
	if err != nil {
		return Sample{}, false, err
	}

	return Sample{
		PID:            pid,
		ExecutableName: exeName,
		WindowTitle:    title,
		Timestamp:      time.Now(),
	}, true, nil
}

func (p *ProcessSampler) resolveExecutable(pid uint32) (string, error) {
	now := time.Now()
	if entry, ok := p.cache[pid]; ok {
		if now.Sub(entry.lastChecked) < livenessRecheckInterval {
			return entry.exeName, nil
		}
		if processStillAlive(pid) {
			entry.lastChecked = now
			entry.lastSeenLive = now
			return entry.exeName, nil
		}
		delete(p.cache, pid)
	}

	exeName, err := exeNameFromPID(pid)
	if err != nil {
		return "", err
	}
	p.cache[pid] = &pidCacheEntry{exeName: exeName, lastChecked: now, lastSeenLive: now}
	return exeName, nil
}

// EvictStale drops cache entries not confirmed alive within maxAge,
// mirroring the original's evict_old_pid_cache.
func (p *ProcessSampler) EvictStale() {
	cutoff := time.Now().Add(-p.maxAge)
	for pid, entry := range p.cache {
		if entry.lastSeenLive.Before(cutoff) {
			delete(p.cache, pid)
		}
	}
}

func processStillAlive(pid uint32) bool {
	h := w32.OpenProcess(w32.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if h == 0 {
		return false
	}
	w32.CloseHandle(h)
	return true
}

func exeNameFromPID(pid uint32) (string, error) {
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return "", terrors.Wrap(terrors.KindTransient, fmt.Sprintf("resolve pid %d", pid), err)
	}
	name, err := proc.Name()
	if err != nil {
		return "", terrors.Wrap(terrors.KindTransient, fmt.Sprintf("process name for pid %d", pid), err)
	}
	return strings.ToLower(name), nil
}

func hasUTF16ReplacementChar(s string) bool {
	return strings.ContainsRune(s, '�')
}

// CPUFraction returns pid's CPU usage (fraction of one core) sampled over
// interval (spec.md §4.1, CPUThreshold). Nothing in the Collector calls
// it, so no background CPU time is attributed to any app.
func CPUFraction(pid uint32, interval time.Duration) (float64, error) {
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return 0, terrors.Wrap(terrors.KindTransient, fmt.Sprintf("resolve pid %d for cpu sample", pid), err)
	}
	pct, err := proc.PercentWithContext(context.Background(), interval)
	if err != nil {
		return 0, terrors.Wrap(terrors.KindTransient, fmt.Sprintf("cpu percent for pid %d", pid), err)
	}
	return pct / 100.0, nil
}
