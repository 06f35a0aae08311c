//go:build !windows

package sampler

import (
	"time"

	"timeflow/internal/terrors"
)

// Sample is one foreground-window observation.
type Sample struct {
	PID            uint32
	ExecutableName string
	WindowTitle    string
	Timestamp      time.Time
}

// ProcessSampler on non-Windows platforms is a stub: TimeFlow's Collector
// is a Windows-desktop tool (foreground-window sampling has no portable
// equivalent), so this build only exists to keep `go vet`/editors happy
// when working on the rest of the module from a non-Windows machine.
type ProcessSampler struct{}

func New(cacheMaxAge time.Duration) *ProcessSampler { return &ProcessSampler{} }

func (p *ProcessSampler) Sample() (Sample, bool, error) {
	return Sample{}, false, terrors.New(terrors.KindIO, "foreground window sampling requires windows")
}

func (p *ProcessSampler) EvictStale() {}

func CPUFraction(pid uint32, interval time.Duration) (float64, error) {
	return 0, terrors.New(terrors.KindIO, "cpu sampling requires windows")
}
