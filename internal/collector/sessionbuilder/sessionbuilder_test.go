package sessionbuilder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timeflow/internal/collector/sampler"
	"timeflow/internal/config"
	"timeflow/internal/dailyfile"
)

// fakeSampler replays a fixed queue of samples, one per call to Sample.
type fakeSampler struct {
	queue []sampler.Sample
	idx   int
}

func (f *fakeSampler) Sample() (sampler.Sample, bool, error) {
	if f.idx >= len(f.queue) {
		return sampler.Sample{}, false, nil
	}
	s := f.queue[f.idx]
	f.idx++
	return s, true, nil
}

func (f *fakeSampler) EvictStale() {}

func testConfig(dataDir string) config.Config {
	cfg := config.Defaults()
	cfg.DataDir = dataDir
	cfg.PollSecs = 1
	cfg.SessionGapSecs = 2
	cfg.SaveSecs = 1000 // disabled for these tests; we flush manually
	cfg.CacheEvictSecs = 1000
	return cfg
}

func TestObserve_CoalescesWithinGap(t *testing.T) {
	dir := t.TempDir()
	b := New(testConfig(dir), &fakeSampler{})

	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	b.observe("code.exe", "main.go - myapp", base)
	b.observe("code.exe", "main.go - myapp", base.Add(1*time.Second))
	b.closeStale(base.Add(1 * time.Second))

	require.Len(t, b.open, 1, "session should still be open within the gap")
}

func TestObserve_SplitsAfterGap(t *testing.T) {
	dir := t.TempDir()
	b := New(testConfig(dir), &fakeSampler{})

	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	b.observe("code.exe", "main.go - myapp", base)
	b.closeStale(base.Add(5 * time.Second))
	require.Empty(t, b.open)
	require.Contains(t, b.day.Apps, "code.exe")

	b.observe("code.exe", "main.go - myapp", base.Add(10*time.Second))
	require.Len(t, b.open, 1, "a new session should reopen after the gap")
}

func TestRun_FlushesOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	fs := &fakeSampler{queue: []sampler.Sample{
		{ExecutableName: "code.exe", WindowTitle: "main.go - myapp"},
	}}
	b := New(cfg, fs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	df, err := dailyfile.Read(dir, currentDate())
	require.NoError(t, err)
	require.NotNil(t, df.Apps)
}

func TestExtractFileFromTitle(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"main.go - myapp - Visual Studio Code", "main.go"},
		{"report.docx - Word", "report.docx"},
		{"Untitled - Notepad", ""},
		{"", ""},
	}
	for _, c := range cases {
		got := ExtractFileFromTitle(c.title)
		require.Equal(t, c.want, got, "title %q", c.title)
	}
}
