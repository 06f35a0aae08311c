// Command timeflow-collector runs the background sampler and session
// builder (C1/C2/C3) described in spec.md §4.1-4.3: it never touches the
// SQLite store, writing only daily JSON files for the Dashboard to
// import later. Ground: the teacher's top-level main.go (env-driven
// config, signal-based graceful shutdown, single WaitGroup) generalized
// from a multi-worker chain indexer down to the Collector's single
// poll loop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timeflow/internal/collector/sampler"
	"timeflow/internal/collector/sessionbuilder"
	"timeflow/internal/config"
	"timeflow/internal/singleinstance"
	"timeflow/internal/versioncheck"
)

// CollectorVersion is set at build time via -ldflags.
var CollectorVersion = "0.1.0"

func main() {
	lock, err := singleinstance.Acquire("TimeFlowCollector")
	if err != nil {
		if err == singleinstance.ErrAlreadyRunning {
			log.Fatal("Another Collector instance is already running.")
		}
		log.Fatalf("Failed to acquire single-instance lock: %v", err)
	}
	defer lock.Release()

	configPath := os.Getenv("TIMEFLOW_CONFIG")
	if configPath == "" {
		configPath = "timeflow_config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", configPath, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	if dashboardVersionPath := os.Getenv("TIMEFLOW_DASHBOARD_VERSION_FILE"); dashboardVersionPath != "" {
		dashboardVersion, err := versioncheck.ReadDashboardVersion(dashboardVersionPath)
		if err != nil {
			log.Printf("Could not read Dashboard version file %s (continuing): %v", dashboardVersionPath, err)
		} else if ok, err := versioncheck.Compatible(CollectorVersion, dashboardVersion); err != nil {
			log.Printf("Could not compare versions (continuing): %v", err)
		} else if !ok {
			log.Fatalf("Collector %s is not compatible with Dashboard %s", CollectorVersion, dashboardVersion)
		}
	}

	log.Printf("Starting TimeFlow Collector %s (data_dir=%s poll_secs=%d session_gap_secs=%d)",
		CollectorVersion, cfg.DataDir, cfg.PollSecs, cfg.SessionGapSecs)

	sm := sampler.New(secondsToDuration(cfg.CacheMaxAgeSecs))
	builder := sessionbuilder.New(cfg, sm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down Collector...")
		cancel()
	}()

	if err := builder.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Session builder stopped: %v", err)
	}
	log.Println("Collector stopped.")
}

func secondsToDuration(secs int) (d time.Duration) {
	return time.Duration(secs) * time.Second
}
