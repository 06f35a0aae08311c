// Command timeflow-dashboard owns the SQLite store and runs every
// background job that keeps it current: importing daily files (C4),
// replaying manual overrides (C10), the classifier's training/auto-safe/
// deterministic passes (C7), project auto-create/auto-freeze (C5), and
// periodic backup/optimize (C9) — in front of the HTTP/WS query surface
// (C12). Ground: the teacher's top-level main.go, which wires one
// concrete service per background concern behind env-driven enable
// flags and runs them all under a single context/WaitGroup pair ahead
// of starting the API server in its own goroutine.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"timeflow/internal/analyzer"
	"timeflow/internal/api"
	"timeflow/internal/classifier"
	"timeflow/internal/config"
	"timeflow/internal/estimates"
	"timeflow/internal/ingest"
	"timeflow/internal/overrides"
	"timeflow/internal/resolver"
	"timeflow/internal/store"
	"timeflow/internal/sweeper"
	"timeflow/internal/versioncheck"
)

// DashboardVersion is set at build time via -ldflags.
var DashboardVersion = "0.1.0"

func main() {
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

	dbPath := os.Getenv("TIMEFLOW_DB_PATH")
	if dbPath == "" {
		dbPath = "timeflow.db"
	}

	log.Printf("Starting TimeFlow Dashboard %s (data_dir=%s db=%s api_port=%s classifier_mode=%s)",
		DashboardVersion, cfg.DataDir, dbPath, cfg.APIPort, cfg.ClassifierMode)

	if versionPath := os.Getenv("TIMEFLOW_DASHBOARD_VERSION_FILE"); versionPath != "" {
		if err := versioncheck.WriteDashboardVersion(versionPath, DashboardVersion); err != nil {
			log.Printf("Failed to write Dashboard version file %s: %v", versionPath, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, dbPath, 5*time.Second)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	res := resolver.New(st)
	ing := ingest.New(st, res, cfg.DataDir)
	ovr := overrides.New(st)
	thresholds := classifier.Thresholds{
		MinConfidenceSuggest: cfg.MinConfidenceSuggest,
		MinConfidenceAuto:    cfg.MinConfidenceAuto,
		MinEvidenceAuto:      cfg.MinEvidenceAuto,
	}
	cls := classifier.New(st, thresholds, "v1")
	an := analyzer.New(st)
	est := estimates.New(st)
	sw := sweeper.New(st)

	ing.SetMode(cfg.ActiveMode)
	ing.SetOverrideReplayer(overrideReplayerAdapter{ovr})
	ing.SetRetrainer(cls)

	srv := api.NewServer(st, an, est, sw, cfg.APIPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	go func() {
		log.Printf("Starting query surface on :%s", cfg.APIPort)
		if err := srv.Start(); err != nil {
			log.Printf("API server stopped: %v", err)
		}
	}()

	// Import loop: pulls whatever daily files the Collector has written
	// since the last run, then replays manual overrides and the
	// classifier's deterministic rule over anything new.
	wg.Add(1)
	go func() {
		defer wg.Done()
		runImportCycle(ctx, ing, ovr, cls, res, cfg)

		ticker := time.NewTicker(time.Duration(cfg.PollSecs) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runImportCycle(ctx, ing, ovr, cls, res, cfg)
			}
		}
	}()

	// Classifier training: retrains whenever enough new feedback has
	// accumulated since the last model (spec.md §4.7, Train's own
	// internal threshold check decides whether this is a no-op).
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cls.Train(ctx, false); err != nil {
					log.Printf("[classifier_train] %v", err)
				}
			}
		}
	}()

	// Auto-safe classification (spec.md §4.7): only scores and assigns
	// sessions when classifier_mode is "auto_safe"; in "suggest" mode the
	// classifier still scores sessions but stops at a suggestion (spec's
	// AcceptForSuggest gate, driven from the suggestions read path
	// instead of a background writer).
	if cfg.ClassifierMode == "auto_safe" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					outcome, err := cls.RunAutoSafe(ctx, classifier.AutoSafeFilter{})
					if err != nil {
						log.Printf("[auto_safe] %v", err)
						continue
					}
					log.Printf("[auto_safe] scanned=%d assigned=%d suggested=%d",
						outcome.SessionsScanned, outcome.SessionsAssigned, outcome.SessionsSuggested)
				}
			}
		}()
	}

	// Backup/optimize (spec.md §4.9).
	if cfg.BackupEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBackup(ctx, st, cfg)
			ticker := time.NewTicker(time.Duration(cfg.BackupIntervalDays) * 24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					runBackup(ctx, st, cfg)
				}
			}
		}()
	}
	if cfg.AutoOptimizeEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Duration(cfg.AutoOptimizeIntervalHours) * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := st.Optimize(ctx); err != nil {
						log.Printf("[optimize] %v", err)
					}
				}
			}
		}()
	}

	<-sigChan
	log.Println("Shutting down Dashboard...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown: %v", err)
	}
	cancel()
	wg.Wait()
	log.Println("Dashboard stopped.")
}

// runImportCycle pulls new daily files, replays overrides over whatever
// changed, runs auto-create/auto-freeze project housekeeping (C5), and
// applies the deterministic single-project rule (C7) before the
// classifier's statistical layer ever sees a session.
func runImportCycle(ctx context.Context, ing *ingest.Ingestor, ovr *overrides.Book, cls *classifier.Classifier, res *resolver.Resolver, cfg config.Config) {
	if autoRes, err := ing.AutoImportFromDataDir(ctx); err != nil {
		log.Printf("[auto_import] %v", err)
	} else if autoRes.FilesFound > 0 {
		log.Printf("[auto_import] found=%d imported=%d skipped=%d archived=%d",
			autoRes.FilesFound, autoRes.FilesImported, autoRes.FilesSkipped, autoRes.FilesArchived)
	}

	results, err := ing.ImportFiles(ctx, "")
	if err != nil {
		log.Printf("[import] %v", err)
		return
	}
	imported := 0
	for _, r := range results {
		imported += r.SessionsImported
	}
	if imported > 0 {
		log.Printf("[import] %d session(s) across %d day(s)", imported, len(results))
	}

	if _, err := ovr.ReplayAll(ctx); err != nil {
		log.Printf("[overrides_replay] %v", err)
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30).Format("2006-01-02")
	to := now.Format("2006-01-02")
	if _, err := res.AutoCreateProjectsFromDetection(ctx, from, to, 3); err != nil {
		log.Printf("[auto_create_projects] %v", err)
	}
	if err := res.AutoFreezeProjects(ctx, 30); err != nil {
		log.Printf("[auto_freeze_projects] %v", err)
	}
	if _, err := cls.ApplyDeterministicAssignment(ctx, classifier.DefaultMinHistoryForDeterministicRule); err != nil {
		log.Printf("[deterministic_assignment] %v", err)
	}
}

// overrideReplayerAdapter adapts *overrides.Book's ReplayResult-returning
// ReplayAll to the single applied-count ingest.OverrideReplayer expects,
// so the ingest package doesn't need to import overrides for one struct.
type overrideReplayerAdapter struct{ book *overrides.Book }

func (a overrideReplayerAdapter) ReplayAll(ctx context.Context) (int, error) {
	res, err := a.book.ReplayAll(ctx)
	return res.Applied, err
}

func runBackup(ctx context.Context, st *store.Store, cfg config.Config) {
	if cfg.BackupPath == "" {
		return
	}
	dest := cfg.BackupPath + "/timeflow-" + time.Now().UTC().Format("20060102-150405") + ".db"
	if err := st.BackupTo(ctx, dest); err != nil {
		log.Printf("[backup] %v", err)
		return
	}
	log.Printf("[backup] wrote %s", dest)
}
