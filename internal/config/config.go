// Package config loads TimeFlow's persisted settings. Ground: the
// teacher's flat-struct + gopkg.in/yaml.v3 config loader
// (internal/config/config.go in the Flow indexer), with zero-value
// defaulting done the same way ingester.NewService backfills Config
// fields after construction.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Mode selects which on-disk database the Dashboard/Collector operate
// against (spec.md §4.9 — primary vs demo store).
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeDemo   Mode = "demo"
)

// Config is the full set of persisted knobs from spec.md §6.
type Config struct {
	// Filesystem layout.
	DataDir string `yaml:"data_dir"`

	// Intervals (seconds unless noted).
	PollSecs         int     `yaml:"poll_secs"`
	SaveSecs         int     `yaml:"save_secs"`
	CacheEvictSecs   int     `yaml:"cache_evict_secs"`
	CacheMaxAgeSecs  int     `yaml:"cache_max_age_secs"`
	SessionGapSecs   int     `yaml:"session_gap_secs"`
	ConfigReloadSecs int     `yaml:"config_reload_secs"`
	CPUThreshold     float64 `yaml:"cpu_threshold"`

	// Database.
	VacuumOnStartup           bool   `yaml:"vacuum_on_startup"`
	BackupEnabled             bool   `yaml:"backup_enabled"`
	BackupPath                string `yaml:"backup_path"`
	BackupIntervalDays        int    `yaml:"backup_interval_days"`
	AutoOptimizeEnabled       bool   `yaml:"auto_optimize_enabled"`
	AutoOptimizeIntervalHours int    `yaml:"auto_optimize_interval_hours"`

	// Classifier.
	ClassifierMode       string  `yaml:"classifier_mode"`
	MinConfidenceSuggest float64 `yaml:"min_confidence_suggest"`
	MinConfidenceAuto    float64 `yaml:"min_confidence_auto"`
	MinEvidenceAuto      int     `yaml:"min_evidence_auto"`

	// Estimates.
	GlobalHourlyRate float64 `yaml:"global_hourly_rate"`

	// Dashboard query surface (C12).
	APIPort string `yaml:"api_port"`

	// Active mode (normal vs demo); persisted separately from the rest in
	// practice (timeflow_dashboard_mode.json) but folded in here for a
	// single in-memory Config.
	ActiveMode Mode `yaml:"-"`
}

// Defaults returns the spec.md §6 default configuration.
func Defaults() Config {
	return Config{
		PollSecs:                  10,
		SaveSecs:                  300,
		CacheEvictSecs:            600,
		CacheMaxAgeSecs:           180,
		SessionGapSecs:            300,
		ConfigReloadSecs:          30,
		CPUThreshold:              0.05,
		BackupIntervalDays:        7,
		AutoOptimizeIntervalHours: 24,
		ClassifierMode:            "suggest",
		MinConfidenceSuggest:      0.60,
		MinConfidenceAuto:         0.85,
		MinEvidenceAuto:           3,
		GlobalHourlyRate:          100,
		APIPort:                   "38173",
		ActiveMode:                ModeNormal,
	}
}

// Load reads path and merges it over Defaults(); zero-valued fields in the
// file are left at their default (mirrors the teacher's NewService
// zero-value backfill pattern rather than yaml's own defaulting, since
// yaml.Unmarshal has no notion of "absent vs zero").
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var onDisk Config
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return cfg, err
	}
	applyOverrides(&cfg, onDisk)
	cfg.clampRanges()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyOverrides(cfg *Config, onDisk Config) {
	if onDisk.DataDir != "" {
		cfg.DataDir = onDisk.DataDir
	}
	if onDisk.PollSecs != 0 {
		cfg.PollSecs = onDisk.PollSecs
	}
	if onDisk.SaveSecs != 0 {
		cfg.SaveSecs = onDisk.SaveSecs
	}
	if onDisk.CacheEvictSecs != 0 {
		cfg.CacheEvictSecs = onDisk.CacheEvictSecs
	}
	if onDisk.CacheMaxAgeSecs != 0 {
		cfg.CacheMaxAgeSecs = onDisk.CacheMaxAgeSecs
	}
	if onDisk.SessionGapSecs != 0 {
		cfg.SessionGapSecs = onDisk.SessionGapSecs
	}
	if onDisk.ConfigReloadSecs != 0 {
		cfg.ConfigReloadSecs = onDisk.ConfigReloadSecs
	}
	if onDisk.CPUThreshold != 0 {
		cfg.CPUThreshold = onDisk.CPUThreshold
	}
	cfg.VacuumOnStartup = onDisk.VacuumOnStartup
	cfg.BackupEnabled = onDisk.BackupEnabled
	if onDisk.BackupPath != "" {
		cfg.BackupPath = onDisk.BackupPath
	}
	if onDisk.BackupIntervalDays != 0 {
		cfg.BackupIntervalDays = onDisk.BackupIntervalDays
	}
	cfg.AutoOptimizeEnabled = onDisk.AutoOptimizeEnabled
	if onDisk.AutoOptimizeIntervalHours != 0 {
		cfg.AutoOptimizeIntervalHours = onDisk.AutoOptimizeIntervalHours
	}
	if onDisk.ClassifierMode != "" {
		cfg.ClassifierMode = onDisk.ClassifierMode
	}
	if onDisk.MinConfidenceSuggest != 0 {
		cfg.MinConfidenceSuggest = onDisk.MinConfidenceSuggest
	}
	if onDisk.MinConfidenceAuto != 0 {
		cfg.MinConfidenceAuto = onDisk.MinConfidenceAuto
	}
	if onDisk.MinEvidenceAuto != 0 {
		cfg.MinEvidenceAuto = onDisk.MinEvidenceAuto
	}
	if onDisk.GlobalHourlyRate != 0 {
		cfg.GlobalHourlyRate = onDisk.GlobalHourlyRate
	}
	if onDisk.APIPort != "" {
		cfg.APIPort = onDisk.APIPort
	}
}

func (c *Config) clampRanges() {
	if c.AutoOptimizeIntervalHours < 1 {
		c.AutoOptimizeIntervalHours = 1
	}
	if c.AutoOptimizeIntervalHours > 720 {
		c.AutoOptimizeIntervalHours = 720
	}
	if c.GlobalHourlyRate < 0 {
		c.GlobalHourlyRate = 0
	}
	if c.GlobalHourlyRate > 100_000 {
		c.GlobalHourlyRate = 100_000
	}
}
