package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/logging"
	"github.com/rendis/wfgraph/internal/scheduler"
)

// Config holds all wfgraph configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	ListenAddr        string `json:"listen_addr"`
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	LogJSON           bool   `json:"log_json"`
	CollapseThreshold int    `json:"collapse_threshold"`
	StrictOrder       bool   `json:"strict_order"`
	Retention         string `json:"retention"`
	MaintenanceCron   string `json:"maintenance_cron"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":4200",
		DBPath:            filepath.Join(wfgraphDir(), "wfgraph.db"),
		LogLevel:          "info",
		CollapseThreshold: dag.DefaultCollapseThreshold,
		Retention:         "720h",
		MaintenanceCron:   scheduler.DefaultSpec,
	}
}

// wfgraphDir is $WFGRAPH_HOME, else ~/.wfgraph.
func wfgraphDir() string {
	if v := os.Getenv("WFGRAPH_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wfgraph"
	}
	return filepath.Join(home, ".wfgraph")
}

func settingsPath() string {
	return filepath.Join(wfgraphDir(), "settings.json")
}

func binDir() string {
	return filepath.Join(wfgraphDir(), "bin")
}

// loadConfig layers settings.json and WFGRAPH_* env vars over the defaults.
// A missing settings file is not an error; a malformed one is.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", settingsPath(), err)
	}

	if v := os.Getenv("WFGRAPH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("WFGRAPH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("WFGRAPH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WFGRAPH_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}
	if v := os.Getenv("WFGRAPH_COLLAPSE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("WFGRAPH_COLLAPSE_THRESHOLD: %w", err)
		}
		cfg.CollapseThreshold = n
	}
	if v := os.Getenv("WFGRAPH_STRICT_ORDER"); v != "" {
		cfg.StrictOrder = v == "true" || v == "1"
	}
	if v := os.Getenv("WFGRAPH_RETENTION"); v != "" {
		cfg.Retention = v
	}
	if v := os.Getenv("WFGRAPH_MAINTENANCE_CRON"); v != "" {
		cfg.MaintenanceCron = v
	}

	return cfg, nil
}

// applyFlags overrides cfg with every flag set explicitly on the command line.
func applyFlags(cfg *Config, flags *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Lookup(name) != nil && flags.Changed(name) {
			err = apply()
		}
	}
	set("listen-addr", func() (e error) { cfg.ListenAddr, e = flags.GetString("listen-addr"); return })
	set("db-path", func() (e error) { cfg.DBPath, e = flags.GetString("db-path"); return })
	set("log-level", func() (e error) { cfg.LogLevel, e = flags.GetString("log-level"); return })
	set("log-json", func() (e error) { cfg.LogJSON, e = flags.GetBool("log-json"); return })
	set("collapse-threshold", func() (e error) { cfg.CollapseThreshold, e = flags.GetInt("collapse-threshold"); return })
	set("strict-order", func() (e error) { cfg.StrictOrder, e = flags.GetBool("strict-order"); return })
	set("retention", func() (e error) { cfg.Retention, e = flags.GetString("retention"); return })
	set("maintenance-cron", func() (e error) { cfg.MaintenanceCron, e = flags.GetString("maintenance-cron"); return })
	return err
}

// validate checks the fields that would otherwise fail deep inside a command.
func (c Config) validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.CollapseThreshold < 1 {
		return fmt.Errorf("collapse_threshold must be at least 1, got %d", c.CollapseThreshold)
	}
	if _, err := c.retention(); err != nil {
		return err
	}
	return nil
}

// retention parses Retention. Empty or "0" disables pruning.
func (c Config) retention() (time.Duration, error) {
	if c.Retention == "" || c.Retention == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Retention)
	if err != nil {
		return 0, fmt.Errorf("retention: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("retention must not be negative, got %s", c.Retention)
	}
	return d, nil
}

func (c Config) dagOptions() []dag.Option {
	return []dag.Option{
		dag.WithCollapseThreshold(c.CollapseThreshold),
		dag.WithStrictOrder(c.StrictOrder),
	}
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	GraphChanged    bool     // collapse threshold or strict order
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.CollapseThreshold != new.CollapseThreshold || old.StrictOrder != new.StrictOrder {
		d.GraphChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.LogJSON != new.LogJSON {
		d.RestartNeeded = append(d.RestartNeeded, "log_json")
	}
	if old.Retention != new.Retention {
		d.RestartNeeded = append(d.RestartNeeded, "retention")
	}
	if old.MaintenanceCron != new.MaintenanceCron {
		d.RestartNeeded = append(d.RestartNeeded, "maintenance_cron")
	}
	return d
}
