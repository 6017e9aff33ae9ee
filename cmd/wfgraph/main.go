package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/wfgraph/internal/logging"
)

// app carries the resolved configuration and logger across subcommands.
type app struct {
	cfg    Config
	level  *slog.LevelVar
	logger *slog.Logger
	stderr io.Writer

	// flags is re-applied on every reload so explicit flags keep winning.
	flags func(*Config) error
}

func newRootCmd() *cobra.Command {
	a := &app{level: new(slog.LevelVar), stderr: os.Stderr}

	root := &cobra.Command{
		Use:           "wfgraph",
		Short:         "Reconstruct and edit workflow graphs from definitions and executions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("db-path", "", "database path (default: ~/.wfgraph/wfgraph.db)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "log in JSON instead of text")
	pf.Int("collapse-threshold", 0, "collapse dynamic forks and loops with at least this many children")
	pf.Bool("strict-order", false, "reject out-of-order task records instead of warning")

	root.AddCommand(
		a.serveCmd(),
		a.renderCmd(),
		a.validateCmd(),
		a.mcpCmd(),
		a.installCmd(),
		versionCmd(),
	)
	return root
}

// init resolves configuration and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	a.flags = func(cfg *Config) error { return applyFlags(cfg, cmd.Flags()) }

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := a.flags(&cfg); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	level, _ := logging.ParseLevel(cfg.LogLevel)
	a.level.Set(level)
	a.logger = logging.New(a.stderr, a.level, cfg.LogJSON)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
