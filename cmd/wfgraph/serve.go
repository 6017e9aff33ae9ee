package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/wfgraph/internal/expressions"
	"github.com/rendis/wfgraph/internal/logging"
	"github.com/rendis/wfgraph/internal/panel"
	"github.com/rendis/wfgraph/internal/scheduler"
	"github.com/rendis/wfgraph/internal/store"
	"github.com/rendis/wfgraph/internal/validation"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph API and run scheduled store maintenance",
		Long: `Serve the HTTP API over the definition and execution cache.

SIGHUP reloads settings.json and the environment: log level and graph
options apply immediately, other fields need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx)
		},
	}
	f := cmd.Flags()
	f.String("listen-addr", "", "TCP listen address (default :4200)")
	f.String("retention", "", "prune executions untouched for this long, e.g. 720h; 0 disables")
	f.String("maintenance-cron", "", "cron expression for pruning and vacuum")
	return cmd
}

// openStore opens the libSQL cache at path and applies migrations.
func openStore(ctx context.Context, path string) (*store.LibSQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	st, err := store.NewLibSQLStore(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (a *app) runServe(ctx context.Context) error {
	st, err := openStore(ctx, a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	retention, _ := a.cfg.retention()
	sched, err := scheduler.NewScheduler(st, scheduler.Config{
		Spec:      a.cfg.MaintenanceCron,
		Retention: retention,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	engines, err := expressions.NewEngines()
	if err != nil {
		return err
	}
	validator, err := validation.NewWorkflowValidator(engines)
	if err != nil {
		return err
	}
	metrics := panel.NewMetrics()

	build := func(cfg Config) (http.Handler, error) {
		ps, err := panel.NewPanelServer(panel.PanelDeps{
			Store:      st,
			Engines:    engines,
			Validator:  validator,
			Metrics:    metrics,
			Logger:     a.logger,
			DAGOptions: cfg.dagOptions(),
		})
		if err != nil {
			return nil, err
		}
		return ps.Handler(), nil
	}
	handler, err := build(a.cfg)
	if err != nil {
		return err
	}
	swapper := newHandlerSwapper(handler)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info("server listening", "addr", a.cfg.ListenAddr, "db", a.cfg.DBPath)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return fmt.Errorf("listen %s: %w", a.cfg.ListenAddr, err)
		case <-hup:
			a.reload(build, swapper)
		}
	}
}

// reload re-reads configuration and applies what can change live.
func (a *app) reload(build func(Config) (http.Handler, error), swapper *handlerSwapper) {
	next, err := loadConfig()
	if err == nil {
		err = a.flags(&next)
	}
	if err == nil {
		err = next.validate()
	}
	if err != nil {
		a.logger.Error("reload failed, keeping current configuration", "error", err)
		return
	}

	diff := diffConfigs(a.cfg, next)
	if diff.LogLevelChanged {
		level, _ := logging.ParseLevel(next.LogLevel)
		a.level.Set(level)
		a.cfg.LogLevel = next.LogLevel
	}
	if diff.GraphChanged {
		h, err := build(next)
		if err != nil {
			a.logger.Error("rebuild handler", "error", err)
			return
		}
		swapper.Swap(h)
		a.cfg.CollapseThreshold, a.cfg.StrictOrder = next.CollapseThreshold, next.StrictOrder
	}
	if len(diff.RestartNeeded) > 0 {
		a.logger.Warn("configuration changes need a restart", slog.Any("fields", diff.RestartNeeded))
	}
	a.logger.Info("configuration reloaded",
		"log_level", a.cfg.LogLevel,
		"collapse_threshold", a.cfg.CollapseThreshold,
		"strict_order", a.cfg.StrictOrder)
}
