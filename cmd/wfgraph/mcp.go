package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/wfgraph/pkg/mcp"
)

func (a *app) mcpCmd() *cobra.Command {
	var noStore bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the graph tools over MCP on stdio",
		Long: `Serve wfgraph.build, wfgraph.diagram, wfgraph.resolve and wfgraph.validate
over the Model Context Protocol on stdin/stdout. Logs go to stderr.

Unless --no-store is given, tools can load cached definitions and executions
by name or id from the configured database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps := mcp.GraphServerDeps{
				Logger:     a.logger,
				DAGOptions: a.cfg.dagOptions(),
			}
			if !noStore {
				st, err := openStore(ctx, a.cfg.DBPath)
				if err != nil {
					return err
				}
				defer st.Close()
				deps.Store = st
			}

			srv, err := mcp.NewGraphServer(deps)
			if err != nil {
				return err
			}
			a.logger.Info("mcp server starting", "store", !noStore)
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&noStore, "no-store", false, "serve inline documents only, without the database")
	return cmd
}
