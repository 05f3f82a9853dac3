package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run adoptsim as an MCP server over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout. It exposes the
adoptsim_simulate, adoptsim_explore, adoptsim_winning_path and
adoptsim_list_explorations tools and an exploration tree resource.

Configure it in an MCP client, for example:
  {"mcpServers": {"adoptsim": {"command": "adoptsim", "args": ["mcp-server", "--root", "/path/to/project"]}}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			defaults, err := a.params("")
			if err != nil {
				return err
			}

			cfg := &mcp.Config{
				Name:     "adoptsim",
				Version:  version,
				Store:    a.store,
				Personas: a.personas,
				Engine:   a.engine,
				Driver:   a.driver,
				Defaults: defaults,
				Logger:   a.logger,
			}
			if !noAudit {
				cfg.AuditDir = a.dataDir
			}

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("create MCP server: %w", err)
			}
			defer server.Close()

			a.logger.Info("mcp server starting", "root", a.root, "store", a.cfg.Store.Backend)
			return server.Run(context.Background())
		},
	}
	cmd.Flags().Bool("no-audit", false, "Don't write the tool call audit log")
	return cmd
}
