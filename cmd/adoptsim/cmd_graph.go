package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/logging"
	"github.com/nvandessel/adoptsim/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [exploration-id]",
		Short: "Visualize an exploration tree",
		Long: `Output an exploration tree in DOT (Graphviz), JSON, or HTML format.
With --serve, start a local viewer over every stored exploration instead.

Examples:
  adoptsim graph 3f2a... | dot -Tsvg > tree.svg
  adoptsim graph 3f2a... --format html -o tree.html
  adoptsim graph --serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")
			addr, _ := cmd.Flags().GetString("addr")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if !serve && len(args) == 0 {
				return fmt.Errorf("an exploration ID is required unless --serve is set")
			}

			root, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(root, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			if serve {
				logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
				return runGraphServer(cmd, visualization.NewServer(st, logger), addr, noOpen)
			}

			tree, err := visualization.LoadTree(context.Background(), st, args[0])
			if err != nil {
				return err
			}
			data, err := visualization.Render(tree, format)
			if err != nil {
				return err
			}

			if format == visualization.FormatHTML {
				return writeStaticHTML(cmd, data, output, tree.Exploration.ID, noOpen)
			}
			if output != "" {
				if err := os.WriteFile(output, data, 0644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path")
	cmd.Flags().Bool("no-open", false, "Don't open a browser for html output or --serve")
	cmd.Flags().Bool("serve", false, "Start a local viewer for all stored explorations")
	cmd.Flags().String("addr", "", "Listen address for --serve (default: a free localhost port)")

	return cmd
}

// writeStaticHTML writes a rendered HTML page to output, or a temp file.
func writeStaticHTML(cmd *cobra.Command, data []byte, output, id string, noOpen bool) error {
	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "adoptsim-"+id+".html")
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runGraphServer serves the viewer and blocks until Ctrl-C.
func runGraphServer(cmd *cobra.Command, srv *visualization.Server, addr string, noOpen bool) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if srv.Addr() == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + srv.Addr()
	fmt.Fprintf(cmd.OutOrStdout(), "Exploration viewer running at %s\n", url)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
