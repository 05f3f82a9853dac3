package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/store"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <exploration-id>",
		Short: "Export an exploration as JSONL",
		Long: `Write an exploration and its nodes as JSON lines: one exploration record
followed by one record per node in creation order.

Examples:
  adoptsim export 3f2a... > run.jsonl
  adoptsim export 3f2a... -o run.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			st, err := openCmdStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := store.ExportExplorationJSONL(context.Background(), st, args[0], w); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", args[0], output)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl|->",
		Short: "Import an exploration from JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			st, err := openCmdStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := store.ImportExplorationJSONL(context.Background(), st, r)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"status": "imported", "id": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported exploration %s\n", id)
			return nil
		},
	}
}
