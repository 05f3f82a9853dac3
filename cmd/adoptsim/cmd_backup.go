package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/backup"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up and restore the exploration store",
		Long: `Snapshot every stored exploration into a compressed, checksummed file
under .adoptsim/backups/ (or ~/.adoptsim/backups/), and restore from it.

Examples:
  adoptsim backup create --keep 5
  adoptsim backup list
  adoptsim backup verify .adoptsim/backups/adoptsim-backup-20260301-120000.000.json.gz
  adoptsim backup restore <file> --mode replace`,
	}
	cmd.AddCommand(
		newBackupCreateCmd(),
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
	)
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a backup of all explorations",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")

			var policies []backup.RetentionPolicy
			if keep > 0 {
				policies = append(policies, &backup.CountPolicy{MaxCount: keep})
			}
			if maxAge != "" {
				d, err := backup.ParseDuration(maxAge)
				if err != nil {
					return err
				}
				policies = append(policies, &backup.AgePolicy{MaxAge: d})
			}

			root, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			allowed, err := backup.AllowedDirs(root)
			if err != nil {
				return err
			}
			if output == "" {
				output = backup.GeneratePath(backup.DefaultDir(root), time.Now())
			}

			st, err := openStore(root, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			header, err := backup.Backup(context.Background(), st, output, allowed)
			if err != nil {
				return err
			}

			var deleted []string
			if len(policies) > 0 {
				deleted, err = backup.ApplyRetention(filepath.Dir(output), &backup.AllPolicy{Policies: policies})
				if err != nil {
					return fmt.Errorf("apply retention: %w", err)
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":    output,
					"header":  header,
					"deleted": deleted,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d exploration(s), %d node(s) to %s\n",
				header.ExplorationCount, header.NodeCount, output)
			for _, p := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "  removed %s\n", filepath.Base(p))
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Backup file path (default: timestamped file in .adoptsim/backups)")
	cmd.Flags().Int("keep", 0, "Keep only this many newest backups in the directory (0 = all)")
	cmd.Flags().String("max-age", "", "Remove backups older than this (e.g. 30d, 2w, 720h)")
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			list, err := backup.List(backup.DefaultDir(root))
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"backups": list, "count": len(list)})
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tEXPLORATIONS\tNODES\tSIZE")
			for _, b := range list {
				if !b.Readable {
					fmt.Fprintf(tw, "%s\t(unreadable)\t-\t-\t%d\n", filepath.Base(b.Path), b.Size)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", filepath.Base(b.Path),
					b.CreatedAt.Format(time.DateTime), b.Explorations, b.Nodes, b.Size)
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a backup file's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			header, err := backup.Verify(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"valid": true, "header": header})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d exploration(s), %d node(s), created %s\n",
				header.ExplorationCount, header.NodeCount, header.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore explorations from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeName, _ := cmd.Flags().GetString("mode")
			mode, err := backup.ParseRestoreMode(modeName)
			if err != nil {
				return err
			}

			root, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			allowed, err := backup.AllowedDirs(root)
			if err != nil {
				return err
			}
			st, err := openStore(root, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := backup.Restore(context.Background(), st, args[0], mode, allowed)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d exploration(s) with %d node(s); skipped %d existing\n",
				result.ExplorationsRestored, result.NodesRestored, result.ExplorationsSkipped)
			return nil
		},
	}
	cmd.Flags().String("mode", "merge", "merge skips existing explorations; replace overwrites them")
	return cmd
}
