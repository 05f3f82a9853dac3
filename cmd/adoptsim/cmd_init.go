package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/adoptsim/internal/config"
	"github.com/nvandessel/adoptsim/internal/constants"
	"github.com/nvandessel/adoptsim/internal/store"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize adoptsim in the project directory",
		Long: `Create the .adoptsim/ data directory, a default config.yaml and the
exploration database. Existing files are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			globalInit, _ := cmd.Flags().GetBool("global")
			jsonOut, _ := cmd.Flags().GetBool("json")

			var dataDir string
			if globalInit {
				dir, err := store.GlobalDataPath()
				if err != nil {
					return err
				}
				dataDir = dir
			} else {
				dataDir = store.LocalDataPath(root)
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("failed to create %s directory: %w", constants.DataDirName, err)
			}

			configPath := filepath.Join(dataDir, config.FileName)
			createdConfig := false
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.Default().Save(configPath); err != nil {
					return fmt.Errorf("failed to write %s: %w", config.FileName, err)
				}
				createdConfig = true
			}

			dbPath := ""
			if !globalInit {
				st, err := store.NewSQLiteStore(root)
				if err != nil {
					return fmt.Errorf("failed to create database: %w", err)
				}
				dbPath = st.Path()
				if err := st.Close(); err != nil {
					return err
				}
			}

			if jsonOut {
				result := map[string]any{
					"status":         "initialized",
					"path":           dataDir,
					"config":         configPath,
					"created_config": createdConfig,
				}
				if dbPath != "" {
					result["database"] = dbPath
				}
				if globalInit {
					result["scope"] = "global"
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized %s/ at %s\n", constants.DataDirName, dataDir)
			if createdConfig {
				fmt.Fprintf(out, "  wrote %s\n", configPath)
			}
			if dbPath != "" {
				fmt.Fprintf(out, "  database %s\n", dbPath)
			}
			return nil
		},
	}

	cmd.Flags().Bool("global", false, "Initialize the global user directory (~/.adoptsim/) instead of the project directory")

	return cmd
}
