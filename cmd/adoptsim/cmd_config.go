package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/adoptsim/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage adoptsim configuration",
		Long: `View and modify adoptsim configuration settings.

Settings are merged from ~/.adoptsim/config.yaml, then <root>/.adoptsim/config.yaml,
then ADOPTSIM_* environment variables.

Examples:
  adoptsim config list                          # Show effective settings
  adoptsim config get exploration.beam_width    # Get a specific setting
  adoptsim config set llm.provider anthropic    # Set in the project config
  adoptsim config set --global simulation.sigma 0.2`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), redacted)
			}
			data, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			value, err := getConfigValue(cfg, key)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"key": key, "value": value})
			}
			if value == nil {
				value = "(not set)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the project config, or in the global config
with --global. Settable keys:

  ` + strings.Join(config.Keys(), "\n  "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			global, _ := cmd.Flags().GetBool("global")
			key, value := args[0], args[1]

			path, err := configFilePath(cmd, global)
			if err != nil {
				return err
			}

			// Only the target file is rewritten so values from other layers stay put.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if key == "llm.api_key" {
				value = cfg.LLM.RedactedAPIKey()
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
					"path":   path,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (%s)\n", key, value, path)
			return nil
		},
	}
	cmd.Flags().Bool("global", false, "Write to ~/.adoptsim/config.yaml instead of the project config")
	return cmd
}

func configFilePath(cmd *cobra.Command, global bool) (string, error) {
	if global {
		return config.GlobalPath()
	}
	root, _, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return config.LocalPath(root), nil
}

// getConfigValue looks up a dot-notation key in the redacted configuration.
func getConfigValue(cfg *config.AdoptConfig, key string) (any, error) {
	data, err := json.Marshal(cfg.Redacted())
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	fields, ok := tree[section].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	if value, ok := fields[field]; ok {
		return value, nil
	}
	// omitempty fields are still valid keys when unset
	for _, k := range config.Keys() {
		if k == key {
			return nil, nil
		}
	}
	return nil, errors.New("unknown config key: " + key)
}
