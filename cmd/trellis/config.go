package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
	Long: `Manage the trellis config file (~/.config/trellis/config.yaml).

Keys:
  api_url     issue service API base URL
  token       API token
  workspace   workspace id
  project     default project id

Examples:
  trellis config set api_url https://api.example.com
  trellis config get workspace
  trellis config list`,
}

func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(configDir(), "config.yaml")
}

// loadConfigFile reads the config file into a fresh viper instance so writes
// do not pick up values that came from flags or the environment.
func loadConfigFile() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(configFilePath())
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadConfigFile()
		if err != nil {
			return err
		}
		v.Set(args[0], args[1])
		if err := os.MkdirAll(filepath.Dir(configFilePath()), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := v.WriteConfigAs(configFilePath()); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadConfigFile()
		if err != nil {
			return err
		}
		if !v.IsSet(args[0]) {
			return fmt.Errorf("%s is not set", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), v.Get(args[0]))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadConfigFile()
		if err != nil {
			return err
		}
		settings := v.AllSettings()
		if jsonOutput {
			return outputJSON(settings)
		}
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value := settings[k]
			if k == "token" {
				value = "(redacted)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
