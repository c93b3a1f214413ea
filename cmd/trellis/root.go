package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trellishq/trellis"
	"github.com/trellishq/trellis/internal/telemetry"
)

var (
	cfgFile    string
	jsonOutput bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "Issue collections in the terminal",
	Long: `Trellis browses and mutates issue collections: grouped boards,
flat lists, issue creation, and cross-column moves.

Connection settings come from flags, TRELLIS_* environment variables, or
the config file (default ~/.config/trellis/config.yaml):

  api_url:   https://api.example.com
  token:     <api token>
  workspace: my-workspace
  project:   my-project

Examples:
  trellis board --group-by state
  trellis list --filter 'priority = urgent AND updated > 7d'
  trellis create --name "Fix login redirect" --state todo
  trellis move ISS-42 --to done`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	ctx := context.Background()
	if err := telemetry.Init(ctx, "trellis", version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	}
	defer telemetry.Shutdown(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/trellis/config.yaml)")
	rootCmd.PersistentFlags().String("api-url", "", "issue service API base URL")
	rootCmd.PersistentFlags().String("token", "", "API token")
	rootCmd.PersistentFlags().String("workspace", "", "workspace id")
	rootCmd.PersistentFlags().String("project", "", "project id")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func configDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "trellis")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("TRELLIS")
	viper.AutomaticEnv()
	// A missing config file is fine; flags and env may carry everything.
	_ = viper.ReadInConfig()

	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// newStore builds the data layer and the project scope from the resolved
// configuration.
func newStore() (*trellis.Store, trellis.Scope, error) {
	apiURL := viper.GetString("api_url")
	token := viper.GetString("token")
	workspace := viper.GetString("workspace")
	project := viper.GetString("project")
	if apiURL == "" {
		return nil, trellis.Scope{}, fmt.Errorf("api_url not set (flag --api-url, env TRELLIS_API_URL, or config file)")
	}
	if workspace == "" {
		return nil, trellis.Scope{}, fmt.Errorf("workspace not set")
	}

	st := trellis.New(trellis.Options{
		BaseURL:     apiURL,
		Token:       token,
		WorkspaceID: workspace,
		PrefsDir:    configDir(),
	})
	scope := trellis.Scope{
		Kind:        trellis.ScopeProject,
		WorkspaceID: workspace,
		ProjectID:   project,
	}
	return st, scope, nil
}
