package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an issue",
	Long: `Create an issue in the configured project. Sprint and epic membership
are applied through their own endpoints after the create, so a partial
failure leaves the issue created with the memberships that succeeded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			return fmt.Errorf("--name is required")
		}

		st, scope, err := newStore()
		if err != nil {
			return err
		}
		if err := st.InitScope(scope); err != nil {
			return err
		}

		payload := map[string]any{"name": name}
		for _, key := range []string{"description", "state", "priority"} {
			if v, _ := cmd.Flags().GetString(key); v != "" {
				payload[key] = v
			}
		}
		if v, _ := cmd.Flags().GetString("sprint"); v != "" {
			payload["sprint_id"] = v
		}
		if v, _ := cmd.Flags().GetStringSlice("epic"); len(v) > 0 {
			payload["epic_ids"] = v
		}
		if v, _ := cmd.Flags().GetStringSlice("assignee"); len(v) > 0 {
			payload["assignee_ids"] = v
		}

		created, err := st.CreateIssue(cmd.Context(), scope, payload)
		if err != nil {
			if created == nil {
				return err
			}
			// Created, but a membership call failed.
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s with warnings: %v\n", created.ID, err)
			return nil
		}
		if jsonOutput {
			return outputJSON(created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", created.ID, created.Name)
		return nil
	},
}

func init() {
	createCmd.Flags().String("name", "", "issue title (required)")
	createCmd.Flags().String("description", "", "issue description")
	createCmd.Flags().String("state", "", "initial state")
	createCmd.Flags().String("priority", "", "priority (urgent, high, medium, low)")
	createCmd.Flags().String("sprint", "", "sprint id to add the issue to")
	createCmd.Flags().StringSlice("epic", nil, "epic id(s) to add the issue to")
	createCmd.Flags().StringSlice("assignee", nil, "assignee id(s)")
	rootCmd.AddCommand(createCmd)
}
