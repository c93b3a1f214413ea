package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellishq/trellis"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the project's issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		filterExpr, _ := cmd.Flags().GetString("filter")
		orderBy, _ := cmd.Flags().GetString("order-by")
		all, _ := cmd.Flags().GetBool("all")

		st, scope, err := newStore()
		if err != nil {
			return err
		}
		if err := st.InitScope(scope); err != nil {
			return err
		}

		f := st.Filter(scope)
		f.Display.Layout = trellis.LayoutList
		f.Display.GroupBy = ""
		if orderBy != "" {
			f.Display.OrderBy = orderBy
		}
		if cmd.Flags().Changed("filter") {
			if filterExpr == "" {
				f.Rich = nil
			} else {
				rich, err := trellis.ParseRichFilter(filterExpr)
				if err != nil {
					return fmt.Errorf("invalid filter: %w", err)
				}
				f.Rich = rich
			}
		}
		if err := st.UpdateFilter(scope, f); err != nil {
			return err
		}
		if err := st.Fetch(cmd.Context(), scope); err != nil {
			return err
		}
		if all {
			for st.Pagination(scope).HasNextPage {
				if err := st.FetchNext(cmd.Context(), scope); err != nil {
					return err
				}
			}
		}

		ids := st.GroupedIDs(scope).IDsFor(trellis.AllIssuesKey, "")
		issues := st.IssuesByIDs(ids)
		if jsonOutput {
			return outputJSON(issues)
		}
		for _, issue := range issues {
			fmt.Printf("%s  %-12s %-8s %s\n", idStyle.Render(issue.ID), issue.State, issue.Priority, issue.Name)
		}
		pagination := st.Pagination(scope)
		if pagination.HasNextPage {
			fmt.Println(countStyle.Render(fmt.Sprintf("showing %d of %d (use --all for the rest)", len(issues), pagination.TotalResults)))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("filter", "", `rich filter, e.g. 'priority = urgent OR priority = high'`)
	listCmd.Flags().String("order-by", "", "ordering (prefix with - for descending)")
	listCmd.Flags().Bool("all", false, "fetch every page, not just the first")
	rootCmd.AddCommand(listCmd)
}
