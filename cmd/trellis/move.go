package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellishq/trellis"
)

var moveCmd = &cobra.Command{
	Use:   "move <issue-id>",
	Short: "Move an issue to another column",
	Long: `Move an issue to another column on the project board, as a drag-and-drop
would: the issue's position and its grouping value change together, and a
sprint crossing becomes a remove-then-add membership pair.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID := args[0]
		toGroup, _ := cmd.Flags().GetString("to")
		index, _ := cmd.Flags().GetInt("index")
		if toGroup == "" {
			return fmt.Errorf("--to is required")
		}

		st, scope, err := newStore()
		if err != nil {
			return err
		}
		if err := st.InitScope(scope); err != nil {
			return err
		}
		f := st.Filter(scope)
		if f.Display.GroupBy == "" {
			f.Display.GroupBy = "state"
			f.Display.Layout = trellis.LayoutBoard
			if err := st.UpdateFilter(scope, f); err != nil {
				return err
			}
		}
		if err := st.Fetch(cmd.Context(), scope); err != nil {
			return err
		}

		src, ok := findIssueLocation(st, scope, issueID)
		if !ok {
			return fmt.Errorf("issue %s not on the board (check the active filter)", issueID)
		}
		dst := trellis.DropLocation{Group: toGroup, Index: index}

		if err := st.HandleDrop(cmd.Context(), scope, issueID, src, dst); err != nil {
			return fmt.Errorf("move failed and was rolled back: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved %s: %s → %s\n", issueID, src.Group, toGroup)
		return nil
	},
}

// findIssueLocation locates an issue in the scope's grouped index.
func findIssueLocation(st *trellis.Store, scope trellis.Scope, issueID string) (trellis.DropLocation, bool) {
	idx := st.GroupedIDs(scope)
	for _, group := range idx.GroupKeys() {
		for i, id := range idx.IDsFor(group, "") {
			if id == issueID {
				return trellis.DropLocation{Group: group, Index: i}, true
			}
		}
	}
	return trellis.DropLocation{}, false
}

func init() {
	moveCmd.Flags().String("to", "", "destination column (required)")
	moveCmd.Flags().Int("index", -1, "position within the destination column (-1 appends)")
	rootCmd.AddCommand(moveCmd)
}
