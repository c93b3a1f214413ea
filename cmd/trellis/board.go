package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/trellishq/trellis"
)

// Adaptive palette, light and dark terminal backgrounds.
var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorUrgent = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorHigh   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1).
			Width(32)
	columnTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	countStyle       = lipgloss.NewStyle().Foreground(colorMuted)
	idStyle          = lipgloss.NewStyle().Foreground(colorMuted)
	urgentStyle      = lipgloss.NewStyle().Foreground(colorUrgent)
	highStyle        = lipgloss.NewStyle().Foreground(colorHigh)
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the project board",
	Long: `Fetch the project's issues grouped into columns and render them as a
board. The grouping dimension, ordering, and rich filter are persisted per
project, so the next invocation reuses them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		groupBy, _ := cmd.Flags().GetString("group-by")
		orderBy, _ := cmd.Flags().GetString("order-by")
		filterExpr, _ := cmd.Flags().GetString("filter")

		st, scope, err := newStore()
		if err != nil {
			return err
		}
		if err := st.InitScope(scope); err != nil {
			return err
		}

		f := st.Filter(scope)
		f.Display.Layout = trellis.LayoutBoard
		if groupBy != "" {
			f.Display.GroupBy = groupBy
		}
		if f.Display.GroupBy == "" {
			f.Display.GroupBy = "state"
		}
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

		if jsonOutput {
			return printBoardJSON(st, scope)
		}
		fmt.Println(renderBoard(st, scope))
		return nil
	},
}

func init() {
	boardCmd.Flags().String("group-by", "", "group dimension (state, priority, assignees, labels, sprint, epic)")
	boardCmd.Flags().String("order-by", "", "ordering (sort_order for manual)")
	boardCmd.Flags().String("filter", "", `rich filter, e.g. 'state != done AND updated > 7d'`)
	rootCmd.AddCommand(boardCmd)
}

func renderBoard(st *trellis.Store, scope trellis.Scope) string {
	idx := st.GroupedIDs(scope)
	keys := idx.GroupKeys()
	sort.Strings(keys)

	columns := make([]string, 0, len(keys))
	for _, key := range keys {
		issues := st.IssuesByIDs(idx.IDsFor(key, ""))
		var b strings.Builder
		title := columnTitleStyle.Render(key)
		count := countStyle.Render(fmt.Sprintf(" %d", st.CountFor(scope, key, "", false)))
		b.WriteString(title + count + "\n")
		if len(issues) == 0 {
			b.WriteString(countStyle.Render("(empty)"))
		}
		for _, issue := range issues {
			b.WriteString(renderCard(issue) + "\n")
		}
		columns = append(columns, columnStyle.Render(strings.TrimRight(b.String(), "\n")))
	}
	if len(columns) == 0 {
		return "No issues."
	}
	board := lipgloss.JoinHorizontal(lipgloss.Top, columns...)
	total := countStyle.Render(fmt.Sprintf("%d issues", st.TotalCount(scope)))
	return board + "\n" + total
}

func renderCard(issue *trellis.Issue) string {
	name := issue.Name
	if len(name) > 26 {
		name = name[:25] + "…"
	}
	line := idStyle.Render(issue.ID) + " " + name
	switch issue.Priority {
	case "urgent":
		line = urgentStyle.Render("! ") + line
	case "high":
		line = highStyle.Render("^ ") + line
	}
	return line
}

func printBoardJSON(st *trellis.Store, scope trellis.Scope) error {
	idx := st.GroupedIDs(scope)
	out := make(map[string][]*trellis.Issue, len(idx.GroupKeys()))
	for _, key := range idx.GroupKeys() {
		out[key] = st.IssuesByIDs(idx.IDsFor(key, ""))
	}
	return outputJSON(out)
}
