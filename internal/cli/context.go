package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/beads"
	"github.com/rcliao/nexa/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble relevant beads for a session",
		Long:  "Score beads by relevance, recency, confidence and rating, then greedily pack them into a token budget.",
		Run:   runContext,
	}

	cmd.Flags().String("type", "", "Filter by type")
	cmd.Flags().StringSliceP("tags", "t", nil, "Filter by tags")
	cmd.Flags().IntP("budget", "b", beads.DefaultContextBudget, "Max tokens in output")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	budget, _ := cmd.Flags().GetInt("budget")
	query := strings.Join(args, " ")

	result, err := openRepo().Context(beads.ContextParams{
		Query:  query,
		Type:   model.BeadType(typ),
		Tags:   tags,
		Budget: budget,
	})
	if err != nil {
		exitErr("context", err)
	}
	printJSON(result)
}
