package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/index"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search beads by keyword",
		Long:  "Search bead content, sources and tags for matching text. The index is refreshed from the ledger first when it is out of date.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().String("type", "", "Filter by type")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	idx, _ := openSyncedIndex(cmd.Context())
	defer idx.Close()

	results, err := idx.Search(cmd.Context(), index.SearchParams{
		Query: query,
		Type:  modelType(typ),
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	printJSON(results)
}
