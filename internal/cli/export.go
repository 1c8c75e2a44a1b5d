package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/ledger"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export beads as JSON",
		Long:  "Export the ledger's valid beads as a JSON array. Corrupted lines are skipped.",
		Run:   runExport,
	}

	cmd.Flags().Bool("dedupe", false, "Keep only the newest version of each id")
	cmd.Flags().String("type", "", "Filter by type")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	dedupe, _ := cmd.Flags().GetBool("dedupe")
	typ, _ := cmd.Flags().GetString("type")

	all, err := openRepo().ReadAll()
	if err != nil {
		exitErr("export", err)
	}
	if dedupe {
		all = ledger.Dedupe(all)
	}
	printJSON(filterBeads(all, modelType(typ), "", nil))
}
