package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/index"
	"github.com/rcliao/nexa/internal/ledger"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ledger and index statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsReport struct {
	LedgerPath     string       `json:"ledger_path"`
	LedgerLines    int          `json:"ledger_lines"`
	CorruptedLines int          `json:"corrupted_lines"`
	Index          *index.Stats `json:"index"`
}

func runStats(cmd *cobra.Command, args []string) {
	idx, cfg := openSyncedIndex(cmd.Context())
	defer idx.Close()

	st, err := idx.Stats(cmd.Context(), cfg.Index.Path)
	if err != nil {
		exitErr("stats", err)
	}

	l := ledger.New(cfg.Ledger.Path, cfg.LedgerOptions(newLogger(cfg)))
	read, err := l.ReadSafe()
	if err != nil {
		exitErr("read ledger", err)
	}

	printJSON(statsReport{
		LedgerPath:     l.Path(),
		LedgerLines:    read.TotalLines,
		CorruptedLines: len(read.CorruptedLines),
		Index:          st,
	})
}
