package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/beads"
	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/model"
)

func init() {
	beadsCmd := &cobra.Command{
		Use:   "beads",
		Short: "Inspect the bead ledger",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List beads from the ledger, newest last",
		Run:   runBeadsList,
	}
	list.Flags().String("type", "", "Filter by type: insight, decision, pattern, question, output-rating")
	list.Flags().StringP("source", "s", "", "Filter by source")
	list.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated)")
	list.Flags().IntP("limit", "l", 20, "Max results")

	check := &cobra.Command{
		Use:   "check",
		Short: "Report corrupted ledger lines without changing anything",
		Run:   runBeadsCheck,
	}

	beadsCmd.AddCommand(list, check)

	repair := &cobra.Command{
		Use:   "repair-beads",
		Short: "Remove corrupted lines from the ledger",
		Long:  "Scan the ledger and, if any line is corrupted, back it up to .bak and rewrite it with only the valid beads.",
		Run:   runRepairBeads,
	}

	quality := &cobra.Command{
		Use:   "quality",
		Short: "Show the output quality trend",
		Run:   runQuality,
	}
	quality.Flags().Bool("json", false, "Print the raw trend as JSON")

	RootCmd.AddCommand(beadsCmd, repair, quality)
}

func runBeadsList(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	source, _ := cmd.Flags().GetString("source")
	tagsStr, _ := cmd.Flags().GetString("tags")
	limit, _ := cmd.Flags().GetInt("limit")

	bt := modelType(typ)
	all, err := openRepo().ReadAll()
	if err != nil {
		exitErr("read ledger", err)
	}
	out := filterBeads(ledger.Dedupe(all), bt, source, splitTags(tagsStr))
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	printJSON(out)
}

func filterBeads(in []model.Bead, typ model.BeadType, source string, tags []string) []model.Bead {
	out := []model.Bead{}
	for _, b := range in {
		if typ != "" && b.Type != typ {
			continue
		}
		if source != "" && b.Source != source {
			continue
		}
		if !containsAll(b.Tags, tags) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// checkReport is the JSON shape of `beads check`.
type checkReport struct {
	Path               string `json:"path"`
	Valid              int    `json:"valid"`
	CorruptedLines     []int  `json:"corrupted_lines"`
	TotalLines         int    `json:"total_lines"`
	CorruptionDetected bool   `json:"corruption_detected"`
}

func runBeadsCheck(cmd *cobra.Command, args []string) {
	l := openLedger()
	res, err := l.ReadSafe()
	if err != nil {
		exitErr("read ledger", err)
	}
	printJSON(checkReport{
		Path:               l.Path(),
		Valid:              len(res.Beads),
		CorruptedLines:     res.CorruptedLines,
		TotalLines:         res.TotalLines,
		CorruptionDetected: res.CorruptionDetected,
	})
}

func runRepairBeads(cmd *cobra.Command, args []string) {
	l := openLedger()
	fmt.Println("Scanning beads file for corruption...")
	fmt.Println()

	read, err := l.ReadSafe()
	if err != nil {
		exitErr("read ledger", err)
	}
	writeScanReport(os.Stdout, read)
	if !read.CorruptionDetected {
		return
	}

	fmt.Println()
	fmt.Println("Repairing...")
	repaired, err := l.Repair(cmd.Context())
	if err != nil {
		exitErr("repair", err)
	}
	writeRepairReport(os.Stdout, repaired)
}

func writeScanReport(w io.Writer, read ledger.ReadResult) {
	if !read.CorruptionDetected {
		fmt.Fprintln(w, "No corruption detected")
		fmt.Fprintf(w, "   %d beads in file, all valid\n", len(read.Beads))
		return
	}
	lines := make([]string, len(read.CorruptedLines))
	for i, n := range read.CorruptedLines {
		lines[i] = fmt.Sprint(n)
	}
	fmt.Fprintln(w, "Corruption detected:")
	fmt.Fprintf(w, "   Total lines: %d\n", read.TotalLines)
	fmt.Fprintf(w, "   Valid beads: %d\n", len(read.Beads))
	fmt.Fprintf(w, "   Corrupted lines: %d\n", len(read.CorruptedLines))
	fmt.Fprintf(w, "   Corrupted line numbers: %s\n", strings.Join(lines, ", "))
}

func writeRepairReport(w io.Writer, res ledger.RepairResult) {
	fmt.Fprintln(w, "Repair complete")
	fmt.Fprintf(w, "   Recovered: %d beads\n", res.Recovered)
	fmt.Fprintf(w, "   Removed: %d corrupted lines\n", res.Removed)
	switch {
	case res.BackupPath != "":
		fmt.Fprintf(w, "   Backup: %s\n", res.BackupPath)
	case res.Removed == 0:
		fmt.Fprintln(w, "   Backup: none (nothing removed)")
	default:
		fmt.Fprintln(w, "   Backup: none (copy failed, see log)")
	}
}

func runQuality(cmd *cobra.Command, args []string) {
	asJSON, _ := cmd.Flags().GetBool("json")
	trend, err := openRepo().QualityTrend()
	if err != nil {
		exitErr("quality", err)
	}
	if asJSON {
		printJSON(trend)
		return
	}
	fmt.Println(beads.FormatQualityTrend(trend))
}
