package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import beads from JSON",
		Long:  "Import beads from a JSON array on stdin, as produced by export. All beads are validated first and appended under one lock.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var beads []model.Bead
	if err := json.Unmarshal(data, &beads); err != nil {
		exitErr("parse json", err)
	}

	if err := openLedger().AppendMany(cmd.Context(), beads); err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", len(beads))
}

func modelType(s string) model.BeadType {
	if s != "" && !model.ValidTypes[model.BeadType(s)] {
		exitErr("filter", fmt.Errorf("unknown type %q", s))
	}
	return model.BeadType(s)
}
