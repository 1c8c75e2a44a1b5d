package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/index"
	"github.com/rcliao/nexa/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "links [id]",
		Short: "Show a bead and its connections",
		Long:  "Show a bead with every connection from or to it. Connections to beads that no longer exist are marked dangling.",
		Args:  cobra.ExactArgs(1),
		Run:   runLinks,
	}

	RootCmd.AddCommand(cmd)
}

type linksReport struct {
	Bead        *model.Bead        `json:"bead"`
	Connections []index.Connection `json:"connections"`
}

func runLinks(cmd *cobra.Command, args []string) {
	id := args[0]

	idx, _ := openSyncedIndex(cmd.Context())
	defer idx.Close()

	// A missing bead can still be the target of dangling connections.
	b, _ := idx.Get(cmd.Context(), id)
	conns, err := idx.Connections(cmd.Context(), id)
	if err != nil {
		exitErr("connections", err)
	}
	if b == nil && len(conns) == 0 {
		exitErr("links", fmt.Errorf("bead %s not found", id))
	}
	if conns == nil {
		conns = []index.Connection{}
	}
	printJSON(linksReport{Bead: b, Connections: conns})
}
