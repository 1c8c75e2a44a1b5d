package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/beads"
	"github.com/rcliao/nexa/internal/config"
	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/mcp"
	"github.com/rcliao/nexa/internal/state"
)

func init() {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve bead and state tools over MCP on stdio",
		Run:   runMCP,
	}

	RootCmd.AddCommand(cmd)
}

func runMCP(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := serveMCP(cfg); err != nil {
		exitErr("mcp", err)
	}
}

func serveMCP(cfg *config.Config) error {
	log := newLogger(cfg)
	deps := mcp.Deps{
		Repo:  beads.NewRepository(ledger.New(cfg.Ledger.Path, cfg.LedgerOptions(log))),
		State: state.New(cfg.State.Path, cfg.StateOptions(log)),
	}
	return server.ServeStdio(mcp.NewServer(Version, deps))
}
