// Package cli implements the nexa CLI commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/beads"
	"github.com/rcliao/nexa/internal/config"
	"github.com/rcliao/nexa/internal/index"
	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/logging"
	"github.com/rcliao/nexa/internal/state"
)

// Version is stamped at build time.
var Version = "dev"

var (
	rootFlag     string
	logLevelFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "nexa",
	Short: "Project knowledge ledger and session state",
	Long:  "Capture insights, decisions and output ratings in an append-only ledger, and track session state. Safe to run from many processes at once.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", "", "Project root (default: $NEXA_ROOT or the working directory)")
	RootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (default from config)")
}

func loadConfig() *config.Config {
	root, err := config.ResolveRoot(rootFlag)
	if err != nil {
		exitErr("resolve root", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		exitErr("load config", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg
}

func newLogger(cfg *config.Config) logrus.FieldLogger {
	return logging.New(cfg.Log.Level, os.Stderr)
}

func openLedger() *ledger.Ledger {
	cfg := loadConfig()
	return ledger.New(cfg.Ledger.Path, cfg.LedgerOptions(newLogger(cfg)))
}

func openRepo() *beads.Repository {
	return beads.NewRepository(openLedger())
}

func openState() *state.Store {
	cfg := loadConfig()
	return state.New(cfg.State.Path, cfg.StateOptions(newLogger(cfg)))
}

func openIndex(cfg *config.Config) (*index.SQLiteIndex, error) {
	return index.NewSQLiteIndex(cfg.Index.Path)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// exitCapture handles errors from commands that capture beads from hooks.
// A busy ledger is not worth failing the caller over, so a lock timeout is
// reported as a warning and the command exits 0.
func exitCapture(msg string, err error) {
	if errors.Is(err, ledger.ErrLockTimeout) {
		fmt.Fprintf(os.Stderr, "warning: %s skipped: %v\n", msg, err)
		os.Exit(0)
	}
	exitErr(msg, err)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// readContent takes content from the positional args, else from piped stdin.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return strings.TrimSpace(string(b))
	}
	return ""
}
