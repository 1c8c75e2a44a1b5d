package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/config"
	"github.com/rcliao/nexa/internal/index"
	"github.com/rcliao/nexa/internal/ledger"
)

func init() {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the SQLite search index",
		Long:  "The index is a cache over the ledger. It can be deleted at any time and rebuilt with `nexa index rebuild`.",
	}

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the ledger",
		Run:   runIndexRebuild,
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index in sync while the ledger changes",
		Run:   runIndexWatch,
	}
	watch.Flags().Duration("debounce", index.DefaultDebounce, "Quiet period before a rebuild")

	indexCmd.AddCommand(rebuild, watch)
	RootCmd.AddCommand(indexCmd)
}

// openSyncedIndex opens the index and rebuilds it first when the ledger
// changed after the last rebuild.
func openSyncedIndex(ctx context.Context) (*index.SQLiteIndex, *config.Config) {
	cfg := loadConfig()
	idx, err := openIndex(cfg)
	if err != nil {
		exitErr("open index", err)
	}
	l := ledger.New(cfg.Ledger.Path, cfg.LedgerOptions(newLogger(cfg)))
	stale, err := indexStale(ctx, idx, l.Path())
	if err != nil {
		idx.Close()
		exitErr("check index", err)
	}
	if stale {
		if _, err := idx.Sync(ctx, l); err != nil {
			idx.Close()
			exitErr("sync index", err)
		}
	}
	return idx, cfg
}

func indexStale(ctx context.Context, idx *index.SQLiteIndex, ledgerPath string) (bool, error) {
	rebuiltAt, ok, err := idx.RebuiltAt(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	info, err := os.Stat(ledgerPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.ModTime().Before(rebuiltAt), nil
}

func runIndexRebuild(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	idx, err := openIndex(cfg)
	if err != nil {
		exitErr("open index", err)
	}
	defer idx.Close()

	l := ledger.New(cfg.Ledger.Path, cfg.LedgerOptions(newLogger(cfg)))
	res, err := idx.Sync(cmd.Context(), l)
	if err != nil {
		exitErr("rebuild", err)
	}
	printJSON(res)
}

func runIndexWatch(cmd *cobra.Command, args []string) {
	debounce, _ := cmd.Flags().GetDuration("debounce")

	cfg := loadConfig()
	log := newLogger(cfg)
	idx, err := openIndex(cfg)
	if err != nil {
		exitErr("open index", err)
	}
	defer idx.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := ledger.New(cfg.Ledger.Path, cfg.LedgerOptions(log))
	sync := func() {
		res, err := idx.Sync(ctx, l)
		if err != nil {
			log.WithError(err).Warn("index sync failed")
			return
		}
		log.WithField("indexed", res.Indexed).Info("index synced")
	}
	sync()

	fmt.Fprintf(os.Stderr, "watching %s\n", l.Path())
	if err := index.Watch(ctx, l.Path(), debounce, sync, log); err != nil {
		exitErr("watch", err)
	}
}
