package ledger

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/nexa/internal/filelock"
	"github.com/rcliao/nexa/internal/model"
)

// CompactResult summarizes one compaction pass.
type CompactResult struct {
	Before int
	After  int
}

// maybeCompact compacts when the ledger exceeds the size threshold. Errors
// are logged and swallowed; compaction is maintenance, not part of the append.
// A busy ledger skips compaction so the append keeps its own wait bound; the
// next append over the threshold tries again.
func (l *Ledger) maybeCompact() {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() <= l.threshold {
		return
	}
	result, err := l.compact()
	if errors.Is(err, filelock.ErrBusy) {
		l.log.WithField("size_bytes", info.Size()).Info("auto-compact skipped, ledger busy")
		return
	}
	if err != nil {
		l.log.WithError(err).Warn("auto-compact failed")
		return
	}
	l.log.WithFields(logrus.Fields{
		"size_bytes": info.Size(),
		"before":     result.Before,
		"after":      result.After,
		"removed":    result.Before - result.After,
	}).Info("auto-compacted ledger")
}

// compact deduplicates the ledger by id and drops corrupted lines. It holds
// the ledger lock for the read and the rewrite so no concurrent append can
// land in the file being replaced. The lock is tried once, never waited for.
func (l *Ledger) compact() (CompactResult, error) {
	var result CompactResult
	err := filelock.TryWith(l.path, l.lockOpts, func() error {
		read, err := l.ReadSafe()
		if err != nil {
			return err
		}
		survivors := Dedupe(read.Beads)
		result = CompactResult{Before: read.TotalLines, After: len(survivors)}

		l.backup()
		return l.writeBeads(survivors)
	})
	if err != nil {
		return CompactResult{}, fmt.Errorf("compact ledger: %w", err)
	}
	return result, nil
}

// Dedupe keeps one bead per id: the one with the latest created_at, the later
// line winning ties. Survivors are ordered by the first appearance of their id.
func Dedupe(beads []model.Bead) []model.Bead {
	index := make(map[string]int, len(beads))
	out := make([]model.Bead, 0, len(beads))
	for _, b := range beads {
		pos, seen := index[b.ID]
		if !seen {
			index[b.ID] = len(out)
			out = append(out, b)
			continue
		}
		if !out[pos].NewerThan(b) {
			out[pos] = b
		}
	}
	return out
}
