// Package ledger implements the append-only bead ledger: a JSONL file shared
// by every process on the machine and serialized by a file lock.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/nexa/internal/filelock"
	"github.com/rcliao/nexa/internal/fsx"
	"github.com/rcliao/nexa/internal/logging"
	"github.com/rcliao/nexa/internal/model"
)

// DefaultCompactThreshold is the ledger size above which an append compacts
// first. Roughly a thousand beads.
const DefaultCompactThreshold int64 = 500 * 1024

// ErrLockTimeout is returned when the ledger lock stays held past the wait bound.
var ErrLockTimeout = filelock.ErrTimeout

// Options configures a Ledger.
type Options struct {
	// CompactThreshold in bytes; zero means DefaultCompactThreshold.
	CompactThreshold int64
	Lock             filelock.Options
	Logger           logrus.FieldLogger
}

// Ledger is a handle on one ledger file. It holds no file state, so any
// number of handles (in any number of processes) may share a path.
type Ledger struct {
	path      string
	threshold int64
	lockOpts  filelock.Options
	log       logrus.FieldLogger
}

// New returns a Ledger for path.
func New(path string, opts Options) *Ledger {
	threshold := opts.CompactThreshold
	if threshold <= 0 {
		threshold = DefaultCompactThreshold
	}
	log := logging.OrDiscard(opts.Logger).WithField("ledger", path)
	lockOpts := opts.Lock
	if lockOpts.Logger == nil {
		lockOpts.Logger = log
	}
	return &Ledger{
		path:      path,
		threshold: threshold,
		lockOpts:  lockOpts,
		log:       log,
	}
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// BackupPath is where compaction and repair snapshot the ledger.
func (l *Ledger) BackupPath() string {
	return l.path + ".bak"
}

// Append appends one bead.
func (l *Ledger) Append(ctx context.Context, bead model.Bead) error {
	return l.AppendMany(ctx, []model.Bead{bead})
}

// AppendMany appends beads as consecutive lines under a single lock
// acquisition. Beads are validated first; nothing is written if any is
// invalid. When the ledger has grown past the compaction threshold it is
// compacted before the lock for this append is taken.
func (l *Ledger) AppendMany(ctx context.Context, beads []model.Bead) error {
	if len(beads) == 0 {
		return nil
	}

	payload := make([]byte, 0, 256*len(beads))
	for i, b := range beads {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("append bead %d: %w", i, err)
		}
		line, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode bead %s: %w", b.ID, err)
		}
		payload = append(payload, line...)
		payload = append(payload, '\n')
	}

	parent := filepath.Dir(l.path)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	l.maybeCompact()

	err := filelock.With(ctx, l.path, l.lockOpts, func() error {
		// #nosec G304 -- ledger path comes from project configuration.
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer file.Close()
		if _, err := file.Write(payload); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fsx.SyncDir(parent)
	return nil
}

// writeBeads replaces the ledger with one line per bead.
func (l *Ledger) writeBeads(beads []model.Bead) error {
	var content []byte
	for _, b := range beads {
		line, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode bead %s: %w", b.ID, err)
		}
		content = append(content, line...)
		content = append(content, '\n')
	}
	if err := fsx.WriteFileAtomic(l.path, content, 0o644); err != nil {
		return fmt.Errorf("rewrite ledger: %w", err)
	}
	return nil
}

// backup snapshots the ledger to BackupPath. Failure is logged, not returned,
// and reported through the bool.
func (l *Ledger) backup() bool {
	if err := fsx.CopyFile(l.path, l.BackupPath()); err != nil {
		l.log.WithError(err).WithField("backup", l.BackupPath()).Warn("ledger backup failed")
		return false
	}
	return true
}
