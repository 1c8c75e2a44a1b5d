package ledger

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/rcliao/nexa/internal/filelock"
	"github.com/rcliao/nexa/internal/model"
)

// ReadResult is the outcome of a corruption-tolerant read.
type ReadResult struct {
	Beads []model.Bead `json:"beads"`
	// CorruptedLines are 1-indexed physical line numbers that were skipped.
	CorruptedLines     []int `json:"corrupted_lines"`
	TotalLines         int   `json:"total_lines"`
	CorruptionDetected bool  `json:"corruption_detected"`
}

// RepairResult reports what Repair kept and dropped. BackupPath is empty
// unless a backup file was written by this call.
type RepairResult struct {
	Recovered  int    `json:"recovered"`
	Removed    int    `json:"removed"`
	BackupPath string `json:"backup_path,omitempty"`
}

// ReadSafe reads every line independently. Lines that are not valid JSON or
// fail bead validation are recorded in CorruptedLines and skipped; one bad
// line never hides the rest. Blank lines are ignored and not counted. A
// missing ledger reads as empty. Only a failure to read the file itself is
// returned as an error.
func (l *Ledger) ReadSafe() (ReadResult, error) {
	// #nosec G304 -- ledger path comes from project configuration.
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyResult(), nil
		}
		return emptyResult(), fmt.Errorf("read ledger: %w", err)
	}
	return parseLedger(raw), nil
}

func emptyResult() ReadResult {
	return ReadResult{Beads: []model.Bead{}, CorruptedLines: []int{}}
}

func parseLedger(raw []byte) ReadResult {
	result := emptyResult()
	for i, line := range bytes.Split(raw, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		result.TotalLines++
		bead, err := model.ParseBeadLine(line)
		if err != nil {
			result.CorruptedLines = append(result.CorruptedLines, i+1)
			continue
		}
		result.Beads = append(result.Beads, bead)
	}
	result.CorruptionDetected = len(result.CorruptedLines) > 0
	return result
}

// Repair rewrites the ledger without its corrupted lines. With no corruption
// the file is left alone. Otherwise the current file is copied to the .bak
// sibling (best-effort) and replaced by the valid beads, in order. The whole
// pass runs under the ledger lock.
func (l *Ledger) Repair(ctx context.Context) (RepairResult, error) {
	var result RepairResult
	err := filelock.With(ctx, l.path, l.lockOpts, func() error {
		read, err := l.ReadSafe()
		if err != nil {
			return err
		}
		result.Recovered = len(read.Beads)
		if !read.CorruptionDetected {
			return nil
		}

		if l.backup() {
			result.BackupPath = l.BackupPath()
		}
		if err := l.writeBeads(read.Beads); err != nil {
			return err
		}
		result.Removed = len(read.CorruptedLines)
		l.log.WithField("recovered", result.Recovered).
			WithField("removed", result.Removed).
			Info("ledger repaired")
		return nil
	})
	if err != nil {
		return RepairResult{}, fmt.Errorf("repair ledger: %w", err)
	}
	return result, nil
}
