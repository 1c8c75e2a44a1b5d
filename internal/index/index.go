// Package index provides a SQLite search index over the bead ledger.
//
// The ledger stays the source of truth; the index is a disposable cache
// rebuilt from it and can be deleted at any time.
package index

import (
	"context"

	"github.com/rcliao/nexa/internal/model"
)

// ListParams holds parameters for listing beads.
type ListParams struct {
	Type   model.BeadType
	Source string
	Tags   []string
	Limit  int
}

// SearchParams holds parameters for searching beads.
type SearchParams struct {
	Query string
	Type  model.BeadType
	Limit int
}

// RebuildResult reports what a rebuild indexed.
type RebuildResult struct {
	Indexed        int `json:"indexed"`
	Connections    int `json:"connections"`
	CorruptedLines int `json:"corrupted_lines"`
}

// Index defines the bead index interface.
type Index interface {
	// Rebuild replaces the index contents with beads, keeping the newest
	// version of each id.
	Rebuild(ctx context.Context, beads []model.Bead) (RebuildResult, error)

	// List lists beads matching the filters, newest first.
	List(ctx context.Context, p ListParams) ([]model.Bead, error)

	// Search finds beads whose content, source or tags contain the query.
	Search(ctx context.Context, p SearchParams) ([]model.Bead, error)

	// Connections returns the links touching id, in either direction.
	Connections(ctx context.Context, id string) ([]Connection, error)

	// Close closes the index.
	Close() error
}
