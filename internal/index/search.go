package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rcliao/nexa/internal/model"
)

// Search finds beads whose content, source or tags contain the query substring.
func (s *SQLiteIndex) Search(ctx context.Context, p SearchParams) ([]model.Bead, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(p.Query) == "" {
		return s.List(ctx, ListParams{Type: p.Type, Limit: limit})
	}

	query := "%" + p.Query + "%"
	where := []string{"(content LIKE ? OR source LIKE ? OR tags LIKE ?)"}
	args := []interface{}{query, query, query}

	if p.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(p.Type))
	}

	sql := fmt.Sprintf(`SELECT %s FROM beads WHERE %s ORDER BY created_at DESC, id LIMIT ?`,
		beadColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.queryBeads(ctx, sql, args...)
}

// Get returns the indexed bead with id.
func (s *SQLiteIndex) Get(ctx context.Context, id string) (*model.Bead, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM beads WHERE id = ?`, beadColumns), id)
	b, err := scanBead(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bead not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
