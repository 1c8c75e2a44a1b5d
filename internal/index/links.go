package index

import (
	"context"
)

// Connection is a directed reference from one bead to another. Connections
// are weak: the target may not exist, in which case Dangling is set.
type Connection struct {
	FromID   string `json:"from_id"`
	ToID     string `json:"to_id"`
	Dangling bool   `json:"dangling,omitempty"`
}

// Connections returns all connections from or to id.
func (s *SQLiteIndex) Connections(ctx context.Context, id string) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.from_id, c.to_id, b.id IS NULL
		 FROM bead_connections c
		 LEFT JOIN beads b ON b.id = c.to_id
		 WHERE c.from_id = ? OR c.to_id = ?
		 ORDER BY c.from_id, c.to_id`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []Connection{}
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.FromID, &c.ToID, &c.Dangling); err != nil {
			return nil, err
		}
		links = append(links, c)
	}
	return links, rows.Err()
}
