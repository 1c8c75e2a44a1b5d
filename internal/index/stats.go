package index

import (
	"context"
	"database/sql"
	"os"
	"time"
)

// Stats holds index statistics.
type Stats struct {
	DBPath           string      `json:"db_path"`
	DBSizeBytes      int64       `json:"db_size_bytes"`
	TotalBeads       int         `json:"total_beads"`
	TotalConnections int         `json:"total_connections"`
	AverageRating    *float64    `json:"average_rating"`
	RebuiltAt        string      `json:"rebuilt_at,omitempty"`
	Types            []TypeStats `json:"types"`
}

// TypeStats holds per-type counts.
type TypeStats struct {
	Type    string `json:"type"`
	Count   int    `json:"count"`
	Sources int    `json:"sources"`
}

// Stats returns index statistics.
func (s *SQLiteIndex) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, Types: []TypeStats{}}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM beads`).Scan(&st.TotalBeads)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bead_connections`).Scan(&st.TotalConnections)
	s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'rebuilt_at'`).Scan(&st.RebuiltAt)

	var avg sql.NullFloat64
	s.db.QueryRowContext(ctx, `SELECT AVG(rating) FROM beads WHERE rating IS NOT NULL`).Scan(&avg)
	if avg.Valid {
		st.AverageRating = &avg.Float64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) AS cnt, COUNT(DISTINCT source) AS sources
		FROM beads GROUP BY type ORDER BY cnt DESC, type`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ts TypeStats
		rows.Scan(&ts.Type, &ts.Count, &ts.Sources)
		st.Types = append(st.Types, ts)
	}
	return st, nil
}

// RebuiltAt returns when the index was last rebuilt. ok is false for an
// index that has never been built.
func (s *SQLiteIndex) RebuiltAt(ctx context.Context) (t time.Time, ok bool, err error) {
	var value string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'rebuilt_at'`).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err = time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}
