package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/model"
)

// SQLiteIndex implements Index using SQLite.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens or creates a SQLite index at the given path.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	s := &SQLiteIndex{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteIndex) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS beads (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		content     TEXT NOT NULL,
		source      TEXT NOT NULL,
		output_file TEXT,
		rating      INTEGER,
		sentiment   TEXT,
		created_at  TEXT NOT NULL,
		tags        TEXT NOT NULL DEFAULT '[]',
		confidence  TEXT,
		connections TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_beads_type ON beads(type);
	CREATE INDEX IF NOT EXISTS idx_beads_source ON beads(source);
	CREATE INDEX IF NOT EXISTS idx_beads_created ON beads(created_at DESC);

	CREATE TABLE IF NOT EXISTS bead_connections (
		from_id TEXT NOT NULL,
		to_id   TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id)
	);
	CREATE INDEX IF NOT EXISTS idx_connections_to ON bead_connections(to_id);

	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Rebuild replaces the index contents in one transaction.
func (s *SQLiteIndex) Rebuild(ctx context.Context, beads []model.Bead) (RebuildResult, error) {
	var res RebuildResult
	survivors := ledger.Dedupe(beads)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM bead_connections`, `DELETE FROM beads`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return res, fmt.Errorf("clear index: %w", err)
		}
	}

	for _, b := range survivors {
		tags, _ := json.Marshal(nonNil(b.Tags))
		conns, _ := json.Marshal(nonNil(b.Connections))
		_, err := tx.ExecContext(ctx,
			`INSERT INTO beads (id, type, content, source, output_file, rating, sentiment, created_at, tags, confidence, connections)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, string(b.Type), b.Content, b.Source, nullString(b.OutputFile), b.Rating,
			nullString(b.Sentiment), b.CreatedAt, string(tags), nullString(b.Confidence), string(conns))
		if err != nil {
			return res, fmt.Errorf("insert bead %s: %w", b.ID, err)
		}
		res.Indexed++

		for _, to := range b.Connections {
			r, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO bead_connections (from_id, to_id) VALUES (?, ?)`, b.ID, to)
			if err != nil {
				return res, fmt.Errorf("insert connection: %w", err)
			}
			if n, _ := r.RowsAffected(); n > 0 {
				res.Connections++
			}
		}
	}

	now := model.FormatTime(time.Now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO index_meta (key, value) VALUES ('rebuilt_at', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, now); err != nil {
		return res, fmt.Errorf("record rebuild: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// Sync rebuilds the index from the ledger's valid beads.
func (s *SQLiteIndex) Sync(ctx context.Context, l *ledger.Ledger) (RebuildResult, error) {
	read, err := l.ReadSafe()
	if err != nil {
		return RebuildResult{}, err
	}
	res, err := s.Rebuild(ctx, read.Beads)
	res.CorruptedLines = len(read.CorruptedLines)
	return res, err
}

// List lists beads matching the filters.
func (s *SQLiteIndex) List(ctx context.Context, p ListParams) ([]model.Bead, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	var args []interface{}
	if p.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(p.Type))
	}
	if p.Source != "" {
		where = append(where, "source = ?")
		args = append(args, p.Source)
	}
	for _, tag := range p.Tags {
		where = append(where, "tags LIKE ?")
		args = append(args, "%"+jsonString(tag)+"%")
	}

	query := fmt.Sprintf(`SELECT %s FROM beads WHERE %s ORDER BY created_at DESC, id LIMIT ?`,
		beadColumns, strings.Join(where, " AND "))
	args = append(args, limit)
	return s.queryBeads(ctx, query, args...)
}

// Close closes the index.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

const beadColumns = `id, type, content, source, output_file, rating, sentiment, created_at, tags, confidence, connections`

func (s *SQLiteIndex) queryBeads(ctx context.Context, query string, args ...interface{}) ([]model.Bead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	beads := []model.Bead{}
	for rows.Next() {
		b, err := scanBead(rows)
		if err != nil {
			return nil, err
		}
		beads = append(beads, b)
	}
	return beads, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBead(row scanner) (model.Bead, error) {
	var b model.Bead
	var typ, tags, conns string
	var outputFile, sentiment, confidence sql.NullString
	var rating sql.NullInt64

	err := row.Scan(&b.ID, &typ, &b.Content, &b.Source, &outputFile, &rating,
		&sentiment, &b.CreatedAt, &tags, &confidence, &conns)
	if err != nil {
		return b, err
	}
	b.Type = model.BeadType(typ)
	b.OutputFile = outputFile.String
	b.Sentiment = sentiment.String
	b.Confidence = confidence.String
	if rating.Valid {
		r := int(rating.Int64)
		b.Rating = &r
	}
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return b, fmt.Errorf("decode tags for %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(conns), &b.Connections); err != nil {
		return b, fmt.Errorf("decode connections for %s: %w", b.ID, err)
	}
	return b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// jsonString encodes s the way it appears inside the stored tags array.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
