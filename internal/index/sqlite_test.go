package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/model"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteIndex(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func bead(id string, typ model.BeadType, content, createdAt string, tags ...string) model.Bead {
	return model.Bead{
		ID:        id,
		Type:      typ,
		Content:   content,
		Source:    "test",
		CreatedAt: createdAt,
		Tags:      tags,
	}
}

func TestRebuildKeepsNewestVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestIndex(t)

	res, err := s.Rebuild(ctx, []model.Bead{
		bead("a", model.TypeInsight, "old", "2026-01-01T00:00:00.000Z"),
		bead("b", model.TypeDecision, "b", "2026-01-01T00:00:00.000Z"),
		bead("a", model.TypeInsight, "new", "2026-01-02T00:00:00.000Z"),
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if res.Indexed != 2 {
		t.Fatalf("expected 2 indexed, got %d", res.Indexed)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "new" {
		t.Errorf("expected newest content, got %q", got.Content)
	}

	// A second rebuild replaces rather than accumulates.
	if _, err := s.Rebuild(ctx, []model.Bead{bead("c", model.TypeQuestion, "c", "2026-01-03T00:00:00.000Z")}); err != nil {
		t.Fatalf("rebuild again: %v", err)
	}
	all, _ := s.List(ctx, ListParams{})
	if len(all) != 1 || all[0].ID != "c" {
		t.Fatalf("expected only c after rebuild, got %+v", all)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestIndex(t)

	rating := 4
	rated := bead("r", model.TypeOutputRating, "", "2026-01-04T00:00:00.000Z", "summarize", "quality-4")
	rated.Rating = &rating
	rated.Sentiment = model.SentimentPositive
	rated.OutputFile = "out/brief.md"

	s.Rebuild(ctx, []model.Bead{
		bead("a", model.TypeInsight, "a", "2026-01-01T00:00:00.000Z", "pricing"),
		bead("b", model.TypeInsight, "b", "2026-01-02T00:00:00.000Z", "onboarding"),
		bead("c", model.TypeDecision, "c", "2026-01-03T00:00:00.000Z", "pricing"),
		rated,
	})

	insights, err := s.List(ctx, ListParams{Type: model.TypeInsight})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(insights) != 2 || insights[0].ID != "b" {
		t.Fatalf("expected insights newest first, got %+v", insights)
	}

	tagged, _ := s.List(ctx, ListParams{Tags: []string{"pricing"}})
	if len(tagged) != 2 {
		t.Fatalf("expected 2 pricing beads, got %d", len(tagged))
	}

	limited, _ := s.List(ctx, ListParams{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "r" {
		t.Fatalf("expected newest bead only, got %+v", limited)
	}
	if limited[0].Rating == nil || *limited[0].Rating != 4 || limited[0].OutputFile != "out/brief.md" {
		t.Errorf("optional fields not round-tripped: %+v", limited[0])
	}
}

func TestMalformedRowIsAnError(t *testing.T) {
	ctx := context.Background()
	s := newTestIndex(t)
	if _, err := s.Rebuild(ctx, []model.Bead{
		bead("b1", model.TypeInsight, "fine", "2026-01-01T00:00:00.000Z", "go"),
	}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE beads SET tags = 'not json' WHERE id = 'b1'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := s.List(ctx, ListParams{}); err == nil || !strings.Contains(err.Error(), "decode tags for b1") {
		t.Fatalf("expected decode error from List, got %v", err)
	}
	if _, err := s.Get(ctx, "b1"); err == nil || !strings.Contains(err.Error(), "decode tags for b1") {
		t.Fatalf("expected decode error from Get, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); err == nil || !strings.Contains(err.Error(), "bead not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestIndex(t)
	s.Rebuild(ctx, []model.Bead{
		bead("a", model.TypeInsight, "Users abandon checkout", "2026-01-01T00:00:00.000Z"),
		bead("b", model.TypeInsight, "Pricing confusion", "2026-01-02T00:00:00.000Z", "checkout"),
		bead("c", model.TypeDecision, "Hire designer", "2026-01-03T00:00:00.000Z"),
	})

	results, err := s.Search(ctx, SearchParams{Query: "checkout"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected content and tag matches, got %d", len(results))
	}

	results, _ = s.Search(ctx, SearchParams{Query: "checkout", Type: model.TypeDecision})
	if len(results) != 0 {
		t.Fatalf("expected type filter to exclude matches, got %d", len(results))
	}

	results, _ = s.Search(ctx, SearchParams{})
	if len(results) != 3 {
		t.Fatalf("empty query should list everything, got %d", len(results))
	}
}

func TestConnectionsBothDirections(t *testing.T) {
	ctx := context.Background()
	s := newTestIndex(t)

	a := bead("a", model.TypeInsight, "a", "2026-01-01T00:00:00.000Z")
	a.Connections = []string{"b", "ghost"}
	b := bead("b", model.TypeInsight, "b", "2026-01-01T00:00:00.000Z")
	c := bead("c", model.TypeInsight, "c", "2026-01-01T00:00:00.000Z")
	c.Connections = []string{"a"}

	res, err := s.Rebuild(ctx, []model.Bead{a, b, c})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if res.Connections != 3 {
		t.Fatalf("expected 3 connections, got %d", res.Connections)
	}

	links, err := s.Connections(ctx, "a")
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 links touching a, got %+v", links)
	}
	var dangling int
	for _, l := range links {
		if l.Dangling {
			dangling++
			if l.ToID != "ghost" {
				t.Errorf("unexpected dangling link %+v", l)
			}
		}
	}
	if dangling != 1 {
		t.Errorf("expected one dangling link, got %d", dangling)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.db")
	s, err := NewSQLiteIndex(dbPath)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	defer s.Close()

	r3, r5 := 3, 5
	x := bead("x", model.TypeOutputRating, "", "2026-01-01T00:00:00.000Z")
	x.Rating = &r3
	y := bead("y", model.TypeOutputRating, "", "2026-01-02T00:00:00.000Z")
	y.Rating = &r5
	s.Rebuild(ctx, []model.Bead{x, y, bead("z", model.TypeInsight, "z", "2026-01-03T00:00:00.000Z")})

	st, err := s.Stats(ctx, dbPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalBeads != 3 || len(st.Types) != 2 || st.Types[0].Type != string(model.TypeOutputRating) {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.AverageRating == nil || *st.AverageRating != 4 {
		t.Errorf("expected average rating 4, got %v", st.AverageRating)
	}
	if st.DBSizeBytes == 0 || st.RebuiltAt == "" {
		t.Errorf("expected size and rebuild time, got %+v", st)
	}
}

func TestSyncFromLedger(t *testing.T) {
	ctx := context.Background()
	s := newTestIndex(t)
	l := ledger.New(filepath.Join(t.TempDir(), "insights.jsonl"), ledger.Options{})
	if err := l.AppendMany(ctx, []model.Bead{
		bead("a", model.TypeInsight, "a", "2026-01-01T00:00:00.000Z"),
		bead("b", model.TypeInsight, "b", "2026-01-01T00:00:00.000Z"),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("{garbage\n")
	f.Close()

	res, err := s.Sync(ctx, l)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Indexed != 2 || res.CorruptedLines != 1 {
		t.Fatalf("unexpected sync result: %+v", res)
	}
}

func TestWatchFiresOnLedgerWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "insights.jsonl")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, func() { fired <- struct{}{} }, nil)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 10)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("expected change callback")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
