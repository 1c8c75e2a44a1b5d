// Package beads is the producer and consumer API over the ledger: it builds
// insight, decision and rating beads and reads them back for reporting.
package beads

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/model"
)

// InsightParams holds parameters for an insight bead.
type InsightParams struct {
	Content     string
	Source      string
	Tags        []string
	Confidence  string // defaults to medium
	Connections []string
}

// DecisionParams holds parameters for a decision bead.
type DecisionParams struct {
	Content      string
	Source       string
	DecisionPath string
	Tags         []string
}

// RatingParams holds parameters for an output-rating bead.
type RatingParams struct {
	OutputFile string
	Skill      string
	Rating     int
	Feedback   string
}

// Repository creates and reads beads through a ledger.
type Repository struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewRepository returns a Repository writing to l.
func NewRepository(l *ledger.Ledger) *Repository {
	return &Repository{ledger: l, now: time.Now}
}

// Ledger returns the underlying ledger.
func (r *Repository) Ledger() *ledger.Ledger {
	return r.ledger
}

func (r *Repository) newBead(t model.BeadType, content, source string) model.Bead {
	now := r.now()
	return model.Bead{
		ID:          model.NewID(now),
		Type:        t,
		Content:     content,
		Source:      source,
		CreatedAt:   model.FormatTime(now),
		Tags:        []string{},
		Connections: []string{},
	}
}

// CreateInsight appends an insight bead and returns it.
func (r *Repository) CreateInsight(ctx context.Context, p InsightParams) (model.Bead, error) {
	if p.Content == "" {
		return model.Bead{}, fmt.Errorf("insight content is required")
	}
	b := r.newBead(model.TypeInsight, p.Content, p.Source)
	b.Confidence = p.Confidence
	if b.Confidence == "" {
		b.Confidence = model.ConfidenceMedium
	}
	if p.Tags != nil {
		b.Tags = p.Tags
	}
	if p.Connections != nil {
		b.Connections = p.Connections
	}
	if err := r.ledger.Append(ctx, b); err != nil {
		return model.Bead{}, err
	}
	return b, nil
}

// CreateDecision appends a decision bead. The tag "decision" always leads
// the tag list and confidence is high.
func (r *Repository) CreateDecision(ctx context.Context, p DecisionParams) (model.Bead, error) {
	if p.Content == "" {
		return model.Bead{}, fmt.Errorf("decision content is required")
	}
	b := r.newBead(model.TypeDecision, p.Content, p.Source)
	b.OutputFile = p.DecisionPath
	b.Confidence = model.ConfidenceHigh
	b.Tags = append([]string{"decision"}, p.Tags...)
	if err := r.ledger.Append(ctx, b); err != nil {
		return model.Bead{}, err
	}
	return b, nil
}

// CreateRating appends an output-rating bead for an output produced by
// skill. Sentiment is fixed here from the rating.
func (r *Repository) CreateRating(ctx context.Context, p RatingParams) (model.Bead, error) {
	if p.Rating < 1 || p.Rating > 5 {
		return model.Bead{}, fmt.Errorf("rating must be 1-5, got %d", p.Rating)
	}
	if p.Skill == "" {
		return model.Bead{}, fmt.Errorf("skill is required")
	}
	rating := p.Rating
	b := r.newBead(model.TypeOutputRating, p.Feedback, p.Skill)
	b.OutputFile = p.OutputFile
	b.Rating = &rating
	b.Sentiment = model.SentimentFor(rating)
	b.Tags = []string{p.Skill, fmt.Sprintf("quality-%d", rating)}
	if err := r.ledger.Append(ctx, b); err != nil {
		return model.Bead{}, err
	}
	return b, nil
}

// ReadAll returns every valid bead in ledger order, skipping corrupted lines.
func (r *Repository) ReadAll() ([]model.Bead, error) {
	res, err := r.ledger.ReadSafe()
	if err != nil {
		return nil, err
	}
	return res.Beads, nil
}

// ReadByType returns the valid beads of type t.
func (r *Repository) ReadByType(t model.BeadType) ([]model.Bead, error) {
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]model.Bead, 0, len(all))
	for _, b := range all {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out, nil
}

// Ratings returns the output-rating beads.
func (r *Repository) Ratings() ([]model.Bead, error) {
	return r.ReadByType(model.TypeOutputRating)
}
