package beads

import (
	"math"
	"sort"
	"strings"

	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/model"
)

// DefaultContextBudget is the token budget used when none is given.
const DefaultContextBudget = 2000

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query  string
	Type   model.BeadType
	Tags   []string
	Budget int // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextBead is a scored bead for context output.
type ContextBead struct {
	ID      string         `json:"id"`
	Type    model.BeadType `json:"type"`
	Source  string         `json:"source"`
	Content string         `json:"content"`
	Score   float64        `json:"score"`
	Excerpt bool           `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context.
type ContextResult struct {
	Budget int           `json:"budget"`
	Used   int           `json:"used"`
	Beads  []ContextBead `json:"beads"`
}

// Context picks the beads most worth showing at session start and packs
// them into the budget, best first.
func (r *Repository) Context(p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	charBudget := budget * 4

	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	now := r.now()
	type scored struct {
		bead  model.Bead
		score float64
	}
	var candidates []scored
	terms := strings.Fields(strings.ToLower(p.Query))

	for _, b := range ledger.Dedupe(all) {
		if p.Type != "" && b.Type != p.Type {
			continue
		}
		if !hasTags(b, p.Tags) {
			continue
		}
		relevance := 1.0
		if len(terms) > 0 {
			relevance = matchRatio(b, terms)
			if relevance == 0 {
				continue
			}
		}

		// Recency: exponential decay by age in days.
		recency := 0.0
		if created, ok := b.CreatedTime(); ok {
			age := now.Sub(created).Hours() / 24.0
			recency = math.Exp(-0.1 * math.Max(age, 0))
		}

		score := relevance*0.4 + recency*0.2 + confidenceScore(b.Confidence)*0.2 + qualityScore(b)*0.2
		candidates = append(candidates, scored{bead: b, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	result := &ContextResult{Budget: budget, Beads: []ContextBead{}}
	used := 0
	for _, c := range candidates {
		entry := ContextBead{
			ID:      c.bead.ID,
			Type:    c.bead.Type,
			Source:  c.bead.Source,
			Content: c.bead.Content,
			Score:   math.Round(c.score*100) / 100,
		}
		if used+len(entry.Content) <= charBudget {
			result.Beads = append(result.Beads, entry)
			used += len(entry.Content)
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			entry.Content = entry.Content[:remaining] + "..."
			entry.Excerpt = true
			result.Beads = append(result.Beads, entry)
			used += len(entry.Content)
		}
		break
	}
	result.Used = used / 4
	return result, nil
}

func hasTags(b model.Bead, want []string) bool {
	for _, w := range want {
		found := false
		for _, t := range b.Tags {
			if t == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matchRatio is the share of query terms found in the bead's text.
func matchRatio(b model.Bead, terms []string) float64 {
	text := strings.ToLower(b.Content + " " + b.Source + " " + strings.Join(b.Tags, " "))
	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func confidenceScore(c string) float64 {
	switch c {
	case model.ConfidenceHigh:
		return 1.0
	case model.ConfidenceMedium:
		return 0.6
	case model.ConfidenceLow:
		return 0.3
	default:
		return 0.5
	}
}

// qualityScore favors well-rated outputs; unrated beads are neutral.
func qualityScore(b model.Bead) float64 {
	if b.Rating == nil {
		return 0.5
	}
	return float64(*b.Rating) / 5.0
}
