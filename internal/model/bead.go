// Package model defines the bead record and state document types.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// BeadType is the closed set of record kinds.
type BeadType string

const (
	TypeInsight      BeadType = "insight"
	TypeDecision     BeadType = "decision"
	TypePattern      BeadType = "pattern"
	TypeQuestion     BeadType = "question"
	TypeOutputRating BeadType = "output-rating"
)

// ValidTypes are the allowed bead types.
var ValidTypes = map[BeadType]bool{
	TypeInsight:      true,
	TypeDecision:     true,
	TypePattern:      true,
	TypeQuestion:     true,
	TypeOutputRating: true,
}

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ValidConfidences are the allowed confidence levels.
var ValidConfidences = map[string]bool{
	ConfidenceHigh:   true,
	ConfidenceMedium: true,
	ConfidenceLow:    true,
}

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// TimeLayout is the ISO-8601 layout used for created_at, millisecond precision in UTC.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// IDPrefix starts every bead id.
const IDPrefix = "record"

// ErrInvalidBead reports a record that fails structural validation.
var ErrInvalidBead = errors.New("invalid bead")

// Bead is one immutable knowledge unit in the ledger.
type Bead struct {
	ID          string   `json:"id"`
	Type        BeadType `json:"type"`
	Content     string   `json:"content"`
	Source      string   `json:"source"`
	OutputFile  string   `json:"output_file,omitempty"`
	Rating      *int     `json:"rating,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
	CreatedAt   string   `json:"created_at"`
	Tags        []string `json:"tags"`
	Confidence  string   `json:"confidence,omitempty"`
	Connections []string `json:"connections"`
}

// MarshalJSON always emits tags and connections as arrays, never null.
func (b Bead) MarshalJSON() ([]byte, error) {
	type plain Bead
	p := plain(b)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Connections == nil {
		p.Connections = []string{}
	}
	return json.Marshal(p)
}

// CreatedTime parses CreatedAt. The second result is false when it is not
// a valid RFC 3339 timestamp.
func (b Bead) CreatedTime() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, b.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NewerThan reports whether b was created after other. Unparseable
// timestamps fall back to string comparison, which orders ISO-8601 UTC
// strings correctly.
func (b Bead) NewerThan(other Bead) bool {
	bt, bok := b.CreatedTime()
	ot, ook := other.CreatedTime()
	if bok && ook {
		return bt.After(ot)
	}
	return b.CreatedAt > other.CreatedAt
}

// Validate checks a bead before it is written: the required fields plus the
// rating range and confidence enum.
func (b Bead) Validate() error {
	if err := b.CheckRequired(); err != nil {
		return err
	}
	if b.Rating != nil && (*b.Rating < 1 || *b.Rating > 5) {
		return fmt.Errorf("%w: rating %d out of range 1-5", ErrInvalidBead, *b.Rating)
	}
	if b.Confidence != "" && !ValidConfidences[b.Confidence] {
		return fmt.Errorf("%w: unknown confidence %q", ErrInvalidBead, b.Confidence)
	}
	return nil
}

// CheckRequired checks the fields every ledger line must carry and the type
// enum. It is the rule a line is read against.
func (b Bead) CheckRequired() error {
	switch {
	case strings.TrimSpace(b.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidBead)
	case !ValidTypes[b.Type]:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidBead, b.Type)
	case strings.TrimSpace(b.Source) == "":
		return fmt.Errorf("%w: missing source", ErrInvalidBead)
	case strings.TrimSpace(b.CreatedAt) == "":
		return fmt.Errorf("%w: missing created_at", ErrInvalidBead)
	}
	return nil
}

// ParseBeadLine decodes one ledger line. A line is rejected if it is not a
// JSON object, if any of id, type, content, source, created_at is absent,
// or if CheckRequired fails. Content may be the empty string. Rating and
// confidence are not checked, so older lines are never dropped over them.
func ParseBeadLine(line []byte) (Bead, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Bead{}, fmt.Errorf("%w: %v", ErrInvalidBead, err)
	}
	for _, key := range []string{"id", "type", "content", "source", "created_at"} {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			return Bead{}, fmt.Errorf("%w: missing %s", ErrInvalidBead, key)
		}
	}

	var b Bead
	if err := json.Unmarshal(line, &b); err != nil {
		return Bead{}, fmt.Errorf("%w: %v", ErrInvalidBead, err)
	}
	if err := b.CheckRequired(); err != nil {
		return Bead{}, err
	}
	return b, nil
}

// SentimentFor maps a 1-5 rating to a sentiment.
func SentimentFor(rating int) string {
	switch {
	case rating >= 4:
		return SentimentPositive
	case rating == 3:
		return SentimentNeutral
	default:
		return SentimentNegative
	}
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns record_<yyyymmddhhmmss>_<3 base36 chars> for now.
func NewID(now time.Time) string {
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return IDPrefix + "_" + now.UTC().Format("20060102150405") + "_" + string(suffix)
}

// FormatTime renders t the way created_at is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
