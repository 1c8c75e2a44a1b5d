package beads

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rcliao/nexa/internal/model"
)

const (
	// qualityWindow caps how many of the newest ratings feed the trend.
	qualityWindow = 50
	// minTrendRatings is the fewest ratings that yield a trend.
	minTrendRatings = 10
	trendThreshold  = 0.3
)

// Trend directions.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// QualityTrend summarizes output ratings. Averages are rounded to one
// decimal and nil when there is nothing to average.
type QualityTrend struct {
	Average         *float64 `json:"average"`
	Trend           string   `json:"trend,omitempty"`
	TotalRatings    int      `json:"total_ratings"`
	RecentAverage   *float64 `json:"recent_average"`
	PreviousAverage *float64 `json:"previous_average"`
}

// QualityTrend computes the trend over the ledger's rating beads.
func (r *Repository) QualityTrend() (QualityTrend, error) {
	ratings, err := r.Ratings()
	if err != nil {
		return QualityTrend{}, err
	}
	return ComputeQualityTrend(ratings), nil
}

// ComputeQualityTrend averages the newest ratings and, given enough of them,
// compares the newer half against the older half.
func ComputeQualityTrend(ratings []model.Bead) QualityTrend {
	trend := QualityTrend{TotalRatings: len(ratings)}
	if len(ratings) == 0 {
		return trend
	}

	sorted := append([]model.Bead(nil), ratings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NewerThan(sorted[j])
	})
	if len(sorted) > qualityWindow {
		sorted = sorted[:qualityWindow]
	}

	values := make([]int, 0, len(sorted))
	for _, b := range sorted {
		if b.Rating != nil {
			values = append(values, *b.Rating)
		}
	}
	if len(values) == 0 {
		return trend
	}
	trend.Average = round1(mean(values))

	if len(values) < minTrendRatings {
		return trend
	}
	half := len(values) / 2
	recent := mean(values[:half])
	previous := mean(values[half : half*2])
	trend.RecentAverage = round1(recent)
	trend.PreviousAverage = round1(previous)

	switch diff := recent - previous; {
	case diff >= trendThreshold:
		trend.Trend = TrendUp
	case diff <= -trendThreshold:
		trend.Trend = TrendDown
	default:
		trend.Trend = TrendStable
	}
	return trend
}

// FormatQualityTrend renders t for display, e.g. "4.2/5 ↑ (12 ratings)".
func FormatQualityTrend(t QualityTrend) string {
	if t.Average == nil {
		return "No ratings yet"
	}
	avg := strconv.FormatFloat(*t.Average, 'f', -1, 64)
	var symbol string
	switch t.Trend {
	case TrendUp:
		symbol = " ↑"
	case TrendDown:
		symbol = " ↓"
	case TrendStable:
		symbol = " →"
	}
	return fmt.Sprintf("%s/5%s (%d ratings)", avg, symbol, t.TotalRatings)
}

func mean(values []int) float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func round1(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}
