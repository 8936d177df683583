// Package scoring defines the pure computations behind sprint health:
// overall score, RAG classification, and trend against the previous sprint.
package scoring

import (
	"math"

	"github.com/meridianhq/pulse/internal/domain/model"
)

// Outcome multipliers applied to the base score.
const (
	multiplierSuccess = 1.0
	multiplierAtRisk  = 0.8
	multiplierFailure = 0.5
)

// RAG boundaries. 50 and 75 are Amber, not Red/Green; UI color coding and
// alerting depend on this exact placement.
const (
	ragRedBelow   = 50.0
	ragAmberUpTo  = 75.0
	maxScoreValue = 100.0
)

// trendBand is the dead zone around zero within which a score change
// counts as stable.
const trendBand = 2.0

// Trend describes the movement of a health score between two sprints.
type Trend struct {
	Direction  model.TrendDirection `json:"direction"`
	Percentage int                  `json:"percentage"`
	Difference *float64             `json:"difference,omitempty"`
}

// OverallScore converts the seven dimension ratings plus the sprint outcome
// into a 0–100 score. The dimension set is validated before anything is
// computed; the result is rounded half-away-from-zero to one decimal.
// The function is pure: identical inputs always produce identical output.
func OverallScore(dims model.DimensionSet, outcome model.Outcome) (float64, error) {
	if err := ValidateDimensions(dims); err != nil {
		return 0, err
	}

	total := 0
	for _, key := range model.Dimensions() {
		total += dims[key].Rating
	}
	average := float64(total) / model.DimensionCount
	base := (average / model.MaxRating) * maxScoreValue

	multiplier := multiplierSuccess
	switch outcome {
	case model.OutcomeAtRisk:
		multiplier = multiplierAtRisk
	case model.OutcomeFailure:
		multiplier = multiplierFailure
	case model.OutcomeSuccess:
	}

	return round1(base * multiplier), nil
}

// RAG classifies a 0–100 score into Red, Amber, or Green.
func RAG(score float64) model.RAGStatus {
	switch {
	case score < ragRedBelow:
		return model.RAGRed
	case score <= ragAmberUpTo:
		return model.RAGAmber
	default:
		return model.RAGGreen
	}
}

// HealthTrend compares the current score against the previous sprint's
// score. A nil previous yields direction "new". Percentage is the absolute
// rounded percentage change; Difference is the signed delta rounded to one
// decimal. A previous score of zero makes the percentage change undefined,
// so it is reported as 0 while the direction still follows the delta.
func HealthTrend(previous *float64, current float64) Trend {
	if previous == nil {
		return Trend{Direction: model.TrendNew, Percentage: 0}
	}

	difference := current - *previous

	percentage := 0
	if *previous != 0 {
		percentage = int(math.Abs(math.Round(difference / *previous * 100)))
	}

	direction := model.TrendStable
	if difference > trendBand {
		direction = model.TrendImproving
	} else if difference < -trendBand {
		direction = model.TrendDeclining
	}

	rounded := round1(difference)
	return Trend{
		Direction:  direction,
		Percentage: percentage,
		Difference: &rounded,
	}
}

// round1 rounds to one decimal place, half away from zero.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
