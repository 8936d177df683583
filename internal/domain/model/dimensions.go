package model

// Dimension names one of the seven rated aspects of a sprint.
type Dimension string

// The seven health dimensions. Every health record carries all of them.
const (
	DimSprintPlanning   Dimension = "sprintPlanningEffectiveness"
	DimBacklogReadiness Dimension = "backlogReadiness"
	DimCollaboration    Dimension = "teamCollaboration"
	DimDailyScrum       Dimension = "dailyScrumEffectiveness"
	DimExecution        Dimension = "sprintExecutionDiscipline"
	DimSprintReview     Dimension = "sprintReviewQuality"
	DimRetrospective    Dimension = "retrospectiveEffectiveness"
)

// Rating bounds and comment limit.
const (
	MinRating        = 1
	MaxRating        = 5
	MaxRatingComment = 1000
	DimensionCount   = 7
)

// Rating is a single 1–5 score with an optional free-text comment.
type Rating struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// DimensionSet maps dimension names to ratings. A complete set carries
// exactly the seven known dimensions.
type DimensionSet map[Dimension]Rating

// Dimensions returns the seven dimension names in their canonical order.
func Dimensions() []Dimension {
	return []Dimension{
		DimSprintPlanning,
		DimBacklogReadiness,
		DimCollaboration,
		DimDailyScrum,
		DimExecution,
		DimSprintReview,
		DimRetrospective,
	}
}

// Merge overlays partial on top of base and returns the result. Dimensions
// absent from partial keep their base rating. Neither input is mutated.
func (d DimensionSet) Merge(partial DimensionSet) DimensionSet {
	out := make(DimensionSet, DimensionCount)
	for k, v := range d {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}
