package scoring_test

import (
	"strings"
	"testing"

	"github.com/meridianhq/pulse/internal/domain/model"
	scoring "github.com/meridianhq/pulse/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func uniformDims(rating int) model.DimensionSet {
	dims := make(model.DimensionSet, model.DimensionCount)
	for _, key := range model.Dimensions() {
		dims[key] = model.Rating{Rating: rating}
	}
	return dims
}

func TestOverallScore(t *testing.T) {
	Convey("Given a complete dimension set", t, func() {
		Convey("When every dimension is rated 5 with outcome Success", func() {
			score, err := scoring.OverallScore(uniformDims(5), model.OutcomeSuccess)

			Convey("Then the score is 100.0", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 100.0)
			})
		})

		Convey("When every dimension is rated 1 with outcome Success", func() {
			score, err := scoring.OverallScore(uniformDims(1), model.OutcomeSuccess)

			Convey("Then the score is 20.0", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 20.0)
			})
		})

		Convey("When every dimension is rated 5 with outcome Failure", func() {
			score, err := scoring.OverallScore(uniformDims(5), model.OutcomeFailure)

			Convey("Then the 0.5 multiplier halves the score", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 50.0)
			})
		})

		Convey("When every dimension is rated 4 with outcome AtRisk", func() {
			score, err := scoring.OverallScore(uniformDims(4), model.OutcomeAtRisk)

			Convey("Then the 0.8 multiplier applies", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 64.0)
			})
		})

		Convey("When ratings are mixed", func() {
			dims := uniformDims(3)
			dims[model.DimCollaboration] = model.Rating{Rating: 5}
			dims[model.DimRetrospective] = model.Rating{Rating: 4}

			score, err := scoring.OverallScore(dims, model.OutcomeSuccess)

			Convey("Then the score is the rounded mean-based value", func() {
				// mean = 24/7, base = 68.571..., rounded to 68.6
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 68.6)
			})
		})

		Convey("When called twice with identical input", func() {
			dims := uniformDims(3)
			first, err1 := scoring.OverallScore(dims, model.OutcomeAtRisk)
			second, err2 := scoring.OverallScore(dims, model.OutcomeAtRisk)

			Convey("Then both calls yield identical output", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldEqual, second)
			})
		})
	})

	Convey("Given an incomplete or invalid dimension set", t, func() {
		Convey("When a dimension is missing", func() {
			dims := uniformDims(3)
			delete(dims, model.DimBacklogReadiness)

			_, err := scoring.OverallScore(dims, model.OutcomeSuccess)

			Convey("Then validation fails naming the missing dimension", func() {
				So(err, ShouldNotBeNil)
				var verr *scoring.ValidationError
				So(err, ShouldHaveSameTypeAs, verr)
				So(err.Error(), ShouldContainSubstring, "backlogReadiness is required")
			})
		})

		Convey("When a rating is out of range", func() {
			dims := uniformDims(3)
			dims[model.DimDailyScrum] = model.Rating{Rating: 6}

			_, err := scoring.OverallScore(dims, model.OutcomeSuccess)

			Convey("Then validation fails naming the offending field", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "dailyScrumEffectiveness.rating must be between 1 and 5")
			})
		})

		Convey("When a comment exceeds the length limit", func() {
			dims := uniformDims(3)
			dims[model.DimSprintReview] = model.Rating{
				Rating:  3,
				Comment: strings.Repeat("x", model.MaxRatingComment+1),
			}

			_, err := scoring.OverallScore(dims, model.OutcomeSuccess)

			Convey("Then validation fails on the comment", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "sprintReviewQuality.comment")
			})
		})

		Convey("When several dimensions are invalid", func() {
			dims := uniformDims(0)

			_, err := scoring.OverallScore(dims, model.OutcomeSuccess)

			Convey("Then every offending field is listed", func() {
				So(err, ShouldNotBeNil)
				verr, ok := err.(*scoring.ValidationError)
				So(ok, ShouldBeTrue)
				So(len(verr.Fields), ShouldEqual, model.DimensionCount)
			})
		})
	})
}

func TestRAG(t *testing.T) {
	Convey("Given the RAG boundaries", t, func() {
		Convey("Then 49.9 is Red", func() {
			So(scoring.RAG(49.9), ShouldEqual, model.RAGRed)
		})
		Convey("Then 50 is Amber", func() {
			So(scoring.RAG(50), ShouldEqual, model.RAGAmber)
		})
		Convey("Then 75 is Amber", func() {
			So(scoring.RAG(75), ShouldEqual, model.RAGAmber)
		})
		Convey("Then 75.1 is Green", func() {
			So(scoring.RAG(75.1), ShouldEqual, model.RAGGreen)
		})
		Convey("Then 0 is Red and 100 is Green", func() {
			So(scoring.RAG(0), ShouldEqual, model.RAGRed)
			So(scoring.RAG(100), ShouldEqual, model.RAGGreen)
		})
	})
}

func TestHealthTrend(t *testing.T) {
	Convey("Given no previous score", t, func() {
		trend := scoring.HealthTrend(nil, 80)

		Convey("Then the trend is new with zero percentage", func() {
			So(trend.Direction, ShouldEqual, model.TrendNew)
			So(trend.Percentage, ShouldEqual, 0)
			So(trend.Difference, ShouldBeNil)
		})
	})

	Convey("Given a previous score", t, func() {
		prev := func(v float64) *float64 { return &v }

		Convey("When the score rises by more than the stable band", func() {
			trend := scoring.HealthTrend(prev(70), 75)

			Convey("Then the trend is improving with a 7% change", func() {
				So(trend.Direction, ShouldEqual, model.TrendImproving)
				So(trend.Percentage, ShouldEqual, 7)
				So(*trend.Difference, ShouldEqual, 5.0)
			})
		})

		Convey("When the score rises by exactly 2", func() {
			trend := scoring.HealthTrend(prev(70), 72)

			Convey("Then the trend is stable", func() {
				So(trend.Direction, ShouldEqual, model.TrendStable)
				So(*trend.Difference, ShouldEqual, 2.0)
			})
		})

		Convey("When the score rises by 2.01", func() {
			trend := scoring.HealthTrend(prev(70), 72.01)

			Convey("Then the trend is improving", func() {
				So(trend.Direction, ShouldEqual, model.TrendImproving)
			})
		})

		Convey("When the score drops by more than the stable band", func() {
			trend := scoring.HealthTrend(prev(80), 70)

			Convey("Then the trend is declining with the absolute percentage", func() {
				So(trend.Direction, ShouldEqual, model.TrendDeclining)
				So(trend.Percentage, ShouldEqual, 13)
				So(*trend.Difference, ShouldEqual, -10.0)
			})
		})

		Convey("When the score drops by exactly 2", func() {
			trend := scoring.HealthTrend(prev(80), 78)

			Convey("Then the trend is stable", func() {
				So(trend.Direction, ShouldEqual, model.TrendStable)
			})
		})

		Convey("When the previous score is zero", func() {
			trend := scoring.HealthTrend(prev(0), 40)

			Convey("Then the percentage is reported as zero", func() {
				So(trend.Direction, ShouldEqual, model.TrendImproving)
				So(trend.Percentage, ShouldEqual, 0)
				So(*trend.Difference, ShouldEqual, 40.0)
			})
		})

		Convey("When the score is unchanged", func() {
			trend := scoring.HealthTrend(prev(66.6), 66.6)

			Convey("Then the trend is stable with zero percentage", func() {
				So(trend.Direction, ShouldEqual, model.TrendStable)
				So(trend.Percentage, ShouldEqual, 0)
				So(*trend.Difference, ShouldEqual, 0.0)
			})
		})
	})
}
