package scoring

import (
	"fmt"
	"strings"

	"github.com/meridianhq/pulse/internal/domain/model"
)

// ValidationError reports which submitted fields are missing or out of
// range. It is always raised before anything is computed or persisted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, ", ")
}

// ValidateDimensions checks that all seven dimensions are present, rated
// within [1,5], and that comments fit the length limit. It returns a
// *ValidationError naming every offending field, or nil.
func ValidateDimensions(dims model.DimensionSet) error {
	var fields []string
	for _, key := range model.Dimensions() {
		r, ok := dims[key]
		if !ok {
			fields = append(fields, fmt.Sprintf("%s is required", key))
			continue
		}
		if r.Rating < model.MinRating || r.Rating > model.MaxRating {
			fields = append(fields, fmt.Sprintf("%s.rating must be between %d and %d", key, model.MinRating, model.MaxRating))
		}
		if len(r.Comment) > model.MaxRatingComment {
			fields = append(fields, fmt.Sprintf("%s.comment must be at most %d characters", key, model.MaxRatingComment))
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
