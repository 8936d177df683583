package seeder

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/meridianhq/pulse/internal/domain/model"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	sprintLengthDays   = 14
	ratingSpread       = 2 // ratings land in base..base+spread
)

// Outcome distribution: roughly one sprint in five is at risk and one in
// ten fails outright.
const (
	atRiskThreshold  = 0.70
	failureThreshold = 0.90
)

var projectNames = []string{
	"Atlas Migration", "Helios Rollout", "Borealis Platform", "Quartz Billing",
	"Meridian Portal", "Cascade Analytics", "Vanguard CRM", "Lattice Search",
}

var resourceRoles = []string{"Engineer", "Designer", "QA", "Architect", "Analyst"}

var sprintGoals = []string{
	"Ship the onboarding flow",
	"Stabilize the reporting pipeline",
	"Cut page load times in half",
	"Migrate the legacy importer",
	"Close out the audit findings",
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// randomInt returns a random int in [0, n).
func randomInt(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// pick returns a random element of options.
func pick(options []string) string {
	return options[randomInt(len(options))]
}

// randomOutcome draws a sprint outcome from the configured distribution.
func randomOutcome() model.Outcome {
	switch f := getRandomFloat(); {
	case f >= failureThreshold:
		return model.OutcomeFailure
	case f >= atRiskThreshold:
		return model.OutcomeAtRisk
	default:
		return model.OutcomeSuccess
	}
}

// randomDimensions builds a complete ratings payload clustered around a
// base rating so the derived scores look plausible for the outcome.
func randomDimensions(outcome model.Outcome) map[string]map[string]interface{} {
	base := 4
	switch outcome {
	case model.OutcomeAtRisk:
		base = 2
	case model.OutcomeFailure:
		base = 1
	}

	dims := make(map[string]map[string]interface{}, model.DimensionCount)
	for _, d := range model.Dimensions() {
		rating := base + randomInt(ratingSpread)
		if rating > model.MaxRating {
			rating = model.MaxRating
		}
		dims[string(d)] = map[string]interface{}{"rating": rating}
	}
	return dims
}

// sprintDates returns the date range for the nth sprint, counting back
// from today so every generated sprint is in the past.
func sprintDates(total, n int) (string, string) {
	end := time.Now().UTC().AddDate(0, 0, -(total-n)*sprintLengthDays)
	start := end.AddDate(0, 0, -(sprintLengthDays - 1))
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

// projectName returns a unique project name for index i.
func projectName(i int) string {
	return fmt.Sprintf("%s %d", projectNames[i%len(projectNames)], i/len(projectNames)+1)
}

// resourceName returns a unique resource name for index i.
func resourceName(i int) string {
	return fmt.Sprintf("Resource %03d", i+1)
}
