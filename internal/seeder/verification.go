package seeder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/meridianhq/pulse/pkg/logger"
)

// verifyResults spot-checks the seeded data through the read endpoints:
// the conflict report must be reachable, and a sampled health record must
// carry a score consistent with its RAG status.
func verifyResults(ctx context.Context, client *HTTPClient, config *Config, projects []createdProject, stats *Stats) error {
	var conflicts []map[string]interface{}
	status, err := client.GetJSON(ctx, config.BaseURL+"/allocations/conflicts", &conflicts)
	if err != nil {
		return fmt.Errorf("fetching conflict report: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("conflict report returned status %d", status)
	}
	stats.ConflictsReported = len(conflicts)

	if len(projects) == 0 {
		return nil
	}

	var sprints []createdSprint
	status, err = client.GetJSON(ctx, config.BaseURL+"/projects/"+projects[0].ID+"/sprints", &sprints)
	if err != nil {
		return fmt.Errorf("listing sprints: %w", err)
	}
	if status != http.StatusOK || len(sprints) == 0 {
		return fmt.Errorf("sprint listing for %s returned status %d with %d sprints",
			projects[0].Name, status, len(sprints))
	}

	var record healthRecord
	status, err = client.GetJSON(ctx, config.BaseURL+"/sprints/"+sprints[0].ID+"/health", &record)
	if err != nil {
		return fmt.Errorf("fetching health record: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("health record returned status %d", status)
	}
	if !ragMatchesScore(record.RAGStatus, record.OverallScore) {
		return fmt.Errorf("health record for sprint %s reports %s at score %.1f",
			record.SprintID, record.RAGStatus, record.OverallScore)
	}

	logger.Get().Info(ctx, "verification passed",
		logger.String("sampledSprint", record.SprintID),
		logger.Any("score", record.OverallScore),
		logger.String("ragStatus", record.RAGStatus),
		logger.Int("conflicts", stats.ConflictsReported))
	return nil
}

// ragMatchesScore re-derives the RAG banding from the score.
func ragMatchesScore(rag string, score float64) bool {
	switch {
	case score < 50:
		return rag == "Red"
	case score <= 75:
		return rag == "Amber"
	default:
		return rag == "Green"
	}
}
