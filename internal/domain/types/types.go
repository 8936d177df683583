// Package types contains common read shapes used across the application.
package types

import (
	"time"

	"github.com/meridianhq/pulse/internal/domain/model"
)

// HistoryEntry is one row of a project's health history up to a sprint.
type HistoryEntry struct {
	SprintNumber       int             `json:"sprintNumber"`
	OverallHealthScore float64         `json:"overallHealthScore"`
	RAGStatus          model.RAGStatus `json:"ragStatus"`
	Outcome            model.Outcome   `json:"outcome"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// ConflictAllocation is one allocation inside a reported conflict group.
type ConflictAllocation struct {
	ProjectName          string    `json:"projectName"`
	AllocationPercentage float64   `json:"allocationPercentage"`
	StartDate            time.Time `json:"startDate"`
	EndDate              time.Time `json:"endDate"`
}

// Conflict is one over-committed exact-range group found by the batch
// conflict report.
type Conflict struct {
	ResourceID     string               `json:"resourceId"`
	ResourceName   string               `json:"resourceName"`
	TotalAllocated float64              `json:"totalAllocated"`
	Capacity       float64              `json:"capacity"`
	Allocations    []ConflictAllocation `json:"allocations"`
}
