package seeder

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL           string        // Base URL of the service
	Token             string        // Bearer token for write endpoints
	Projects          int           // Number of projects to create
	SprintsPerProject int           // Sprints (with health records) per project
	Resources         int           // Number of resources to create
	Workers           int           // Number of concurrent workers
	Timeout           time.Duration // HTTP request timeout
	LogFile           string        // Log file for run output
	Verbose           bool          // Enable verbose logging
}

// createdProject is the subset of the project response the seeder needs.
type createdProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// createdSprint is the subset of the sprint response the seeder needs.
type createdSprint struct {
	ID           string `json:"id"`
	SprintNumber int    `json:"sprintNumber"`
}

// createdResource is the subset of the resource response the seeder needs.
type createdResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// healthRecord is the subset of the health response the seeder verifies.
type healthRecord struct {
	SprintID     string  `json:"sprintId"`
	OverallScore float64 `json:"overallHealthScore"`
	RAGStatus    string  `json:"ragStatus"`
}

// Stats holds seeding run statistics.
type Stats struct {
	ProjectsCreated    int64
	SprintsCreated     int64
	ResourcesCreated   int64
	AllocationsCreated int64
	AllocationsBlocked int64
	HealthSubmitted    int64
	HealthFailed       int64
	ConflictsReported  int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
