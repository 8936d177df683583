// Package repository defines the persistence store interface and its
// SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/types"
)

// SprintReview carries the review fields written onto a sprint alongside a
// health record. Nil pointers leave the stored value untouched.
type SprintReview struct {
	SprintID        string
	GoalAchievement *model.GoalAchievement
	OverallOutcome  *model.Outcome
	FailureReasons  *[]string
	Comments        *string
}

// AllocationFilter narrows allocation listings.
type AllocationFilter struct {
	ResourceID string
	ProjectID  string
}

// Store provides read/write access to all persisted aggregates.
type Store interface {
	// Projects.
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	GetProject(ctx context.Context, id string) (model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)

	// Users.
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	// ListUsersByRole returns users holding any of the given roles.
	ListUsersByRole(ctx context.Context, roles ...model.Role) ([]model.User, error)

	// Sprints.
	CreateSprint(ctx context.Context, s model.Sprint) (model.Sprint, error)
	GetSprint(ctx context.Context, id string) (model.Sprint, error)
	GetSprintByNumber(ctx context.Context, projectID string, number int) (model.Sprint, error)
	ListSprints(ctx context.Context, projectID string) ([]model.Sprint, error)
	// RecentSprints returns the project's most recent sprints ordered by
	// start date descending.
	RecentSprints(ctx context.Context, projectID string, limit int) ([]model.Sprint, error)
	UpdateSprintReview(ctx context.Context, r SprintReview) error

	// Sprint health records. One per sprint; CreateHealth returns
	// ErrConflict when a record already exists. The WithReview variants
	// run the health write and the sprint review update in a single
	// transaction so neither lands without the other.
	CreateHealth(ctx context.Context, h model.SprintHealth) (model.SprintHealth, error)
	CreateHealthWithReview(ctx context.Context, h model.SprintHealth, r SprintReview) (model.SprintHealth, error)
	GetHealthBySprint(ctx context.Context, sprintID string) (model.SprintHealth, error)
	UpdateHealth(ctx context.Context, h model.SprintHealth) (model.SprintHealth, error)
	UpdateHealthWithReview(ctx context.Context, h model.SprintHealth, r SprintReview) (model.SprintHealth, error)
	// HealthHistory returns the project's health rows for sprints up to
	// and including uptoNumber, ordered by sprint number ascending.
	HealthHistory(ctx context.Context, projectID string, uptoNumber int) ([]types.HistoryEntry, error)

	// Resources.
	CreateResource(ctx context.Context, r model.Resource) (model.Resource, error)
	GetResource(ctx context.Context, id string) (model.Resource, error)
	ListResources(ctx context.Context) ([]model.Resource, error)

	// Allocations. Create and Update run the capacity check and the write
	// in a single transaction; an over-commitment surfaces as
	// *capacity.Error and nothing is persisted.
	CreateAllocation(ctx context.Context, a model.Allocation) (model.Allocation, error)
	UpdateAllocation(ctx context.Context, a model.Allocation) (model.Allocation, error)
	GetAllocation(ctx context.Context, id string) (model.Allocation, error)
	DeleteAllocation(ctx context.Context, id string) error
	ListAllocations(ctx context.Context, f AllocationFilter) ([]model.Allocation, error)
	// ListActiveAllocations returns a resource's allocations whose end
	// date is on or after asOf, for the batch conflict report.
	ListActiveAllocations(ctx context.Context, resourceID string, asOf time.Time) ([]model.Allocation, error)

	// Alerts.
	InsertAlerts(ctx context.Context, alerts []model.Alert) error
	ListAlertsForUser(ctx context.Context, userID string) ([]model.Alert, error)
	// RecentAlertExists reports whether an alert of the given type exists
	// for the project at or after since.
	RecentAlertExists(ctx context.Context, typ model.AlertType, projectID string, since time.Time) (bool, error)

	Close() error
}
