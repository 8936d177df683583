// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/meridianhq/pulse/internal/adapters/repository"
	service "github.com/meridianhq/pulse/internal/app"
	"github.com/meridianhq/pulse/internal/domain/capacity"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/scoring"
	"github.com/meridianhq/pulse/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Sprint health.
	RecordSprintHealth(ctx context.Context, in service.HealthInput) (model.SprintHealth, error)
	UpdateSprintHealth(ctx context.Context, in service.HealthInput) (model.SprintHealth, error)
	GetSprintHealth(ctx context.Context, sprintID string) (service.HealthDetail, error)
	HealthHistory(ctx context.Context, sprintID string) ([]types.HistoryEntry, error)

	// Allocations.
	CreateAllocation(ctx context.Context, in service.AllocationInput) (model.Allocation, error)
	UpdateAllocation(ctx context.Context, id string, patch service.AllocationPatch) (model.Allocation, error)
	GetAllocation(ctx context.Context, id string) (model.Allocation, error)
	DeleteAllocation(ctx context.Context, id string) error
	ListAllocations(ctx context.Context, f repository.AllocationFilter) ([]model.Allocation, error)
	ConflictReport(ctx context.Context) ([]types.Conflict, error)

	// Supporting resources.
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	GetProject(ctx context.Context, id string) (model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	CreateSprint(ctx context.Context, sp model.Sprint) (model.Sprint, error)
	ListSprints(ctx context.Context, projectID string) ([]model.Sprint, error)
	CreateResource(ctx context.Context, r model.Resource) (model.Resource, error)
	GetResource(ctx context.Context, id string) (model.Resource, error)
	ListResources(ctx context.Context) ([]model.Resource, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListAlertsForUser(ctx context.Context, userID string) ([]model.Alert, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	auth               *Authenticator
	healthzHandler     *HealthzHandler
	statsHandler       *StatsHandler
	healthHandler      *HealthRecordsHandler
	allocationsHandler *AllocationsHandler
	projectsHandler    *ProjectsHandler
	resourcesHandler   *ResourcesHandler
	usersHandler       *UsersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, auth *Authenticator) *Server {
	return &Server{
		auth:               auth,
		healthzHandler:     NewHealthzHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		healthHandler:      NewHealthRecordsHandler(deps),
		allocationsHandler: NewAllocationsHandler(deps),
		projectsHandler:    NewProjectsHandler(deps),
		resourcesHandler:   NewResourcesHandler(deps),
		usersHandler:       NewUsersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. Mutating routes sit behind the
// managerial-role check.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	write := func(h http.HandlerFunc) http.HandlerFunc {
		return s.auth.RequireRole(h, model.ManagerialRoles()...)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthzHandler.HandleHealthz, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sprints/{sprintID}/health",
		MetricsMiddleware(write(s.healthHandler.HandleCreate), "sprint_health"))
	mux.HandleFunc("PUT /sprints/{sprintID}/health",
		MetricsMiddleware(write(s.healthHandler.HandleUpdate), "sprint_health"))
	mux.HandleFunc("GET /sprints/{sprintID}/health",
		MetricsMiddleware(s.healthHandler.HandleGet, "sprint_health"))
	mux.HandleFunc("GET /sprints/{sprintID}/health/history",
		MetricsMiddleware(s.healthHandler.HandleHistory, "sprint_health_history"))

	mux.HandleFunc("POST /allocations",
		MetricsMiddleware(write(s.allocationsHandler.HandleCreate), "allocations"))
	mux.HandleFunc("GET /allocations",
		MetricsMiddleware(s.allocationsHandler.HandleList, "allocations"))
	mux.HandleFunc("GET /allocations/conflicts",
		MetricsMiddleware(s.allocationsHandler.HandleConflicts, "allocation_conflicts"))
	mux.HandleFunc("GET /allocations/{allocationID}",
		MetricsMiddleware(s.allocationsHandler.HandleGet, "allocations"))
	mux.HandleFunc("PUT /allocations/{allocationID}",
		MetricsMiddleware(write(s.allocationsHandler.HandleUpdate), "allocations"))
	mux.HandleFunc("DELETE /allocations/{allocationID}",
		MetricsMiddleware(write(s.allocationsHandler.HandleDelete), "allocations"))

	mux.HandleFunc("POST /projects",
		MetricsMiddleware(write(s.projectsHandler.HandleCreate), "projects"))
	mux.HandleFunc("GET /projects",
		MetricsMiddleware(s.projectsHandler.HandleList, "projects"))
	mux.HandleFunc("GET /projects/{projectID}",
		MetricsMiddleware(s.projectsHandler.HandleGet, "projects"))
	mux.HandleFunc("POST /projects/{projectID}/sprints",
		MetricsMiddleware(write(s.projectsHandler.HandleCreateSprint), "sprints"))
	mux.HandleFunc("GET /projects/{projectID}/sprints",
		MetricsMiddleware(s.projectsHandler.HandleListSprints, "sprints"))

	mux.HandleFunc("POST /resources",
		MetricsMiddleware(write(s.resourcesHandler.HandleCreate), "resources"))
	mux.HandleFunc("GET /resources",
		MetricsMiddleware(s.resourcesHandler.HandleList, "resources"))
	mux.HandleFunc("GET /resources/{resourceID}",
		MetricsMiddleware(s.resourcesHandler.HandleGet, "resources"))

	mux.HandleFunc("POST /users",
		MetricsMiddleware(write(s.usersHandler.HandleCreate), "users"))
	mux.HandleFunc("GET /users",
		MetricsMiddleware(s.usersHandler.HandleList, "users"))
	mux.HandleFunc("GET /alerts",
		MetricsMiddleware(s.usersHandler.HandleListAlerts, "alerts"))
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// overCommitResponse is the payload for rejected over-committing
// allocation writes.
type overCommitResponse struct {
	Code           string  `json:"code"`
	Message        string  `json:"message"`
	TotalAllocated float64 `json:"totalAllocated"`
	Capacity       float64 `json:"capacity"`
	Warning        bool    `json:"warning"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeMappedError translates service and store errors into the API's
// response envelope.
func writeMappedError(w http.ResponseWriter, op string, err error) {
	var vErr *scoring.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "validation_error",
			Message: "validation failed",
			Details: vErr.Fields,
		})
		return
	}

	var capErr *capacity.Error
	if errors.As(err, &capErr) {
		writeJSON(w, http.StatusBadRequest, overCommitResponse{
			Code:           "over_allocation",
			Message:        capErr.Error(),
			TotalAllocated: capErr.TotalAllocated,
			Capacity:       capErr.Capacity,
			Warning:        true,
		})
		return
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// parseDate accepts RFC3339 timestamps or bare dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.New("invalid date; must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}
