// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/scoring"
)

// ProjectsHandler handles project and sprint requests.
type ProjectsHandler struct {
	deps Dependencies
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(deps Dependencies) *ProjectsHandler {
	return &ProjectsHandler{deps: deps}
}

type projectRequest struct {
	Name   string `json:"name"`
	Client string `json:"client,omitempty"`
	Status string `json:"status,omitempty"`
}

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Client    string    `json:"client,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toProjectResponse(p model.Project) projectResponse {
	return projectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Client:    p.Client,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type sprintRequest struct {
	SprintNumber int    `json:"sprintNumber"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	SprintGoal   string `json:"sprintGoal,omitempty"`
	SprintType   string `json:"sprintType,omitempty"`
}

type sprintResponse struct {
	ID              string                `json:"id"`
	ProjectID       string                `json:"projectId"`
	SprintNumber    int                   `json:"sprintNumber"`
	StartDate       time.Time             `json:"startDate"`
	EndDate         time.Time             `json:"endDate"`
	SprintGoal      string                `json:"sprintGoal,omitempty"`
	SprintType      model.SprintType      `json:"sprintType"`
	GoalAchievement model.GoalAchievement `json:"goalAchievement,omitempty"`
	OverallOutcome  model.Outcome         `json:"overallOutcome,omitempty"`
	FailureReasons  []string              `json:"failureReasons,omitempty"`
	Comments        string                `json:"comments,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

func toSprintResponse(sp model.Sprint) sprintResponse {
	return sprintResponse{
		ID:              sp.ID,
		ProjectID:       sp.ProjectID,
		SprintNumber:    sp.SprintNumber,
		StartDate:       sp.StartDate,
		EndDate:         sp.EndDate,
		SprintGoal:      sp.SprintGoal,
		SprintType:      sp.SprintType,
		GoalAchievement: sp.GoalAchievement,
		OverallOutcome:  sp.OverallOutcome,
		FailureReasons:  sp.FailureReasons,
		Comments:        sp.Comments,
		CreatedAt:       sp.CreatedAt,
		UpdatedAt:       sp.UpdatedAt,
	}
}

// HandleCreate handles POST /projects requests.
func (h *ProjectsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_project"

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Name == "" {
		writeMappedError(w, op, &scoring.ValidationError{Fields: []string{"name"}})
		return
	}

	created, err := h.deps.CreateProject(r.Context(), model.Project{
		Name:   req.Name,
		Client: req.Client,
		Status: req.Status,
	})
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(created))
}

// HandleList handles GET /projects requests.
func (h *ProjectsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_projects"

	projects, err := h.deps.ListProjects(r.Context())
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /projects/{projectID} requests.
func (h *ProjectsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_project"

	p, err := h.deps.GetProject(r.Context(), r.PathValue("projectID"))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// HandleCreateSprint handles POST /projects/{projectID}/sprints requests.
func (h *ProjectsHandler) HandleCreateSprint(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_sprint"

	var req sprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var fields []string
	if req.SprintNumber < 1 {
		fields = append(fields, "sprintNumber")
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		fields = append(fields, "startDate")
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		fields = append(fields, "endDate")
	}
	if len(fields) > 0 {
		writeMappedError(w, op, &scoring.ValidationError{Fields: fields})
		return
	}

	created, err := h.deps.CreateSprint(r.Context(), model.Sprint{
		ProjectID:    r.PathValue("projectID"),
		SprintNumber: req.SprintNumber,
		StartDate:    start,
		EndDate:      end,
		SprintGoal:   req.SprintGoal,
		SprintType:   model.SprintType(req.SprintType),
	})
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSprintResponse(created))
}

// HandleListSprints handles GET /projects/{projectID}/sprints requests.
func (h *ProjectsHandler) HandleListSprints(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_sprints"

	sprints, err := h.deps.ListSprints(r.Context(), r.PathValue("projectID"))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	out := make([]sprintResponse, 0, len(sprints))
	for _, sp := range sprints {
		out = append(out, toSprintResponse(sp))
	}
	writeJSON(w, http.StatusOK, out)
}
