// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/meridianhq/pulse/internal/adapters/repository"
	service "github.com/meridianhq/pulse/internal/app"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/scoring"
	"github.com/meridianhq/pulse/internal/domain/types"
)

// AllocationsHandler handles resource allocation requests.
type AllocationsHandler struct {
	deps Dependencies
}

// NewAllocationsHandler creates a new allocations handler.
func NewAllocationsHandler(deps Dependencies) *AllocationsHandler {
	return &AllocationsHandler{deps: deps}
}

// allocationRequest mirrors the POST /allocations body. PUT accepts the
// same shape with every field optional.
type allocationRequest struct {
	ResourceID string   `json:"resourceId"`
	ProjectID  string   `json:"projectId"`
	SprintID   string   `json:"sprintId,omitempty"`
	Percentage *float64 `json:"allocationPercentage"`
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
}

// allocationResponse mirrors a stored allocation.
type allocationResponse struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resourceId"`
	ProjectID  string    `json:"projectId"`
	SprintID   string    `json:"sprintId,omitempty"`
	Percentage float64   `json:"allocationPercentage"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toAllocationResponse(a model.Allocation) allocationResponse {
	return allocationResponse{
		ID:         a.ID,
		ResourceID: a.ResourceID,
		ProjectID:  a.ProjectID,
		SprintID:   a.SprintID,
		Percentage: a.Percentage,
		StartDate:  a.StartDate,
		EndDate:    a.EndDate,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// HandleCreate handles POST /allocations requests.
func (h *AllocationsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_allocation"

	var req allocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var fields []string
	if req.ResourceID == "" {
		fields = append(fields, "resourceId")
	}
	if req.ProjectID == "" {
		fields = append(fields, "projectId")
	}
	if req.Percentage == nil {
		fields = append(fields, "allocationPercentage")
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

	created, err := h.deps.CreateAllocation(r.Context(), service.AllocationInput{
		ResourceID: req.ResourceID,
		ProjectID:  req.ProjectID,
		SprintID:   req.SprintID,
		Percentage: *req.Percentage,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationResponse(created))
}

// HandleUpdate handles PUT /allocations/{allocationID} requests.
func (h *AllocationsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_allocation"

	var req allocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	patch := service.AllocationPatch{Percentage: req.Percentage}
	if req.StartDate != "" {
		start, err := parseDate(req.StartDate)
		if err != nil {
			writeMappedError(w, op, &scoring.ValidationError{Fields: []string{"startDate"}})
			return
		}
		patch.StartDate = &start
	}
	if req.EndDate != "" {
		end, err := parseDate(req.EndDate)
		if err != nil {
			writeMappedError(w, op, &scoring.ValidationError{Fields: []string{"endDate"}})
			return
		}
		patch.EndDate = &end
	}
	if req.SprintID != "" {
		patch.SprintID = &req.SprintID
	}

	updated, err := h.deps.UpdateAllocation(r.Context(), r.PathValue("allocationID"), patch)
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationResponse(updated))
}

// HandleGet handles GET /allocations/{allocationID} requests.
func (h *AllocationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_allocation"

	a, err := h.deps.GetAllocation(r.Context(), r.PathValue("allocationID"))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationResponse(a))
}

// HandleDelete handles DELETE /allocations/{allocationID} requests.
func (h *AllocationsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_allocation"

	if err := h.deps.DeleteAllocation(r.Context(), r.PathValue("allocationID")); err != nil {
		writeMappedError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleList handles GET /allocations requests. Optional resourceId and
// projectId query parameters narrow the listing.
func (h *AllocationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_allocations"

	filter := repository.AllocationFilter{
		ResourceID: r.URL.Query().Get("resourceId"),
		ProjectID:  r.URL.Query().Get("projectId"),
	}
	allocations, err := h.deps.ListAllocations(r.Context(), filter)
	if err != nil {
		writeMappedError(w, op, err)
		return
	}

	out := make([]allocationResponse, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, toAllocationResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleConflicts handles GET /allocations/conflicts requests.
func (h *AllocationsHandler) HandleConflicts(w http.ResponseWriter, r *http.Request) {
	const op = "api.allocation_conflicts"

	conflicts, err := h.deps.ConflictReport(r.Context())
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	if conflicts == nil {
		conflicts = []types.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}
