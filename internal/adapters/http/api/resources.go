// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/scoring"
)

// ResourcesHandler handles resource requests.
type ResourcesHandler struct {
	deps Dependencies
}

// NewResourcesHandler creates a new resources handler.
func NewResourcesHandler(deps Dependencies) *ResourcesHandler {
	return &ResourcesHandler{deps: deps}
}

type resourceRequest struct {
	Name           string   `json:"name"`
	Role           string   `json:"role,omitempty"`
	EmploymentType string   `json:"employmentType,omitempty"`
	Availability   *float64 `json:"availabilityPercentage,omitempty"`
	CostRate       float64  `json:"costRate,omitempty"`
}

type resourceResponse struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Role           string               `json:"role,omitempty"`
	EmploymentType model.EmploymentType `json:"employmentType"`
	Availability   float64              `json:"availabilityPercentage"`
	CostRate       float64              `json:"costRate,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

func toResourceResponse(res model.Resource) resourceResponse {
	return resourceResponse{
		ID:             res.ID,
		Name:           res.Name,
		Role:           res.Role,
		EmploymentType: res.EmploymentType,
		Availability:   res.Availability,
		CostRate:       res.CostRate,
		CreatedAt:      res.CreatedAt,
		UpdatedAt:      res.UpdatedAt,
	}
}

// HandleCreate handles POST /resources requests.
func (h *ResourcesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_resource"

	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Name == "" {
		writeMappedError(w, op, &scoring.ValidationError{Fields: []string{"name"}})
		return
	}

	res := model.Resource{
		Name:           req.Name,
		Role:           req.Role,
		EmploymentType: model.EmploymentType(req.EmploymentType),
		CostRate:       req.CostRate,
	}
	if req.Availability != nil {
		res.Availability = *req.Availability
	}

	created, err := h.deps.CreateResource(r.Context(), res)
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceResponse(created))
}

// HandleList handles GET /resources requests.
func (h *ResourcesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_resources"

	resources, err := h.deps.ListResources(r.Context())
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	out := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /resources/{resourceID} requests.
func (h *ResourcesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_resource"

	res, err := h.deps.GetResource(r.Context(), r.PathValue("resourceID"))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(res))
}
