// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/meridianhq/pulse/internal/adapters/repository"
	service "github.com/meridianhq/pulse/internal/app"
	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/scoring"
	"github.com/meridianhq/pulse/internal/domain/types"
)

// HealthRecordsHandler handles sprint health submissions and reads.
type HealthRecordsHandler struct {
	deps Dependencies
}

// NewHealthRecordsHandler creates a new sprint health handler.
func NewHealthRecordsHandler(deps Dependencies) *HealthRecordsHandler {
	return &HealthRecordsHandler{deps: deps}
}

// ratingPayload mirrors one dimension's submitted rating.
type ratingPayload struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// healthRequest mirrors the POST/PUT body for sprint health.
type healthRequest struct {
	Dimensions      map[string]ratingPayload `json:"dimensions"`
	OverallOutcome  string                   `json:"overallOutcome,omitempty"`
	GoalAchievement string                   `json:"goalAchievement,omitempty"`
	FailureReasons  []string                 `json:"failureReasons,omitempty"`
	Comments        *string                  `json:"comments,omitempty"`
}

// toInput converts the payload, rejecting dimension names the model does
// not know about.
func (req healthRequest) toInput(sprintID, actorID string) (service.HealthInput, error) {
	known := make(map[string]bool, model.DimensionCount)
	for _, d := range model.Dimensions() {
		known[string(d)] = true
	}

	dims := make(model.DimensionSet, len(req.Dimensions))
	var unknown []string
	for name, r := range req.Dimensions {
		if !known[name] {
			unknown = append(unknown, name+" is not a health dimension")
			continue
		}
		dims[model.Dimension(name)] = model.Rating{Rating: r.Rating, Comment: r.Comment}
	}
	if len(unknown) > 0 {
		return service.HealthInput{}, &scoring.ValidationError{Fields: unknown}
	}

	return service.HealthInput{
		SprintID:        sprintID,
		Dimensions:      dims,
		Outcome:         model.Outcome(req.OverallOutcome),
		GoalAchievement: model.GoalAchievement(req.GoalAchievement),
		FailureReasons:  req.FailureReasons,
		Comments:        req.Comments,
		ActorID:         actorID,
	}, nil
}

// healthResponse mirrors a stored health record.
type healthResponse struct {
	ID                 string             `json:"id"`
	SprintID           string             `json:"sprintId"`
	Dimensions         model.DimensionSet `json:"dimensions"`
	OverallHealthScore float64            `json:"overallHealthScore"`
	RAGStatus          model.RAGStatus    `json:"ragStatus"`
	CreatedBy          string             `json:"createdBy,omitempty"`
	UpdatedBy          string             `json:"updatedBy,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func toHealthResponse(h model.SprintHealth) healthResponse {
	return healthResponse{
		ID:                 h.ID,
		SprintID:           h.SprintID,
		Dimensions:         h.Dimensions,
		OverallHealthScore: h.OverallScore,
		RAGStatus:          h.RAGStatus,
		CreatedBy:          h.CreatedBy,
		UpdatedBy:          h.UpdatedBy,
		CreatedAt:          h.CreatedAt,
		UpdatedAt:          h.UpdatedAt,
	}
}

// healthDetailResponse adds the previous record and the trend to a read.
type healthDetailResponse struct {
	healthResponse
	PreviousHealth *healthResponse `json:"previousHealth,omitempty"`
	Trend          scoring.Trend   `json:"trend"`
}

// HandleCreate handles POST /sprints/{sprintID}/health requests.
func (h *HealthRecordsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_sprint_health"

	var req healthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	in, err := req.toInput(r.PathValue("sprintID"), actorID(r))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}

	created, err := h.deps.RecordSprintHealth(r.Context(), in)
	if err != nil {
		// A sprint can carry only one health record; resubmissions are a
		// client error, not a conflict with another writer.
		if errors.Is(err, repository.ErrConflict) {
			writeError(w, http.StatusBadRequest, "duplicate",
				errors.New("health record already exists for this sprint"))
			return
		}
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHealthResponse(created))
}

// HandleUpdate handles PUT /sprints/{sprintID}/health requests.
func (h *HealthRecordsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_sprint_health"

	var req healthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	in, err := req.toInput(r.PathValue("sprintID"), actorID(r))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}

	updated, err := h.deps.UpdateSprintHealth(r.Context(), in)
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toHealthResponse(updated))
}

// HandleGet handles GET /sprints/{sprintID}/health requests.
func (h *HealthRecordsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_sprint_health"

	detail, err := h.deps.GetSprintHealth(r.Context(), r.PathValue("sprintID"))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}

	resp := healthDetailResponse{
		healthResponse: toHealthResponse(detail.Health),
		Trend:          detail.Trend,
	}
	if detail.Previous != nil {
		prev := toHealthResponse(*detail.Previous)
		resp.PreviousHealth = &prev
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHistory handles GET /sprints/{sprintID}/health/history requests.
func (h *HealthRecordsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.sprint_health_history"

	history, err := h.deps.HealthHistory(r.Context(), r.PathValue("sprintID"))
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	if history == nil {
		history = []types.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

// actorID names the caller for audit fields on health records.
func actorID(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return ""
}
