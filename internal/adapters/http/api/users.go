// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/internal/domain/scoring"
)

// UsersHandler handles user and alert requests.
type UsersHandler struct {
	deps Dependencies
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps Dependencies) *UsersHandler {
	return &UsersHandler{deps: deps}
}

type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type alertResponse struct {
	ID        string          `json:"id"`
	Type      model.AlertType `json:"type"`
	Message   string          `json:"message"`
	Severity  model.Severity  `json:"severity"`
	UserID    string          `json:"userId"`
	ProjectID string          `json:"projectId,omitempty"`
	SprintID  string          `json:"sprintId,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toAlertResponse(a model.Alert) alertResponse {
	return alertResponse{
		ID:        a.ID,
		Type:      a.Type,
		Message:   a.Message,
		Severity:  a.Severity,
		UserID:    a.UserID,
		ProjectID: a.ProjectID,
		SprintID:  a.SprintID,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
}

// HandleCreate handles POST /users requests.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_user"

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var fields []string
	if req.Name == "" {
		fields = append(fields, "name")
	}
	if req.Email == "" {
		fields = append(fields, "email")
	}
	if len(fields) > 0 {
		writeMappedError(w, op, &scoring.ValidationError{Fields: fields})
		return
	}

	created, err := h.deps.CreateUser(r.Context(), model.User{
		Name:  req.Name,
		Email: req.Email,
		Role:  model.Role(req.Role),
	})
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

// HandleList handles GET /users requests.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_users"

	users, err := h.deps.ListUsers(r.Context())
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleListAlerts handles GET /alerts requests. The userID query
// parameter selects whose alerts to return; without it, authenticated
// callers get the alerts addressed to their own principal.
func (h *UsersHandler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_alerts"

	userID := r.URL.Query().Get("userID")
	if userID == "" {
		if p, ok := PrincipalFromContext(r.Context()); ok {
			userID = p.ID
		}
	}
	if userID == "" {
		writeMappedError(w, op, &scoring.ValidationError{Fields: []string{"userID"}})
		return
	}

	alerts, err := h.deps.ListAlertsForUser(r.Context(), userID)
	if err != nil {
		writeMappedError(w, op, err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}
