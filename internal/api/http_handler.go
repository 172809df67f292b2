package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/calql/internal/auth"
	"github.com/rpattn/calql/internal/calendar"
	"github.com/rpattn/calql/internal/domain"
	"github.com/rpattn/calql/internal/middleware"
)

// Handler exposes the calendar service as a JSON HTTP API. Routing uses
// method-qualified ServeMux patterns; identity comes from the request
// context set by the auth middleware.
type Handler struct {
	service *calendar.Service
}

func NewHandler(service *calendar.Service) *Handler {
	return &Handler{service: service}
}

// Register wires every route onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /events", h.handleCreateEvent)
	mux.HandleFunc("GET /events", h.handleListEvents)
	mux.HandleFunc("POST /events/batch", h.handleBatchCreate)
	mux.HandleFunc("GET /events/{id}", h.handleGetEvent)
	mux.HandleFunc("PATCH /events/{id}", h.handleUpdateEvent)
	mux.HandleFunc("DELETE /events/{id}", h.handleDeleteEvent)
	mux.HandleFunc("POST /events/{id}/share", h.handleShareEvent)
	mux.HandleFunc("GET /events/{id}/permissions", h.handleListPermissions)
	mux.HandleFunc("PUT /events/{id}/permissions/{userId}", h.handleUpdateRole)
	mux.HandleFunc("DELETE /events/{id}/permissions/{userId}", h.handleRevokeRole)
	mux.HandleFunc("GET /events/{id}/changelog", h.handleChangelog)
	mux.HandleFunc("GET /events/{id}/history/{versionId}", h.handleHistoryVersion)
	mux.HandleFunc("GET /events/{id}/diff/{v1}/{v2}", h.handleDiff)
	mux.HandleFunc("POST /events/{id}/rollback/{versionId}", h.handleRollback)
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	defer r.Body.Close()
	var input calendar.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), callerID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	defer r.Body.Close()
	var inputs []calendar.EventInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	events, err := h.service.BatchCreateEvents(r.Context(), callerID, inputs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, events)
}

type listResponse struct {
	Events []domain.Event `json:"events"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	events, total, err := h.service.ListEvents(r.Context(), callerID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit <= 0 {
		limit = 50
	}
	writeJSON(w, http.StatusOK, listResponse{Events: events, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}

	event, err := h.service.GetEvent(r.Context(), callerID, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()
	var patch domain.EventPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if patch.IsEmpty() {
		http.Error(w, "empty patch", http.StatusBadRequest)
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), callerID, eventID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteEvent(r.Context(), callerID, eventID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sharePayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// grantView renders a grant with the grantee's identity resolved through
// the request-scoped user loader when one is attached.
type grantView struct {
	UserID    uuid.UUID   `json:"user_id"`
	Username  string      `json:"username,omitempty"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

func (h *Handler) handleShareEvent(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()
	var payload sharePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(payload.UserID))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid user_id: %v", err), http.StatusBadRequest)
		return
	}

	grant, err := h.service.ShareEvent(r.Context(), callerID, eventID, userID, payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.renderGrant(r, grant))
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}

	grants, err := h.service.ListPermissions(r.Context(), callerID, eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]grantView, 0, len(grants))
	for _, grant := range grants {
		views = append(views, h.renderGrant(r, grant))
	}
	writeJSON(w, http.StatusOK, views)
}

type rolePayload struct {
	Role string `json:"role"`
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid user id: %v", err), http.StatusBadRequest)
		return
	}

	defer r.Body.Close()
	var payload rolePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	grant, err := h.service.UpdateRole(r.Context(), callerID, eventID, userID, payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.renderGrant(r, grant))
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid user id: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.RevokeRole(r.Context(), callerID, eventID, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// historyView renders a ledger record with the editor identity resolved.
type historyView struct {
	ID             uuid.UUID  `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	EditedBy       *uuid.UUID `json:"edited_by"`
	EditorUsername string     `json:"editor_username,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	EditedAt       time.Time  `json:"edited_at"`
}

func (h *Handler) handleChangelog(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}

	records, err := h.service.ListHistory(r.Context(), callerID, eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]historyView, 0, len(records))
	for _, record := range records {
		views = append(views, h.renderHistory(r, record))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleHistoryVersion(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	versionID, err := uuid.Parse(r.PathValue("versionId"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid version id: %v", err), http.StatusBadRequest)
		return
	}

	record, err := h.service.GetHistoryVersion(r.Context(), callerID, eventID, versionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.renderHistory(r, record))
}

func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	v1, err := uuid.Parse(r.PathValue("v1"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid version id: %v", err), http.StatusBadRequest)
		return
	}
	v2, err := uuid.Parse(r.PathValue("v2"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid version id: %v", err), http.StatusBadRequest)
		return
	}

	changes, err := h.service.DiffVersions(r.Context(), callerID, eventID, v1, v2)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	callerID, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	versionID, err := uuid.Parse(r.PathValue("versionId"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid version id: %v", err), http.StatusBadRequest)
		return
	}

	event, err := h.service.RollbackEvent(r.Context(), callerID, eventID, versionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// callerAndEvent resolves the authenticated caller and the {id} path value.
func (h *Handler) callerAndEvent(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}
	eventID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid event id: %v", err), http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return callerID, eventID, true
}

func (h *Handler) renderGrant(r *http.Request, grant domain.RoleGrant) grantView {
	view := grantView{
		UserID:    grant.UserID,
		Role:      grant.Role,
		CreatedAt: grant.CreatedAt,
	}
	if loader := middleware.UserLoaderFromContext(r.Context()); loader != nil {
		if user, ok, err := loader.Load(r.Context(), grant.UserID); err == nil && ok {
			view.Username = user.Username
		}
	}
	return view
}

func (h *Handler) renderHistory(r *http.Request, record domain.EventHistory) historyView {
	view := historyView{
		ID:          record.ID,
		EventID:     record.EventID,
		EditedBy:    record.EditedBy,
		Title:       record.Title,
		Description: record.Description,
		Location:    record.Location,
		StartTime:   record.StartTime,
		EndTime:     record.EndTime,
		EditedAt:    record.EditedAt,
	}
	if record.EditedBy != nil {
		if loader := middleware.UserLoaderFromContext(r.Context()); loader != nil {
			if user, ok, err := loader.Load(r.Context(), *record.EditedBy); err == nil && ok {
				view.EditorUsername = user.Username
			}
		}
	}
	return view
}

// writeError maps the business error taxonomy onto response codes.
// Anything unrecognized is an internal failure and stays opaque.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateGrant):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] internal error: %v", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
