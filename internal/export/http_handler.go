package export

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/calql/internal/auth"
	"github.com/rpattn/calql/internal/domain"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register wires the export routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /events/export/ics", h.handleCalendarICS)
	mux.HandleFunc("GET /events/{id}/changelog/export", h.handleChangelogExport)
}

func (h *Handler) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	if err := h.service.CalendarICS(r.Context(), callerID, window, w); err != nil {
		writeExportError(w, err)
		return
	}
}

func (h *Handler) handleChangelogExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	eventID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid event id: %v", err), http.StatusBadRequest)
		return
	}

	f, err := h.service.ChangelogXLSX(r.Context(), eventID)
	if err != nil {
		writeExportError(w, err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="changelog-%s.xlsx"`, eventID))
	if err := f.Write(w); err != nil {
		log.Printf("[EXPORT] failed to stream changelog %s: %v", eventID, err)
	}
}

// parseWindow reads the optional from/to query bounds for occurrence
// expansion. Both must be present together.
func parseWindow(r *http.Request) (*Window, error) {
	fromRaw := strings.TrimSpace(r.URL.Query().Get("from"))
	toRaw := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromRaw == "" && toRaw == "" {
		return nil, nil
	}
	if fromRaw == "" || toRaw == "" {
		return nil, fmt.Errorf("from and to must be provided together")
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid from: %v", err)
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid to: %v", err)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to")
	}
	return &Window{From: from, To: to}, nil
}

func writeExportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("[EXPORT] internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
