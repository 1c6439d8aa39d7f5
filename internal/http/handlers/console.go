package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/drag"
	"github.com/wolfman30/frontdesk-calendar/internal/frontdesk"
	"github.com/wolfman30/frontdesk-calendar/internal/scheduleapi"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

// ConsoleHandler serves the scheduling grid and its commands.
type ConsoleHandler struct {
	console *frontdesk.Console
	logger  *logging.Logger
}

// NewConsoleHandler creates a handler over console.
func NewConsoleHandler(console *frontdesk.Console, logger *logging.Logger) *ConsoleHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConsoleHandler{console: console, logger: logger.Component("http.console")}
}

// Grid handles GET /api/grid?week=YYYY-MM-DD. Another week is resolved for
// this request only; the week every other caller sees does not move. A
// failed fetch still renders, flagged stale.
func (h *ConsoleHandler) Grid(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("week"))
	if raw == "" {
		writeJSON(w, http.StatusOK, h.console.View())
		return
	}
	date, err := clinictime.ParseDate(raw)
	if err != nil {
		jsonError(w, "week must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	view, err := h.console.WeekView(r.Context(), date)
	if err != nil {
		h.logger.Warn("week fetch failed", "week", date.String(), "error", err)
	}
	writeJSON(w, http.StatusOK, view)
}

// Refresh handles POST /api/refresh.
func (h *ConsoleHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.console.Refresh(r.Context(), frontdesk.ReasonManual); err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.console.Status())
}

// SlotRequest addresses one cell of the grid.
type SlotRequest struct {
	ProviderID string          `json:"provider_id"`
	Date       clinictime.Date `json:"date"`
	Start      timegrid.Clock  `json:"start"`
}

// SlotClick handles POST /api/slots/click.
func (h *ConsoleHandler) SlotClick(w http.ResponseWriter, r *http.Request) {
	var req SlotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	action, err := h.console.OnSlotClick(r.Context(), req.ProviderID, req.Date, req.Start)
	if err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// Entity handles GET /api/entities/{id}.
func (h *ConsoleHandler) Entity(w http.ResponseWriter, r *http.Request) {
	view, err := h.console.OnEntityClick(chi.URLParam(r, "id"))
	if err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Move handles POST /api/appointments/{id}/move, the drop end of a drag.
func (h *ConsoleHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req SlotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res := h.console.OnDragEnd(r.Context(), chi.URLParam(r, "id"), req.ProviderID, req.Date, req.Start)
	writeJSON(w, dropStatus(res), res)
}

func dropStatus(res frontdesk.DragResult) int {
	if res.Success {
		return http.StatusOK
	}
	if res.Err != nil {
		return statusFor(res.Err)
	}
	if res.Outcome == drag.OutcomeRejected {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

// CreateAppointment handles POST /api/appointments.
func (h *ConsoleHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var form frontdesk.AppointmentForm
	if err := decodeJSON(w, r, &form); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	appt, err := h.console.BookAppointment(r.Context(), form)
	if err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// CancelAppointment handles DELETE /api/appointments/{id}.
func (h *ConsoleHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.console.CancelAppointment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTimeBlock handles POST /api/time-blocks.
func (h *ConsoleHandler) CreateTimeBlock(w http.ResponseWriter, r *http.Request) {
	var form frontdesk.TimeBlockForm
	if err := decodeJSON(w, r, &form); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	block, err := h.console.BlockTime(r.Context(), form)
	if err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

// DeleteTimeBlock handles DELETE /api/time-blocks/{id}.
func (h *ConsoleHandler) DeleteTimeBlock(w http.ResponseWriter, r *http.Request) {
	if err := h.console.DeleteTimeBlock(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddPatient handles POST /api/patients from the add-patient dialog.
func (h *ConsoleHandler) AddPatient(w http.ResponseWriter, r *http.Request) {
	var in scheduleapi.NewPatient
	if err := decodeJSON(w, r, &in); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	patient, err := h.console.AddPatient(r.Context(), in)
	if err != nil {
		writeConsoleError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

// PatientsResponse wraps patient search results.
type PatientsResponse struct {
	Patients []scheduleapi.Patient `json:"patients"`
}

// SearchPatients handles GET /api/patients?query=. Queries shorter than two
// characters return nothing without calling the backend.
func (h *ConsoleHandler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	resp := PatientsResponse{Patients: []scheduleapi.Patient{}}
	if len([]rune(query)) < 2 {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	patients, err := h.console.SearchPatients(r.Context(), query)
	if err != nil {
		h.logger.Warn("patient search failed", "error", err)
		jsonError(w, "patient search unavailable", http.StatusBadGateway)
		return
	}
	resp.Patients = append(resp.Patients, patients...)
	writeJSON(w, http.StatusOK, resp)
}
