// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/anshulpatel/event-waitlist-service/internal/model"
	"github.com/anshulpatel/event-waitlist-service/internal/repository"
	"github.com/anshulpatel/event-waitlist-service/internal/service"
)

// RegistrationHandler holds all HTTP handlers for the registration API.
type RegistrationHandler struct {
	svc *service.Service
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc *service.Service) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps domain failures to HTTP statuses. Anything outside
// the taxonomy becomes an opaque 500 so store internals never leak.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrRegistrationClosed),
		errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrWaitlistFull),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrEventBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *RegistrationHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *RegistrationHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *RegistrationHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *RegistrationHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.ListRegistrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// GetCounts handles GET /events/{id}/counts
func (h *RegistrationHandler) GetCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.GetCounts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// ─── Registration handlers ────────────────────────────────────────────────────

// Register handles POST /events/{id}/register
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reg, err := h.svc.Register(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := model.RegisterResponse{
		ID:               reg.ID,
		Status:           reg.Status,
		WaitlistPosition: reg.WaitlistPosition,
		Message:          "registration confirmed",
	}
	if reg.Status == model.StatusWaitlisted {
		resp.Message = fmt.Sprintf("added to waitlist at position %d", *reg.WaitlistPosition)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Cancel handles POST /registrations/{id}/cancel
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req model.CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reg, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Promote handles POST /registrations/{id}/promote (admin)
func (h *RegistrationHandler) Promote(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.AdminPromote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// Demote handles POST /registrations/{id}/demote (admin)
func (h *RegistrationHandler) Demote(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.AdminDemote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// MarkAttended handles POST /registrations/{id}/attended
func (h *RegistrationHandler) MarkAttended(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.MarkAttended(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
