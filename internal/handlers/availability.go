package handlers

import (
	"net/http"
	"strings"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/booking"
)

type availabilityRequest struct {
	ID          string `json:"id,omitempty"`
	ProviderID  string `json:"providerId,omitempty"`
	DayOfWeek   int    `json:"dayOfWeek"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
	Notes       string `json:"notes,omitempty"`
}

func (req availabilityRequest) input() booking.AvailabilityInput {
	return booking.AvailabilityInput{
		ProviderID:  strings.TrimSpace(req.ProviderID),
		DayOfWeek:   req.DayOfWeek,
		StartTime:   strings.TrimSpace(req.StartTime),
		EndTime:     strings.TrimSpace(req.EndTime),
		IsAvailable: req.IsAvailable,
		Notes:       req.Notes,
	}
}

func (h *Handler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	win, err := h.svc.CreateAvailabilityWindow(r.Context(), p, req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAvailabilityResponse(win))
}

func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := principal(w, r); !ok {
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("providerId"))
	windows, err := h.svc.ListAvailability(r.Context(), providerID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]availabilityResponse, len(windows))
	for i, win := range windows {
		out[i] = toAvailabilityResponse(win)
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": out})
}

func (h *Handler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, apperr.Validation("id is required"))
		return
	}
	win, err := h.svc.UpdateAvailabilityWindow(r.Context(), p, strings.TrimSpace(req.ID), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(win))
}

type deleteAvailabilityRequest struct {
	ID         string `json:"id"`
	ProviderID string `json:"providerId,omitempty"`
}

func (h *Handler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req deleteAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, apperr.Validation("id is required"))
		return
	}
	if err := h.svc.DeleteAvailabilityWindow(r.Context(), p, strings.TrimSpace(req.ProviderID), strings.TrimSpace(req.ID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
