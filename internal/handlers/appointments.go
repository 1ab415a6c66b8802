package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/auth"
	"github.com/havenmind/booking/internal/booking"
	"github.com/havenmind/booking/internal/model"
)

type Handler struct {
	svc *booking.Service
	log *slog.Logger
}

func New(svc *booking.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperr.Forbidden("not authenticated"))
	}
	return p, ok
}

type createAppointmentRequest struct {
	ProviderID  string `json:"providerId"`
	ClientID    string `json:"clientId,omitempty"`
	StartTime   string `json:"startTime"`
	DurationMin int    `json:"duration"`
	MeetingType string `json:"meetingType,omitempty"`
	Title       string `json:"title,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func parseStartTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.Validation("invalid startTime %q: expected RFC 3339", s)
	}
	return t, nil
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	start, err := parseStartTime(req.StartTime)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.svc.CreateAppointment(r.Context(), p, booking.CreateAppointmentInput{
		ProviderID:  strings.TrimSpace(req.ProviderID),
		ClientID:    strings.TrimSpace(req.ClientID),
		StartTime:   start,
		DurationMin: req.DurationMin,
		MeetingType: model.MeetingType(req.MeetingType),
		Title:       req.Title,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(a))
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	as, err := h.svc.ListAppointments(r.Context(), p, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentResponses(as)})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, apperr.Validation("id is required"))
		return
	}
	a, err := h.svc.GetAppointment(r.Context(), p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(a))
}

type updateAppointmentRequest struct {
	ID          string  `json:"id"`
	StartTime   *string `json:"startTime,omitempty"`
	DurationMin *int    `json:"duration,omitempty"`
	Status      *string `json:"status,omitempty"`
	MeetingType *string `json:"meetingType,omitempty"`
	Title       *string `json:"title,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, apperr.Validation("id is required"))
		return
	}

	var patch booking.UpdatePatch
	if req.StartTime != nil {
		start, err := parseStartTime(*req.StartTime)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.StartTime = &start
	}
	patch.DurationMin = req.DurationMin
	if req.Status != nil {
		st := model.Status(*req.Status)
		if !st.Valid() {
			writeError(w, apperr.Validation("unknown status %q", *req.Status))
			return
		}
		patch.Status = &st
	}
	if req.MeetingType != nil {
		mt := model.MeetingType(*req.MeetingType)
		patch.MeetingType = &mt
	}
	patch.Title = req.Title
	patch.Notes = req.Notes

	a, err := h.svc.UpdateAppointment(r.Context(), p, strings.TrimSpace(req.ID), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(a))
}

type cancelAppointmentRequest struct {
	ID string `json:"id"`
}

type cancelAppointmentResponse struct {
	appointmentResponse
	CancellationNoticeHours int `json:"cancellationNoticeHours"`
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req cancelAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, apperr.Validation("id is required"))
		return
	}
	a, notice, err := h.svc.CancelAppointment(r.Context(), p, strings.TrimSpace(req.ID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelAppointmentResponse{
		appointmentResponse:     toAppointmentResponse(a),
		CancellationNoticeHours: notice,
	})
}

type completeAppointmentRequest struct {
	ID               string `json:"id"`
	AttendanceStatus string `json:"attendanceStatus,omitempty"`
}

func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req completeAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, apperr.Validation("id is required"))
		return
	}
	a, err := h.svc.CompleteAppointment(r.Context(), p, strings.TrimSpace(req.ID), strings.TrimSpace(req.AttendanceStatus))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(a))
}
