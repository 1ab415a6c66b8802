// Package handlers exposes the booking service over HTTP. Routes are flat
// paths on the standard mux with explicit method checks; request and response
// bodies are explicit structs, never domain types.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindRuleViolation:
		return http.StatusBadRequest
	case apperr.KindConflict, apperr.KindImmutableState:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindUnavailable {
		// Store errors carry internals the caller has no business seeing.
		msg = "service temporarily unavailable"
	}
	writeJSON(w, statusFor(kind), errorResponse{Error: msg, Code: kind.String()})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %s", err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body: unexpected trailing data")
	}
	return nil
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
		return false
	}
	return true
}

type appointmentResponse struct {
	ID          string `json:"id"`
	ProviderID  string `json:"providerId"`
	ClientID    string `json:"clientId"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	DurationMin int    `json:"duration"`
	Status      string `json:"status"`
	MeetingType string `json:"meetingType"`
	Title       string `json:"title,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		ProviderID:  a.ProviderID,
		ClientID:    a.ClientID,
		StartTime:   a.StartTime.UTC().Format(timeLayout),
		EndTime:     a.EndTime().UTC().Format(timeLayout),
		DurationMin: a.DurationMin,
		Status:      string(a.Status),
		MeetingType: string(a.MeetingType),
		Title:       a.Title,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   a.UpdatedAt.UTC().Format(timeLayout),
	}
}

func toAppointmentResponses(as []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, len(as))
	for i, a := range as {
		out[i] = toAppointmentResponse(a)
	}
	return out
}

type availabilityResponse struct {
	ID          string `json:"id"`
	ProviderID  string `json:"providerId"`
	DayOfWeek   int    `json:"dayOfWeek"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
	Notes       string `json:"notes,omitempty"`
}

func toAvailabilityResponse(w model.AvailabilityWindow) availabilityResponse {
	return availabilityResponse{
		ID:          w.ID,
		ProviderID:  w.ProviderID,
		DayOfWeek:   w.DayOfWeek,
		StartTime:   w.StartTime,
		EndTime:     w.EndTime,
		IsAvailable: w.IsAvailable,
		Notes:       w.Notes,
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
