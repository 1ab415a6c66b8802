package handlers

import (
	"net/http"
	"strings"

	"github.com/havenmind/booking/internal/apperr"
	"github.com/havenmind/booking/internal/model"
)

type slotResponse struct {
	StartTime          string                 `json:"startTime"`
	AvailableDurations []model.DurationOption `json:"availableDurations"`
}

// Slots is public: prospective clients browse availability before they have
// an account or relationship.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("providerId"))
	date := strings.TrimSpace(q.Get("date"))
	if providerID == "" || date == "" {
		writeError(w, apperr.Validation("providerId and date are required"))
		return
	}
	slots, err := h.svc.Slots(r.Context(), providerID, date)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]slotResponse, len(slots))
	for i, s := range slots {
		out[i] = slotResponse{
			StartTime:          s.StartTime.UTC().Format(timeLayout),
			AvailableDurations: s.AvailableDurations,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": out})
}

func (h *Handler) Durations(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"durations": h.svc.ListDurations()})
}
