package handlers

import (
	"net/http"

	"github.com/havenmind/booking/internal/auth"
	"github.com/havenmind/booking/internal/platform/httpx"
)

// Register mounts all routes on mux. Authenticated routes go through the JWT
// middleware; the public slot and duration endpoints additionally take the
// rate limiter so anonymous browsing cannot hammer the store.
func (h *Handler) Register(mux *http.ServeMux, verifier *auth.Verifier, public httpx.Middleware) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return verifier.Middleware(fn)
	}

	mux.Handle("/api/v1/appointments", authed(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateAppointment(w, r)
		case http.MethodGet:
			h.ListAppointments(w, r)
		default:
			requireMethod(w, r, http.MethodPost)
		}
	}))
	mux.Handle("/api/v1/appointments/get", authed(h.GetAppointment))
	mux.Handle("/api/v1/appointments/update", authed(h.UpdateAppointment))
	mux.Handle("/api/v1/appointments/cancel", authed(h.CancelAppointment))
	mux.Handle("/api/v1/appointments/complete", authed(h.CompleteAppointment))

	mux.Handle("/api/v1/availability", authed(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateAvailability(w, r)
		case http.MethodGet:
			h.ListAvailability(w, r)
		default:
			requireMethod(w, r, http.MethodPost)
		}
	}))
	mux.Handle("/api/v1/availability/update", authed(h.UpdateAvailability))
	mux.Handle("/api/v1/availability/delete", authed(h.DeleteAvailability))

	if public == nil {
		public = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(h.Slots)))
	mux.Handle("/api/v1/public/durations", public(http.HandlerFunc(h.Durations)))
}
