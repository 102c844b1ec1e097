package handlers

import (
	"log/slog"
	"net/http"

	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/services/booking-service/internal/bookings"
	"github.com/glamhq/glam/services/booking-service/internal/model"
	"github.com/google/uuid"
)

type BookingHandler struct {
	svc    *bookings.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *bookings.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/bookings", h.Create)
	mux.HandleFunc("GET /api/v1/bookings/mine", h.ListMine)
	mux.HandleFunc("GET /api/v1/bookings/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/bookings/{id}/status", h.Transition)
	mux.HandleFunc("GET /api/v1/artists/{id}/bookings", h.ListForArtist)
	mux.HandleFunc("GET /api/v1/artists/{id}/bookings/pending-count", h.PendingCount)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := httpx.IdentityFromRequest(r)
	if !caller.Authenticated() {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var in bookings.CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.IdempotencyKey = r.Header.Get("Idempotency-Key")

	b, created, err := h.svc.Create(r.Context(), caller, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status := http.StatusCreated
	if !created {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, b)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Get(r.Context(), httpx.IdentityFromRequest(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListMine(r.Context(), httpx.IdentityFromRequest(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeBookings(w, out)
}

func (h *BookingHandler) ListForArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ListForArtist(r.Context(), httpx.IdentityFromRequest(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeBookings(w, out)
}

func (h *BookingHandler) PendingCount(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.PendingCount(r.Context(), httpx.IdentityFromRequest(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"artist_id": id, "pending_count": n})
}

type transitionRequest struct {
	Status model.BookingStatus `json:"status"`
}

func (h *BookingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := h.svc.Transition(r.Context(), httpx.IdentityFromRequest(r), id, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func writeBookings(w http.ResponseWriter, out []model.Booking) {
	if out == nil {
		out = []model.Booking{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func bookingID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return "", false
	}
	return id, true
}
