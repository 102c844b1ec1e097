package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/glamhq/glam/services/booking-service/internal/bookings"
	"github.com/glamhq/glam/services/booking-service/internal/schedule"
)

// writeError maps service errors to plain-text HTTP errors.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, bookings.ErrUnauthenticated):
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	case errors.Is(err, bookings.ErrForbidden), errors.Is(err, schedule.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, bookings.ErrNotFound), errors.Is(err, schedule.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, bookings.ErrSlotTaken):
		http.Error(w, "slot already booked", http.StatusConflict)
	case errors.Is(err, bookings.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bookings.ErrInvalidInput), errors.Is(err, schedule.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, bookings.ErrRejected), errors.Is(err, schedule.ErrRejected):
		http.Error(w, "invalid input", http.StatusBadRequest)
	default:
		logger.Error("request failed", "err", err, "method", r.Method, "path", r.URL.Path)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
