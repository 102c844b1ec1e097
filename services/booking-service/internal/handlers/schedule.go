package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/services/booking-service/internal/model"
	"github.com/glamhq/glam/services/booking-service/internal/schedule"
	"github.com/google/uuid"
)

const maxBulkIDs = 100

type ScheduleHandler struct {
	svc    *schedule.Service
	logger *slog.Logger
}

func NewScheduleHandler(svc *schedule.Service, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger}
}

func (h *ScheduleHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/artists/availability/today", h.TodayBulk)
	mux.HandleFunc("GET /api/v1/artists/{id}/availability/today", h.Today)
	mux.HandleFunc("GET /api/v1/artists/{id}/working-hours", h.WorkingHours)
	mux.HandleFunc("PUT /api/v1/artists/{id}/working-hours", h.ReplaceWeek)
	mux.HandleFunc("GET /api/v1/artists/{id}/blocked-dates", h.ListBlocked)
	mux.HandleFunc("POST /api/v1/artists/{id}/blocked-dates", h.AddBlocked)
	mux.HandleFunc("DELETE /api/v1/artists/{id}/blocked-dates/{blockedID}", h.RemoveBlocked)
	mux.HandleFunc("GET /api/v1/artists/{id}/slots", h.Slots)
	mux.HandleFunc("GET /api/v1/artists/{id}/bookable", h.Bookable)
}

// artistID returns the path artist id, rejecting anything that is not a UUID.
func artistID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid artist id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (h *ScheduleHandler) Today(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Today(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *ScheduleHandler) TodayBulk(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) > maxBulkIDs {
		http.Error(w, "too many ids", http.StatusBadRequest)
		return
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			http.Error(w, "invalid artist id "+strconv.Quote(id), http.StatusBadRequest)
			return
		}
	}
	out, err := h.svc.TodayBulk(r.Context(), ids)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *ScheduleHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.WorkingHours(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rows == nil {
		rows = []model.WorkingHour{}
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

type replaceWeekRequest struct {
	Days []model.DayEntry `json:"days"`
}

func (h *ScheduleHandler) ReplaceWeek(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	var req replaceWeekRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.svc.ReplaceWeek(r.Context(), httpx.IdentityFromRequest(r), id, req.Days)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

func (h *ScheduleHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ListBlockedDates(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []model.BlockedDate{}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type addBlockedRequest struct {
	BlockedDate string `json:"blocked_date"`
	Reason      string `json:"reason"`
}

func (h *ScheduleHandler) AddBlocked(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	var req addBlockedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bd, err := h.svc.AddBlockedDate(r.Context(), httpx.IdentityFromRequest(r), id, req.BlockedDate, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bd)
}

func (h *ScheduleHandler) RemoveBlocked(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	blockedID := r.PathValue("blockedID")
	if _, err := uuid.Parse(blockedID); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := h.svc.RemoveBlockedDate(r.Context(), httpx.IdentityFromRequest(r), id, blockedID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type slotsResponse struct {
	ArtistID string   `json:"artist_id"`
	Date     string   `json:"date"`
	Duration int      `json:"duration_minutes"`
	Slots    []string `json:"slots"`
}

func (h *ScheduleHandler) Slots(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	duration := minutesParam(q.Get("duration"), 60)
	step := minutesParam(q.Get("step"), 30)
	if duration <= 0 || step <= 0 {
		http.Error(w, "duration and step must be positive minutes", http.StatusBadRequest)
		return
	}
	slots, err := h.svc.Slots(r.Context(), id, q.Get("date"), time.Duration(duration)*time.Minute, time.Duration(step)*time.Minute)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{ArtistID: id, Date: q.Get("date"), Duration: duration, Slots: slots})
}

func (h *ScheduleHandler) Bookable(w http.ResponseWriter, r *http.Request) {
	id, ok := artistID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	duration := minutesParam(q.Get("duration"), 60)
	if duration <= 0 {
		http.Error(w, "duration must be positive minutes", http.StatusBadRequest)
		return
	}
	bookable, err := h.svc.IsBookable(r.Context(), id, q.Get("date"), q.Get("time"), time.Duration(duration)*time.Minute)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"artist_id": id,
		"date":      q.Get("date"),
		"time":      q.Get("time"),
		"bookable":  bookable,
	})
}

func minutesParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v > 24*60 {
		return -1
	}
	return v
}
